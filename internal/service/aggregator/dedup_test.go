package aggregator

import (
	"testing"
)

var defaultOverlap = OverlapConfig{MinOverlap: 3, MaxOverlap: 15}

func TestDedupBoundary(t *testing.T) {
	tests := []struct {
		name       string
		prev       string
		curr       string
		cfg        OverlapConfig
		expected   string
		trimmed    bool
		overlapLen int
	}{
		{"cjk overlap", "我们今天去公园", "去公园散步吧然后回家", defaultOverlap, "散步吧然后回家", true, 3},
		{"latin word overlap", "I think we should go", "we should go to the park now", defaultOverlap, "to the park now", true, 12},
		{"case folded", "Hello World", "world peace", defaultOverlap, "peace", true, 5},
		{"partial word rejected", "the cat", "category theory is fun", defaultOverlap, "category theory is fun", false, 0},
		{"no overlap", "天气很好", "我们出去玩", defaultOverlap, "我们出去玩", false, 0},
		{"below minimum", "我们去", "去公园", defaultOverlap, "去公园", false, 0},
		{"empty previous", "", "去公园", defaultOverlap, "去公园", false, 0},
		{
			"long utterance may be removed entirely",
			"the quick brown fox jumps over the lazy dog today",
			"over the lazy dog today",
			OverlapConfig{MinOverlap: 3, MaxOverlap: 50},
			"", true, 23,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DedupBoundary(tt.prev, tt.curr, tt.cfg)
			if res.Text != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, res.Text)
			}
			if res.Trimmed != tt.trimmed {
				t.Errorf("expected Trimmed=%v, got %v", tt.trimmed, res.Trimmed)
			}
			if res.OverlapLen != tt.overlapLen {
				t.Errorf("expected OverlapLen=%d, got %d", tt.overlapLen, res.OverlapLen)
			}
		})
	}
}

func TestDedupBoundary_ShortUtteranceProtected(t *testing.T) {
	res := DedupBoundary("你好你好我们走吧", "我们走吧", defaultOverlap)
	if res.Text != "我们走吧" {
		t.Errorf("expected original text, got %q", res.Text)
	}
	if !res.Protected {
		t.Error("expected Protected to be true")
	}
	if res.Trimmed {
		t.Error("expected Trimmed to be false")
	}
}

func TestDedupBoundary_NeverEmptiesShortText(t *testing.T) {
	shorts := []string{"好的", "我们走吧", "对对对", "ok then", "see you", "是的。"}
	cfg := OverlapConfig{MinOverlap: 1, MaxOverlap: 50}
	for _, s := range shorts {
		for _, prev := range []string{s, "然后 " + s, "and then " + s} {
			res := DedupBoundary(prev, s, cfg)
			if res.Text == "" {
				t.Errorf("prev=%q curr=%q: short text reduced to empty", prev, s)
			}
		}
	}
}

func TestDedupInternalRepetition(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"cjk stutter", "我们走吧我们走吧", "我们走吧"},
		{"latin stutter", "hello world hello world", "hello world"},
		{"stutter with trailing punctuation", "我知道了我知道了。", "我知道了"},
		{"stutter with trailing word kept", "我要去我要去了", "我要去我要去了"},
		{"echoed head", "今天天气很好今天天气", "今天天气很好"},
		{"no repetition", "the cat sat on the mat", "the cat sat on the mat"},
		{"partial word is not an echo", "the theory of the them", "the theory of the them"},
		{"too short", "好好", "好好"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupInternalRepetition(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDedupInternalRepetition_Idempotent(t *testing.T) {
	inputs := []string{
		"我们走吧我们走吧我们走吧我们走吧",
		"今天天气很好今天天气",
		"hello world hello world hello world hello world",
		"I said I said I said",
		"好的好的好的",
		"no repeats in this sentence at all",
		"对对对对对对对对",
	}
	for _, in := range inputs {
		once := DedupInternalRepetition(in)
		twice := DedupInternalRepetition(once)
		if once != twice {
			t.Errorf("input %q: expected idempotent result %q, got %q", in, once, twice)
		}
	}
}

func TestJoinText(t *testing.T) {
	tests := []struct {
		a, b, expected string
	}{
		{"你好", "世界", "你好世界"},
		{"hello", "world", "hello world"},
		{"你好。", "hello", "你好。hello"},
		{"hello", "世界", "hello世界"},
		{"", "x", "x"},
		{"x ", "", "x"},
	}
	for _, tt := range tests {
		if got := JoinText(tt.a, tt.b); got != tt.expected {
			t.Errorf("JoinText(%q, %q): expected %q, got %q", tt.a, tt.b, tt.expected, got)
		}
	}
}

func TestSplitTail(t *testing.T) {
	tn := DefaultTuning(ModeOffline)

	tests := []struct {
		name         string
		text         string
		expectedHead string
		expectedTail string
	}{
		{"cjk", "今天天气很好我们出去玩", "今天天气很好我们", "出去玩"},
		{"cjk trailing punctuation", "今天天气很好我们出去玩。", "今天天气很好我们", "出去玩。"},
		{"cjk too short", "你好", "你好", ""},
		{"latin", "we should meet again tomorrow morning", "we should meet again", "tomorrow morning"},
		{"latin too short", "hello world", "hello world", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, tail := SplitTail(tt.text, tn)
			if head != tt.expectedHead {
				t.Errorf("expected head %q, got %q", tt.expectedHead, head)
			}
			if tail != tt.expectedTail {
				t.Errorf("expected tail %q, got %q", tt.expectedTail, tail)
			}
		})
	}
}
