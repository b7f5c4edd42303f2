package aggregator

import (
	"testing"
)

func TestDefaultTuning_Valid(t *testing.T) {
	for _, mode := range []Mode{ModeOffline, ModeRoom, Mode("unknown")} {
		tn := DefaultTuning(mode)
		if err := tn.Validate(); err != nil {
			t.Errorf("mode %s: unexpected error: %v", mode, err)
		}
		if tn.HardGapMs < 1500 || tn.HardGapMs > 2000 {
			t.Errorf("mode %s: expected hard gap in 1500-2000, got %d", mode, tn.HardGapMs)
		}
	}
}

func TestTuning_ValidateRejectsBadGaps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"negative gap", func(t *Tuning) { t.StrongMergeMs = -1 }},
		{"strong above soft", func(t *Tuning) { t.StrongMergeMs = 1600 }},
		{"soft above hard", func(t *Tuning) { t.SoftGapMs = 2500 }},
		{"zero merge group timeout", func(t *Tuning) { t.MergeGroupTimeoutMs = 0 }},
		{"inverted overlap bounds", func(t *Tuning) { t.DedupMaxOverlap = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := DefaultTuning(ModeOffline)
			tt.mutate(&tn)
			if err := tn.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseTuningProfile_PartialOverride(t *testing.T) {
	profile := []byte(`
room:
  hardGapMs: 1400
  scoreThreshold: 4
lecture:
  commitLenWords: 80
`)
	set, err := ParseTuningProfile(profile, DefaultTuningSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	room := set.For(ModeRoom)
	if room.HardGapMs != 1400 {
		t.Errorf("expected hardGapMs 1400, got %d", room.HardGapMs)
	}
	if room.ScoreThreshold != 4 {
		t.Errorf("expected scoreThreshold 4, got %d", room.ScoreThreshold)
	}
	if room.SoftGapMs != DefaultTuning(ModeRoom).SoftGapMs {
		t.Errorf("expected softGapMs to keep its default, got %d", room.SoftGapMs)
	}
	if set.For(ModeOffline) != DefaultTuning(ModeOffline) {
		t.Error("expected offline tuning to be unchanged")
	}

	lecture := set.For(Mode("lecture"))
	if lecture.CommitLenWords != 80 {
		t.Errorf("expected commitLenWords 80, got %d", lecture.CommitLenWords)
	}
	if lecture.HardGapMs != DefaultTuning(ModeOffline).HardGapMs {
		t.Errorf("expected new mode to start from offline defaults, got hardGapMs %d", lecture.HardGapMs)
	}
}

func TestParseTuningProfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		profile string
	}{
		{"malformed yaml", "room: ["},
		{"invalid ordering", "room:\n  softGapMs: 3000\n"},
		{"wrong type", "room:\n  hardGapMs: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTuningProfile([]byte(tt.profile), DefaultTuningSet()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
