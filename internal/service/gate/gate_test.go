package gate

import (
	"errors"
	"testing"

	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
	"github.com/TinoTau/lingua-1-sub000/internal/service/lastsent"
)

const longText = "今天天气很好我们一起去公园散步然后去超市买东西最后回家做饭吃完饭以后看电视再早点睡觉。"

func newTestGate() (*Gate, *aggregator.Registry) {
	reg := aggregator.NewRegistry(aggregator.RegistryConfig{})
	return New(Config{}, reg, lastsent.New(lastsent.Config{})), reg
}

// jobAt builds a job whose audio spans [offsetMs, offsetMs+1000].
func jobAt(index int64, offsetMs int64) asr.Job {
	off := offsetMs
	return asr.Job{SessionID: "s1", UtteranceIndex: index, Mode: aggregator.ModeOffline, AudioOffsetMs: &off}
}

func result(text string, final bool) asr.Result {
	return asr.Result{
		Text:                text,
		Segments:            []asr.Segment{{Start: 0, End: 1}},
		Language:            "zh",
		LanguageProbability: 0.9,
		IsFinal:             final,
	}
}

func TestProcess_EmptySessionID(t *testing.T) {
	g, reg := newTestGate()
	_, err := g.Process(asr.Job{SessionID: "  "}, result("你好", true), "")
	if !errors.Is(err, aggregator.ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected no session created, got %d", reg.Len())
	}
}

func TestProcess_SendLongFinal(t *testing.T) {
	g, reg := newTestGate()

	out, err := g.Process(jobAt(1, 0), result(longText, true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Disposition != DispositionSend || !out.ShouldSendToSemanticRepair {
		t.Errorf("expected send, got %s (%s)", out.Disposition, out.Reason)
	}
	if out.AggregatedText != longText {
		t.Errorf("expected aggregated text %q, got %q", longText, out.AggregatedText)
	}
	if out.SegmentForJobResult != longText {
		t.Errorf("expected segment %q, got %q", longText, out.SegmentForJobResult)
	}
	if _, ok := reg.GetLastCommittedText("s1", 2); ok {
		t.Error("expected nothing committed before Commit")
	}

	if err := g.Commit(jobAt(1, 0), out); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if text, ok := reg.GetLastCommittedText("s1", 2); !ok || text != longText {
		t.Errorf("expected commit log to hold the sent text, got %q (ok=%v)", text, ok)
	}
}

func TestProcess_UncommittedSendIsNotLastSent(t *testing.T) {
	g, _ := newTestGate()

	first, err := g.Process(jobAt(1, 0), result(longText, true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Disposition != DispositionSend {
		t.Fatalf("expected send, got %s (%s)", first.Disposition, first.Reason)
	}

	// Without Commit the text was never delivered, so the same text later is
	// not a duplicate.
	out, err := g.Process(jobAt(2, 5000), result(longText, true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Disposition != DispositionSend {
		t.Errorf("expected send, got %s (%s)", out.Disposition, out.Reason)
	}
}

func TestCommit_IgnoresNonSend(t *testing.T) {
	g, reg := newTestGate()

	out, err := g.Process(jobAt(1, 0), result("我们明天再去公园吧。", true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Commit(jobAt(1, 0), out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.Held("s1"); !ok {
		t.Error("expected held text kept")
	}
	if _, ok := reg.GetLastCommittedText("s1", 2); ok {
		t.Error("expected nothing committed for a hold")
	}
}

func TestProcess_DiscardTooShort(t *testing.T) {
	g, _ := newTestGate()

	out, err := g.Process(jobAt(1, 0), result("好的。", true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.ShouldDiscard || out.Reason != ReasonTooShort {
		t.Errorf("expected too_short discard, got %s (%s)", out.Disposition, out.Reason)
	}
}

func TestProcess_ManualCutSendsShortText(t *testing.T) {
	g, _ := newTestGate()

	job := jobAt(1, 0)
	job.IsManualCut = true
	out, err := g.Process(job, result("好的谢谢", false), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Disposition != DispositionSend || out.Reason != ReasonForced {
		t.Errorf("expected forced send, got %s (%s)", out.Disposition, out.Reason)
	}
	if out.AggregatedText != "好的谢谢" {
		t.Errorf("expected '好的谢谢', got %q", out.AggregatedText)
	}
}

func TestProcess_HoldThenCombine(t *testing.T) {
	g, _ := newTestGate()

	out, err := g.Process(jobAt(1, 0), result("我们明天再去公园吧。", true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Disposition != DispositionHold || !out.ShouldWaitForMerge {
		t.Errorf("expected hold, got %s (%s)", out.Disposition, out.Reason)
	}
	if out.AggregatedText != "" {
		t.Errorf("expected nothing to send, got %q", out.AggregatedText)
	}
	if held, ok := g.Held("s1"); !ok || held != "我们明天再去公园吧。" {
		t.Errorf("expected held text, got %q (ok=%v)", held, ok)
	}

	second := "下午三点在门口集合大家记得带上水和雨伞还有午饭千万不要迟到了。"
	out, err = g.Process(jobAt(2, 5000), result(second, true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.Held("s1"); !ok {
		t.Error("expected held text kept until the send is committed")
	}
	if out.Disposition != DispositionSend {
		t.Errorf("expected send, got %s (%s)", out.Disposition, out.Reason)
	}
	if want := "我们明天再去公园吧。" + second; out.AggregatedText != want {
		t.Errorf("expected aggregated %q, got %q", want, out.AggregatedText)
	}
	if out.SegmentForJobResult != second {
		t.Errorf("expected segment to be this job's text only, got %q", out.SegmentForJobResult)
	}
	if out.MergedFromPendingUtteranceIndex == nil || *out.MergedFromPendingUtteranceIndex != 1 {
		t.Errorf("expected MergedFromPendingUtteranceIndex 1, got %v", out.MergedFromPendingUtteranceIndex)
	}
	if err := g.Commit(jobAt(2, 5000), out); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if _, ok := g.Held("s1"); ok {
		t.Error("expected held text to be released")
	}
}

func TestProcess_ShortIncompleteUtteranceWaitsForMerge(t *testing.T) {
	g, _ := newTestGate()
	q := 0.4

	r1 := result("天气很好", false)
	r1.QualityScore = &q
	out, err := g.Process(jobAt(1, 0), r1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Disposition != DispositionWait || out.Reason != ReasonPending {
		t.Errorf("expected pending wait, got %s (%s)", out.Disposition, out.Reason)
	}

	// Strong-merge gap: folded into the pending text.
	r2 := result("我们出去", false)
	r2.QualityScore = &q
	out, err = g.Process(jobAt(2, 1200), r2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Action != aggregator.ActionMerge {
		t.Errorf("expected MERGE, got %v", out.Action)
	}
	if !out.ShouldWaitForMerge || out.Reason != ReasonFolded {
		t.Errorf("expected folded wait, got %s (%s)", out.Disposition, out.Reason)
	}
	if out.MergedFromUtteranceIndex == nil || *out.MergedFromUtteranceIndex != 1 {
		t.Errorf("expected MergedFromUtteranceIndex 1, got %v", out.MergedFromUtteranceIndex)
	}

	// Final closes the group; the combined text is still below the send threshold.
	out, err = g.Process(jobAt(3, 2400), result("走走吧。", true), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsLastInMergedGroup {
		t.Error("expected last in merged group")
	}
	if out.Disposition != DispositionHold || !out.ShouldWaitForMerge {
		t.Errorf("expected hold, got %s (%s)", out.Disposition, out.Reason)
	}
	if held, _ := g.Held("s1"); held != "天气很好我们出去走走吧。" {
		t.Errorf("expected held merged text, got %q", held)
	}
}

func TestProcess_DuplicateOfLastSent(t *testing.T) {
	g, _ := newTestGate()

	first, _ := g.Process(jobAt(1, 0), result(longText, true), "")
	if first.Disposition != DispositionSend {
		t.Fatalf("expected first send, got %s", first.Disposition)
	}
	if err := g.Commit(jobAt(1, 0), first); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	out, err := g.Process(jobAt(2, 5000), result(longText, true), longText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.ShouldDiscard {
		t.Errorf("expected discard, got %s", out.Disposition)
	}
	if out.Reason != lastsent.ReasonSameAsLastSent {
		t.Errorf("expected %s, got %s", lastsent.ReasonSameAsLastSent, out.Reason)
	}
}

func TestProcess_ForwardMergeTrimsLastCommitted(t *testing.T) {
	g, _ := newTestGate()

	job := jobAt(5, 0)
	job.IsManualCut = true
	out, err := g.Process(job, result("公园散步之后我们去湖边喝茶聊天一直到傍晚才慢慢走回家里休息。", false), "我们今天去公园散步")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "之后我们去湖边喝茶聊天一直到傍晚才慢慢走回家里休息。"
	if out.AggregatedText != want {
		t.Errorf("expected %q, got %q", want, out.AggregatedText)
	}
	if out.ContextText != "我们今天去公园散步" {
		t.Errorf("expected context text to pass through, got %q", out.ContextText)
	}
}

func TestEndSession_ReleasesHeldAndPending(t *testing.T) {
	g, reg := newTestGate()

	g.Process(jobAt(1, 0), result("我们明天再去公园吧。", true), "")
	out, _ := g.Process(jobAt(2, 5000), result("下午见", false), "")
	if out.Disposition != DispositionWait {
		t.Fatalf("expected wait, got %s (%s)", out.Disposition, out.Reason)
	}

	text, err := g.EndSession("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "我们明天再去公园吧。下午见" {
		t.Errorf("expected released text, got %q", text)
	}
	if reg.Len() != 0 {
		t.Errorf("expected session removed, got %d", reg.Len())
	}
	if _, ok := g.Held("s1"); ok {
		t.Error("expected held text cleared")
	}

	if _, err := g.EndSession(""); !errors.Is(err, aggregator.ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestFlush_SkipsAlreadySentText(t *testing.T) {
	g, _ := newTestGate()

	out, _ := g.Process(jobAt(1, 0), result(longText, true), "")
	if err := g.Commit(jobAt(1, 0), out); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	text, err := g.Flush("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Errorf("expected nothing left to flush, got %q", text)
	}

	g.Process(jobAt(2, 5000), result("明天见", false), longText)
	text, err = g.Flush("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "明天见" {
		t.Errorf("expected '明天见', got %q", text)
	}
}

func TestReleaseEvicted(t *testing.T) {
	g, _ := newTestGate()
	g.Process(jobAt(1, 0), result("我们明天再去公园吧。", true), "")

	if text := g.ReleaseEvicted("s1", "下午见"); text != "我们明天再去公园吧。下午见" {
		t.Errorf("expected combined text, got %q", text)
	}
	if text := g.ReleaseEvicted("s1", ""); text != "" {
		t.Errorf("expected nothing, got %q", text)
	}
}
