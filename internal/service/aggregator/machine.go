package aggregator

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// fallbackUtteranceMs is the duration assumed for an utterance without segment timing.
const fallbackUtteranceMs = 1000

// MergeGroup tracks a run of MERGE utterances forming one pending segment.
type MergeGroup struct {
	StartIndex int64
	StartMs    int64
	DurationMs int64
	Count      int
}

// SessionState is the decision state of one session.
//
// Only one of PendingText and TailBuffer is non-empty at a time: a commit
// empties PendingText and may fill TailBuffer, the next utterance folds the
// tail back into PendingText.
type SessionState struct {
	PendingText    string
	TailBuffer     string
	LastUtterance  *Utterance
	MergeGroup     *MergeGroup
	LastCommitMs   int64
	SessionStartMs int64
	Metrics        Metrics
}

// Machine is the stream state machine of one session. It is not safe for
// concurrent use; callers serialize calls per session.
type Machine struct {
	sessionID string
	tunings   TuningSet
	now       func() time.Time
	log       zerolog.Logger
	state     SessionState
}

// NewMachine creates the state machine for a session.
func NewMachine(sessionID string, tunings TuningSet, now func() time.Time, log zerolog.Logger) *Machine {
	if tunings == nil {
		tunings = DefaultTuningSet()
	}
	if now == nil {
		now = time.Now
	}
	return &Machine{
		sessionID: sessionID,
		tunings:   tunings,
		now:       now,
		log:       log,
		state:     SessionState{SessionStartMs: now().UnixMilli()},
	}
}

// SessionID returns the session the machine belongs to.
func (m *Machine) SessionID() string {
	return m.sessionID
}

// State returns a copy of the current state.
func (m *Machine) State() SessionState {
	s := m.state
	if s.LastUtterance != nil {
		u := *s.LastUtterance
		s.LastUtterance = &u
	}
	if s.MergeGroup != nil {
		g := *s.MergeGroup
		s.MergeGroup = &g
	}
	return s
}

// Process applies one recognizer result to the session and reports whether
// text was committed.
func (m *Machine) Process(in Input) CommitResult {
	t := m.tunings.For(in.Mode)
	nowMs := m.now().UnixMilli()
	st := &m.state

	utt := m.buildUtterance(in, nowMs)
	st.Metrics.Utterances++

	prev := st.LastUtterance
	d := DecideStreamAction(prev, utt, t)
	res := CommitResult{
		Action:     d.Action,
		GapMs:      d.GapMs,
		Score:      d.Score,
		LangSwitch: d.LangSwitch,
	}
	if d.Action == ActionMerge {
		st.Metrics.Merges++
	} else {
		st.Metrics.NewStreams++
	}
	if d.LangSwitch {
		st.Metrics.LangSwitches++
	}

	text := m.dedupAgainstBoundary(utt.Text, prev, d.Action, t)
	carried := st.TailBuffer
	st.TailBuffer = ""

	var flushed string
	if d.Action == ActionNewStream {
		if st.PendingText != "" {
			flushed = st.PendingText
			st.Metrics.Commits++
		}
		st.PendingText = JoinText(carried, text)
		st.MergeGroup = nil
	} else {
		m.trackMergeGroup(prev, utt, &res)
		st.PendingText = JoinText(JoinText(st.PendingText, carried), text)
	}

	trigger := m.commitTrigger(utt, t)
	var committed string
	if trigger != TriggerNone && st.PendingText != "" {
		committed = st.PendingText
		if trigger == TriggerMergeGroupAge || trigger == TriggerPendingLength {
			head, tail := SplitTail(committed, t)
			if tail != "" {
				committed = head
				st.TailBuffer = tail
				st.Metrics.TailCarries++
			}
		}
		st.PendingText = ""
		if d.Action == ActionMerge && st.MergeGroup != nil {
			res.IsLastInMergedGroup = true
		}
		st.Metrics.Commits++
	}
	if trigger != TriggerNone {
		st.MergeGroup = nil
	}

	res.FlushedText = flushed
	res.Text = JoinText(flushed, committed)
	switch {
	case committed != "":
		res.Trigger = trigger
	case flushed != "":
		res.Trigger = TriggerNewStreamFlush
	}
	if res.Text != "" {
		st.LastCommitMs = nowMs
	}

	st.LastUtterance = &utt
	res.Metrics = st.Metrics

	m.log.Debug().
		Int64("utteranceIndex", utt.Index).
		Str("action", d.Action.String()).
		Str("reason", d.Reason).
		Int64("gapMs", d.GapMs).
		Int("score", d.Score).
		Str("trigger", string(res.Trigger)).
		Int("committedChars", CharLen(res.Text)).
		Msg("Utterance processed")

	return res
}

// Flush releases all pending and held-back text and closes any merge group.
func (m *Machine) Flush() string {
	st := &m.state
	out := JoinText(st.PendingText, st.TailBuffer)
	st.PendingText = ""
	st.TailBuffer = ""
	st.MergeGroup = nil
	if out != "" {
		st.Metrics.Commits++
		st.LastCommitMs = m.now().UnixMilli()
	}
	return out
}

// dedupAgainstBoundary trims the start of text that restates the end of the
// text it will be joined to: the held tail, else the pending text on MERGE.
func (m *Machine) dedupAgainstBoundary(text string, prev *Utterance, action Action, t Tuning) string {
	st := &m.state
	ref := st.TailBuffer
	if ref == "" && action == ActionMerge {
		ref = st.PendingText
		if ref == "" && prev != nil {
			ref = prev.Text
		}
	}
	if ref == "" || text == "" {
		return text
	}

	br := DedupBoundary(ref, text, OverlapConfig{MinOverlap: t.DedupMinOverlap, MaxOverlap: t.DedupMaxOverlap})
	if br.Protected {
		st.Metrics.ProtectedDedups++
	}
	if br.Trimmed {
		st.Metrics.BoundaryDedups++
		st.Metrics.BoundaryCharsCut += br.OverlapLen
	}
	return br.Text
}

// trackMergeGroup opens or extends the merge group for a MERGE utterance.
func (m *Machine) trackMergeGroup(prev *Utterance, utt Utterance, res *CommitResult) {
	st := &m.state
	g := st.MergeGroup
	switch {
	case g == nil && st.PendingText == "":
		st.MergeGroup = &MergeGroup{
			StartIndex: utt.Index,
			StartMs:    utt.StartMs,
			DurationMs: utt.DurationMs(),
			Count:      1,
		}
		res.IsFirstInMergedGroup = true
	case g == nil:
		// Pending text opened by a NEW_STREAM utterance becomes the group head.
		st.MergeGroup = &MergeGroup{
			StartIndex: prev.Index,
			StartMs:    prev.StartMs,
			DurationMs: prev.DurationMs() + utt.DurationMs(),
			Count:      2,
		}
	default:
		g.DurationMs += utt.DurationMs()
		g.Count++
	}
	if start := st.MergeGroup.StartIndex; start != utt.Index {
		res.MergedFromIndex = &start
	}
}

// commitTrigger decides whether pending text is released after this utterance.
func (m *Machine) commitTrigger(utt Utterance, t Tuning) CommitTrigger {
	st := &m.state
	switch {
	case utt.Flags.IsManualCut:
		return TriggerManualCut
	case utt.Flags.IsTimeoutTriggered:
		return TriggerTimeout
	case utt.Flags.IsFinal:
		return TriggerFinal
	}
	if g := st.MergeGroup; g != nil {
		age := utt.EndMs - g.StartMs
		if g.DurationMs > age {
			age = g.DurationMs
		}
		if age >= t.MergeGroupTimeoutMs {
			st.Metrics.MergeGroupTimeouts++
			return TriggerMergeGroupAge
		}
	}
	if pendingTooLong(st.PendingText, t) {
		return TriggerPendingLength
	}
	return TriggerNone
}

func pendingTooLong(text string, t Tuning) bool {
	if text == "" {
		return false
	}
	if isCJKDominant(text) {
		return t.CommitLenCjk > 0 && cjkCount(text) >= t.CommitLenCjk
	}
	return t.CommitLenWords > 0 && wordCount(text) >= t.CommitLenWords
}

// buildUtterance derives session-relative timestamps and cleans the text.
// Segment times are relative to the job audio; without them the utterance is
// assumed to have just ended and to have lasted about a second.
func (m *Machine) buildUtterance(in Input, nowMs int64) Utterance {
	text := collapseSpace(in.Text)
	if cleaned := DedupInternalRepetition(text); cleaned != text {
		m.state.Metrics.InternalRepeats++
		text = cleaned
	}

	sinceStart := nowMs - m.state.SessionStartMs
	var start, end int64
	if len(in.Segments) > 0 {
		first, last := in.Segments[0].Start, in.Segments[0].End
		for _, s := range in.Segments[1:] {
			if s.Start < first {
				first = s.Start
			}
			if s.End > last {
				last = s.End
			}
		}
		firstMs, lastMs := int64(first*1000), int64(last*1000)
		base := sinceStart - lastMs
		if in.AudioOffsetMs != nil {
			base = *in.AudioOffsetMs
		}
		start, end = base+firstMs, base+lastMs
	} else if in.AudioOffsetMs != nil {
		start = *in.AudioOffsetMs
		end = start + fallbackUtteranceMs
	} else {
		end = sinceStart
		start = end - fallbackUtteranceMs
	}
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}

	return Utterance{
		Index:        in.Index,
		Text:         strings.TrimSpace(text),
		StartMs:      start,
		EndMs:        end,
		Lang:         in.Lang,
		QualityScore: in.QualityScore,
		Flags:        in.Flags,
	}
}
