// Package aggregator turns a noisy stream of recognizer utterances into
// well-formed, non-duplicated text segments.
//
// One Machine holds the decision state of one session. The Registry owns the
// machines of all live sessions and evicts idle ones. Callers serialize calls
// per session; different sessions may be processed concurrently.
package aggregator

import (
	"errors"
	"fmt"
)

// Action is the stream decision taken for an utterance.
type Action int

const (
	// ActionNewStream starts a fresh segment. It is the initial state.
	ActionNewStream Action = iota
	// ActionMerge folds the utterance into the current pending segment.
	ActionMerge
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionNewStream:
		return "NEW_STREAM"
	case ActionMerge:
		return "MERGE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", a)
	}
}

// Mode selects a tuning profile.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeRoom    Mode = "room"
)

// CommitTrigger names why pending text was released.
type CommitTrigger string

const (
	TriggerNone           CommitTrigger = ""
	TriggerManualCut      CommitTrigger = "manual_cut"
	TriggerTimeout        CommitTrigger = "timeout"
	TriggerFinal          CommitTrigger = "final"
	TriggerMergeGroupAge  CommitTrigger = "merge_group_age"
	TriggerPendingLength  CommitTrigger = "pending_length"
	TriggerNewStreamFlush CommitTrigger = "new_stream_flush"
	TriggerExplicitFlush  CommitTrigger = "flush"
)

// ErrEmptySessionID is returned when a session id is blank.
var ErrEmptySessionID = errors.New("session id is required")

// LangProbs carries the recognizer's language identification for one utterance.
type LangProbs struct {
	Top1 string
	P1   float64
	Top2 string
	P2   float64
}

// Flags are the boundary markers an utterance arrives with.
type Flags struct {
	IsFinal            bool
	IsManualCut        bool
	IsTimeoutTriggered bool
}

// Forced reports whether the utterance ends on a manual or pause boundary.
func (f Flags) Forced() bool {
	return f.IsManualCut || f.IsTimeoutTriggered
}

// Utterance is one recognizer result with session-relative timestamps.
// It is immutable after construction.
type Utterance struct {
	Index        int64
	Text         string
	StartMs      int64
	EndMs        int64
	Lang         LangProbs
	QualityScore *float64
	Flags        Flags
}

// DurationMs returns the utterance audio duration, never negative.
func (u Utterance) DurationMs() int64 {
	if u.EndMs < u.StartMs {
		return 0
	}
	return u.EndMs - u.StartMs
}

// Segment is a recognizer word/phrase span in seconds relative to the job audio.
type Segment struct {
	Start float64
	End   float64
}

// Input is everything the state machine needs for one recognizer callback.
type Input struct {
	Index        int64
	Text         string
	Segments     []Segment
	Lang         LangProbs
	QualityScore *float64
	Flags        Flags
	Mode         Mode
	// AudioOffsetMs is the job audio start relative to the session audio start.
	// Nil when unknown.
	AudioOffsetMs *int64
}

// Metrics are cumulative per-session counters.
type Metrics struct {
	Utterances         int
	Merges             int
	NewStreams         int
	Commits            int
	LangSwitches       int
	BoundaryDedups     int
	BoundaryCharsCut   int
	ProtectedDedups    int
	InternalRepeats    int
	TailCarries        int
	MergeGroupTimeouts int
}

// CommitResult is produced by every ProcessUtterance call.
type CommitResult struct {
	// Text is all text released by this call. Empty when nothing was committed.
	Text string
	// FlushedText is the previous pending text released by a NEW_STREAM boundary.
	FlushedText string
	Action      Action
	Trigger     CommitTrigger

	IsFirstInMergedGroup bool
	IsLastInMergedGroup  bool
	// MergedFromIndex is the utterance index this one was folded onto. Nil when
	// the utterance did not join an earlier one.
	MergedFromIndex *int64

	// Gap, Score and LangSwitch explain the decision.
	GapMs      int64
	Score      int
	LangSwitch bool

	Metrics Metrics
}

// Committed reports whether any text was released.
func (r CommitResult) Committed() bool {
	return r.Text != ""
}
