// Package gate turns aggregation commits into per-job dispositions: send,
// hold for merge, wait (folded into pending text) or discard.
//
// The gate drives the session state machine and the last-sent deduplicator
// together. It keeps two text views apart: AggregatedText is what goes to
// semantic repair and translation, SegmentForJobResult is only this job's own
// contribution and is used for echo and bookkeeping.
package gate

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
	"github.com/TinoTau/lingua-1-sub000/internal/service/lastsent"
)

// Disposition is what the caller should do with a job.
type Disposition string

const (
	// DispositionSend forwards AggregatedText downstream.
	DispositionSend Disposition = "send"
	// DispositionHold keeps the text in the gate until a later job extends it.
	DispositionHold Disposition = "hold"
	// DispositionWait means the utterance was folded into pending text.
	DispositionWait Disposition = "wait"
	// DispositionDiscard drops the job.
	DispositionDiscard Disposition = "discard"
)

// Reasons reported alongside a disposition. Duplicates report the last-sent
// verdict reason instead.
const (
	ReasonFolded       = "folded"
	ReasonPending      = "pending"
	ReasonEmpty        = "empty"
	ReasonForwardMerge = "forward_merge_full"
	ReasonForced       = "forced"
	ReasonLongEnough   = "long_enough"
	ReasonTooShort     = "too_short"
	ReasonBelowSend    = "below_send_threshold"
)

// Config holds the gate thresholds.
type Config struct {
	// Text shorter than DiscardBelowChars is dropped.
	DiscardBelowChars int
	// Text at or above SendAtChars is sent; anything between is held.
	SendAtChars int
	// Overlap bounds forward-merge trimming against the last committed text.
	Overlap aggregator.OverlapConfig
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		DiscardBelowChars: 6,
		SendAtChars:       40,
		Overlap:           aggregator.OverlapConfig{MinOverlap: 3, MaxOverlap: 20},
	}
}

// Result is the gate output for one job.
type Result struct {
	// AggregatedText is the text to send: held text plus this segment.
	AggregatedText string
	// SegmentForJobResult is this job's contribution alone.
	SegmentForJobResult string
	// ContextText is the previous committed text, passed through as
	// micro-context for semantic repair and translation.
	ContextText string

	ShouldDiscard              bool
	ShouldWaitForMerge         bool
	ShouldSendToSemanticRepair bool

	IsLastInMergedGroup bool
	// MergedFromUtteranceIndex is the first utterance of the merge group this
	// job joined. Downstream work started for that index is redundant.
	MergedFromUtteranceIndex *int64
	// MergedFromPendingUtteranceIndex is the first utterance of held text
	// released together with this job.
	MergedFromPendingUtteranceIndex *int64

	Action      aggregator.Action
	Trigger     aggregator.CommitTrigger
	Disposition Disposition
	Reason      string
	Metrics     aggregator.Metrics
}

type heldSegment struct {
	text  string
	index int64
}

// Gate is safe for concurrent use across sessions. Calls for one session
// must be serialized by the caller.
type Gate struct {
	cfg      Config
	registry *aggregator.Registry
	lastSent *lastsent.Deduplicator
	log      zerolog.Logger

	mu   sync.Mutex
	held map[string]heldSegment
}

// New creates a gate over a session registry and a last-sent deduplicator.
func New(cfg Config, registry *aggregator.Registry, lastSent *lastsent.Deduplicator) *Gate {
	def := DefaultConfig()
	if cfg.DiscardBelowChars <= 0 {
		cfg.DiscardBelowChars = def.DiscardBelowChars
	}
	if cfg.SendAtChars <= 0 {
		cfg.SendAtChars = def.SendAtChars
	}
	if cfg.Overlap.MinOverlap <= 0 {
		cfg.Overlap = def.Overlap
	}
	return &Gate{
		cfg:      cfg,
		registry: registry,
		lastSent: lastSent,
		log:      logging.WithComponent("gate"),
		held:     make(map[string]heldSegment),
	}
}

// Process runs one recognizer result through aggregation and classifies it.
func (g *Gate) Process(job asr.Job, res asr.Result, lastCommittedText string) (Result, error) {
	if strings.TrimSpace(job.SessionID) == "" {
		return Result{}, aggregator.ErrEmptySessionID
	}

	cr, err := g.registry.ProcessUtterance(job.SessionID, asr.Input(job, res))
	if err != nil {
		return Result{}, err
	}

	out := Result{
		ContextText:              lastCommittedText,
		IsLastInMergedGroup:      cr.IsLastInMergedGroup,
		MergedFromUtteranceIndex: cr.MergedFromIndex,
		Action:                   cr.Action,
		Trigger:                  cr.Trigger,
		Metrics:                  cr.Metrics,
	}

	if !cr.Committed() {
		st, _ := g.registry.State(job.SessionID)
		switch {
		case cr.Action == aggregator.ActionMerge:
			g.finish(job, &out, DispositionWait, ReasonFolded)
		case st.PendingText != "" || st.TailBuffer != "":
			g.finish(job, &out, DispositionWait, ReasonPending)
		default:
			g.finish(job, &out, DispositionDiscard, ReasonEmpty)
		}
		return out, nil
	}

	v := g.lastSent.Check(job.SessionID, cr.Text)
	if v.IsDuplicate || v.DeduplicatedText == "" {
		g.finish(job, &out, DispositionDiscard, v.Reason)
		return out, nil
	}

	br := aggregator.DedupBoundary(lastCommittedText, v.DeduplicatedText, g.cfg.Overlap)
	segment := br.Text
	if segment == "" {
		g.finish(job, &out, DispositionDiscard, ReasonForwardMerge)
		return out, nil
	}

	combined, firstIndex := segment, job.UtteranceIndex
	if h, ok := g.peekHeld(job.SessionID); ok {
		combined = aggregator.JoinText(h.text, segment)
		firstIndex = h.index
		idx := h.index
		out.MergedFromPendingUtteranceIndex = &idx
	}
	out.SegmentForJobResult = segment

	forced := job.IsManualCut || job.IsTimeoutTriggered
	n := aggregator.CharLen(combined)
	switch {
	case forced:
		out.AggregatedText = combined
		g.finish(job, &out, DispositionSend, ReasonForced)
	case n >= g.cfg.SendAtChars:
		out.AggregatedText = combined
		g.finish(job, &out, DispositionSend, ReasonLongEnough)
	case n < g.cfg.DiscardBelowChars:
		g.finish(job, &out, DispositionDiscard, ReasonTooShort)
	default:
		g.mu.Lock()
		g.held[job.SessionID] = heldSegment{text: combined, index: firstIndex}
		g.mu.Unlock()
		g.finish(job, &out, DispositionHold, ReasonBelowSend)
	}
	return out, nil
}

// Commit applies a send decision once its text has been delivered: the held
// text it absorbed is released, and the text becomes the session's last-sent
// and last-committed text. Process leaves this state untouched so a send
// whose delivery failed can be retried with the same Result.
func (g *Gate) Commit(job asr.Job, out Result) error {
	if out.Disposition != DispositionSend {
		return nil
	}
	if out.MergedFromPendingUtteranceIndex != nil {
		g.mu.Lock()
		if h, ok := g.held[job.SessionID]; ok && h.index == *out.MergedFromPendingUtteranceIndex {
			delete(g.held, job.SessionID)
		}
		g.mu.Unlock()
	}
	g.lastSent.Record(job.SessionID, out.AggregatedText)
	return g.registry.RecordCommit(job.SessionID, job.UtteranceIndex, out.AggregatedText)
}

// Flush releases held and pending text of a session without ending it.
// It returns the text to deliver, empty when nothing new remains.
func (g *Gate) Flush(sessionID string) (string, error) {
	flushed, err := g.registry.Flush(sessionID)
	if err != nil {
		return "", err
	}
	return g.release(sessionID, flushed, false), nil
}

// EndSession flushes and removes a session and forgets its last-sent text.
func (g *Gate) EndSession(sessionID string) (string, error) {
	flushed, err := g.registry.RemoveSession(sessionID)
	if err != nil {
		return "", err
	}
	return g.release(sessionID, flushed, true), nil
}

// ReleaseEvicted combines text flushed by a registry eviction with any held
// text of that session. The session's gate state is dropped.
func (g *Gate) ReleaseEvicted(sessionID, flushed string) string {
	return g.release(sessionID, flushed, true)
}

// Held returns the held text of a session.
func (g *Gate) Held(sessionID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.held[sessionID]
	return h.text, ok
}

func (g *Gate) release(sessionID, flushed string, forget bool) string {
	text := flushed
	if h, ok := g.takeHeld(sessionID); ok {
		text = aggregator.JoinText(h.text, flushed)
	}
	defer func() {
		if forget {
			g.lastSent.Remove(sessionID)
		}
	}()
	if strings.TrimSpace(text) == "" {
		return ""
	}

	v := g.lastSent.Check(sessionID, text)
	if v.IsDuplicate || v.DeduplicatedText == "" {
		metrics.DefaultMetrics.RecordGateDisposition(string(DispositionDiscard))
		return ""
	}
	if !forget {
		g.lastSent.Record(sessionID, v.DeduplicatedText)
	}
	metrics.DefaultMetrics.RecordGateDisposition(string(DispositionSend))
	g.log.Info().
		Str("sessionId", sessionID).
		Int("chars", aggregator.CharLen(v.DeduplicatedText)).
		Bool("ended", forget).
		Msg("Session text released")
	return v.DeduplicatedText
}

func (g *Gate) peekHeld(sessionID string) (heldSegment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.held[sessionID]
	return h, ok
}

func (g *Gate) takeHeld(sessionID string) (heldSegment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.held[sessionID]
	if ok {
		delete(g.held, sessionID)
	}
	return h, ok
}

func (g *Gate) finish(job asr.Job, out *Result, d Disposition, reason string) {
	out.Disposition = d
	out.Reason = reason
	out.ShouldDiscard = d == DispositionDiscard
	out.ShouldWaitForMerge = d == DispositionHold || d == DispositionWait
	out.ShouldSendToSemanticRepair = d == DispositionSend

	metrics.DefaultMetrics.RecordGateDisposition(string(d))
	g.log.Debug().
		Str("sessionId", job.SessionID).
		Int64("utteranceIndex", job.UtteranceIndex).
		Str("disposition", string(d)).
		Str("reason", reason).
		Int("chars", aggregator.CharLen(out.AggregatedText)).
		Msg("Gate decision")
}
