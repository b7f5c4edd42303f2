// Package postprocess is the per-job post-processing stage: it guards against
// replayed jobs, runs the aggregation gate and publishes what the gate releases.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/events"
	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
	"github.com/TinoTau/lingua-1-sub000/internal/service/gate"
	"github.com/TinoTau/lingua-1-sub000/internal/service/segment"
)

// evictionPublishTimeout bounds publishing text flushed by a background eviction.
const evictionPublishTimeout = 5 * time.Second

// Validator checks an event before it is published.
type Validator interface {
	Validate(event any) error
}

// Outcome is the result of handling one job.
type Outcome struct {
	gate.Result
	// SegmentID is set when a segment was published.
	SegmentID string
	// Duplicate is true when the job was already handled and was skipped.
	Duplicate bool
}

// Handler wires the gate, the disposition ledger and the event publisher.
type Handler struct {
	gate      *gate.Gate
	registry  *aggregator.Registry
	ledger    *segment.Ledger
	publisher *events.Publisher
	validator Validator
	mode      aggregator.Mode
	now       func() time.Time
	log       zerolog.Logger

	// unsent keeps send decisions whose publish failed, by job, so a retry
	// republishes the same text instead of re-running aggregation.
	mu     sync.Mutex
	unsent map[jobKey]gate.Result
}

type jobKey struct {
	sessionID string
	index     int64
}

// NewHandler creates a post-processing handler.
func NewHandler(
	g *gate.Gate,
	registry *aggregator.Registry,
	ledger *segment.Ledger,
	publisher *events.Publisher,
	validator Validator,
) *Handler {
	return &Handler{
		gate:      g,
		registry:  registry,
		ledger:    ledger,
		publisher: publisher,
		validator: validator,
		mode:      aggregator.ModeOffline,
		now:       time.Now,
		log:       logging.WithComponent("postprocess"),
		unsent:    make(map[jobKey]gate.Result),
	}
}

// SetDefaultMode sets the tuning mode used for jobs that carry none.
func (h *Handler) SetDefaultMode(mode aggregator.Mode) {
	if mode != "" {
		h.mode = mode
	}
}

// HandleJob processes one recognizer result. A job whose utterance index was
// already handled is skipped and reported as a duplicate.
func (h *Handler) HandleJob(ctx context.Context, job asr.Job, res asr.Result) (Outcome, error) {
	if strings.TrimSpace(job.SessionID) == "" {
		return Outcome{}, aggregator.ErrEmptySessionID
	}
	if job.Mode == "" {
		job.Mode = h.mode
	}
	log := logging.WithJob(job.SessionID, job.UtteranceIndex)

	if err := h.ledger.Begin(job.SessionID, job.UtteranceIndex); err != nil {
		if errors.Is(err, segment.ErrAlreadySent) || errors.Is(err, segment.ErrAlreadyProcessed) {
			metrics.DefaultMetrics.RecordDuplicateJob()
			log.Warn().Err(err).Msg("Skipping job already handled")
			return Outcome{
				Result:    gate.Result{Disposition: gate.DispositionDiscard, ShouldDiscard: true, Reason: "duplicate_job"},
				Duplicate: true,
			}, nil
		}
		return Outcome{}, err
	}

	key := jobKey{sessionID: job.SessionID, index: job.UtteranceIndex}
	gr, retried := h.takeUnsent(key)
	if !retried {
		lastCommitted, _ := h.registry.GetLastCommittedText(job.SessionID, job.UtteranceIndex)
		var err error
		gr, err = h.gate.Process(job, res, lastCommitted)
		if err != nil {
			return Outcome{}, fmt.Errorf("gate: %w", err)
		}
	}
	out := Outcome{Result: gr}

	switch gr.Disposition {
	case gate.DispositionWait:
		h.resolve(job, segment.DispositionFolded)
		if gr.MergedFromUtteranceIndex != nil {
			h.publishMerge(ctx, job, *gr.MergedFromUtteranceIndex)
		}
	case gate.DispositionHold:
		h.resolve(job, segment.DispositionHeld)
	case gate.DispositionDiscard:
		h.resolve(job, segment.DispositionDiscarded)
	case gate.DispositionSend:
		ev := h.segmentEvent(models.EventSegmentAggregated, job.SessionID, job.UtteranceIndex, gr.AggregatedText)
		ev.SegmentText = gr.SegmentForJobResult
		ev.ContextText = gr.ContextText
		ev.Trigger = string(gr.Trigger)
		ev.MergedFromPendingUtteranceIndex = gr.MergedFromPendingUtteranceIndex
		if err := h.publishSegment(ctx, ev); err != nil {
			// Left PENDING so an orchestrator retry is not rejected as a duplicate.
			h.mu.Lock()
			h.unsent[key] = gr
			h.mu.Unlock()
			return out, err
		}
		out.SegmentID = ev.SegmentID
		if err := h.gate.Commit(job, gr); err != nil {
			log.Error().Err(err).Msg("Failed to record committed text")
		}
		h.resolve(job, segment.DispositionSent)
		h.ledger.ResolveOpen(job.SessionID, job.UtteranceIndex, segment.DispositionSent)
	}

	log.Debug().
		Str("disposition", string(gr.Disposition)).
		Str("reason", gr.Reason).
		Str("segmentId", out.SegmentID).
		Bool("retried", retried).
		Msg("Job handled")
	return out, nil
}

// LastCommitted returns the committed text preceding an utterance index.
func (h *Handler) LastCommitted(sessionID string, currentIndex int64) (string, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", false, aggregator.ErrEmptySessionID
	}
	text, ok := h.registry.GetLastCommittedText(sessionID, currentIndex)
	return text, ok, nil
}

// Flush publishes held and pending text of a session and keeps it open.
func (h *Handler) Flush(ctx context.Context, sessionID string) (string, error) {
	text, err := h.gate.Flush(sessionID)
	if err != nil {
		return "", err
	}
	if err := h.publishFlushed(ctx, sessionID, text); err != nil {
		return "", err
	}
	return text, nil
}

// EndSession publishes the remaining text of a session and releases all its state.
func (h *Handler) EndSession(ctx context.Context, sessionID string) (string, error) {
	text, err := h.gate.EndSession(sessionID)
	if err != nil {
		return "", err
	}
	err = h.publishFlushed(ctx, sessionID, text)
	h.ledger.Forget(sessionID)
	h.dropUnsent(sessionID)
	if err != nil {
		return "", err
	}
	log := logging.WithSession(sessionID)
	log.Info().
		Int("flushedChars", aggregator.CharLen(text)).
		Msg("Session ended")
	return text, nil
}

// OnEvict publishes text flushed by a registry eviction. It matches
// aggregator.EvictionHandler.
func (h *Handler) OnEvict(sessionID, flushed string, cause aggregator.EvictionCause) {
	text := h.gate.ReleaseEvicted(sessionID, flushed)

	ctx, cancel := context.WithTimeout(context.Background(), evictionPublishTimeout)
	defer cancel()
	if err := h.publishFlushed(ctx, sessionID, text); err != nil {
		h.log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("cause", string(cause)).
			Msg("Failed to publish evicted session text")
	}
	h.ledger.Forget(sessionID)
	h.dropUnsent(sessionID)
	h.log.Info().
		Str("sessionId", sessionID).
		Str("cause", string(cause)).
		Int("flushedChars", aggregator.CharLen(text)).
		Msg("Session evicted")
}

func (h *Handler) publishFlushed(ctx context.Context, sessionID, text string) error {
	if text == "" {
		return nil
	}
	index, _ := h.ledger.LastIndex(sessionID)
	ev := h.segmentEvent(models.EventSegmentFlushed, sessionID, index, text)
	ev.SegmentText = text
	ev.Trigger = string(aggregator.TriggerExplicitFlush)
	if err := h.publishSegment(ctx, ev); err != nil {
		return err
	}
	h.ledger.ResolveOpen(sessionID, math.MaxInt64, segment.DispositionSent)
	return nil
}

func (h *Handler) takeUnsent(key jobKey) (gate.Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	gr, ok := h.unsent[key]
	if ok {
		delete(h.unsent, key)
	}
	return gr, ok
}

func (h *Handler) dropUnsent(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.unsent {
		if k.sessionID == sessionID {
			delete(h.unsent, k)
		}
	}
}

func (h *Handler) resolve(job asr.Job, d segment.Disposition) {
	if err := h.ledger.Resolve(job.SessionID, job.UtteranceIndex, d); err != nil {
		h.log.Warn().Err(err).
			Str("sessionId", job.SessionID).
			Int64("utteranceIndex", job.UtteranceIndex).
			Msg("Ledger transition rejected")
	}
}

func (h *Handler) segmentEvent(eventType, sessionID string, index int64, text string) models.SegmentEvent {
	return models.SegmentEvent{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		SessionID:      sessionID,
		SegmentID:      h.ledger.NextSegmentID(sessionID),
		UtteranceIndex: index,
		Timestamp:      h.now().UnixMilli(),
		Text:           text,
	}
}

func (h *Handler) publishSegment(ctx context.Context, ev models.SegmentEvent) error {
	if err := h.validator.Validate(ev); err != nil {
		return fmt.Errorf("invalid segment event: %w", err)
	}
	if err := h.publisher.PublishSegment(ctx, ev.SessionID, ev); err != nil {
		return fmt.Errorf("publish segment: %w", err)
	}
	return nil
}

func (h *Handler) publishMerge(ctx context.Context, job asr.Job, mergedFrom int64) {
	ev := models.MergeNotice{
		EventID:                  uuid.NewString(),
		EventType:                models.EventUtteranceMerged,
		SessionID:                job.SessionID,
		UtteranceIndex:           job.UtteranceIndex,
		MergedFromUtteranceIndex: mergedFrom,
		Timestamp:                h.now().UnixMilli(),
	}
	if err := h.validator.Validate(ev); err != nil {
		h.log.Error().Err(err).Msg("Invalid merge notice")
		return
	}
	if err := h.publisher.PublishMerge(ctx, job.SessionID, ev); err != nil {
		h.log.Warn().Err(err).
			Str("sessionId", job.SessionID).
			Int64("utteranceIndex", job.UtteranceIndex).
			Msg("Failed to publish merge notice")
	}
}

// Response converts the outcome to its wire form.
func (o Outcome) Response() models.JobResponse {
	return models.JobResponse{
		AggregatedText:                  o.AggregatedText,
		SegmentForJobResult:             o.SegmentForJobResult,
		ContextText:                     o.ContextText,
		ShouldDiscard:                   o.ShouldDiscard,
		ShouldWaitForMerge:              o.ShouldWaitForMerge,
		ShouldSendToSemanticRepair:      o.ShouldSendToSemanticRepair,
		IsLastInMergedGroup:             o.IsLastInMergedGroup,
		MergedFromUtteranceIndex:        o.MergedFromUtteranceIndex,
		MergedFromPendingUtteranceIndex: o.MergedFromPendingUtteranceIndex,
		Action:                          o.Action.String(),
		Disposition:                     string(o.Disposition),
		Reason:                          o.Reason,
		SegmentID:                       o.SegmentID,
		Duplicate:                       o.Duplicate,
	}
}
