// Package asr defines the recognizer result contract consumed by the aggregation pipeline.
package asr

import (
	"context"
	"sort"

	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
)

// Segment is a word or phrase span in seconds relative to the job audio start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is one recognizer callback for a job.
type Result struct {
	Text                  string             `json:"text"`
	Segments              []Segment          `json:"segments,omitempty"`
	Language              string             `json:"language,omitempty"`
	LanguageProbability   float64            `json:"language_probability,omitempty"`
	LanguageProbabilities map[string]float64 `json:"language_probabilities,omitempty"`
	QualityScore          *float64           `json:"quality_score,omitempty"`
	IsFinal               bool               `json:"is_final"`
}

// Job identifies the utterance a result belongs to and carries the boundary
// flags set by the orchestrator.
type Job struct {
	SessionID          string          `json:"session_id"`
	UtteranceIndex     int64           `json:"utterance_index"`
	Mode               aggregator.Mode `json:"mode,omitempty"`
	IsManualCut        bool            `json:"is_manual_cut,omitempty"`
	IsTimeoutTriggered bool            `json:"is_timeout_triggered,omitempty"`
	// AudioOffsetMs is the job audio start relative to the session audio start.
	AudioOffsetMs *int64 `json:"audio_offset_ms,omitempty"`
}

// Source yields recognizer results in utterance order.
type Source interface {
	// Next returns the next job and its result. It returns io.EOF when the
	// stream is exhausted.
	Next(ctx context.Context) (Job, Result, error)

	// Close releases resources.
	Close() error
}

// LangProbs picks the top two languages. The probability map wins over the
// single language fields when both are present.
func (r Result) LangProbs() aggregator.LangProbs {
	if len(r.LanguageProbabilities) == 0 {
		return aggregator.LangProbs{Top1: r.Language, P1: r.LanguageProbability}
	}

	type lp struct {
		lang string
		p    float64
	}
	ranked := make([]lp, 0, len(r.LanguageProbabilities))
	for lang, p := range r.LanguageProbabilities {
		ranked = append(ranked, lp{lang, p})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].p != ranked[j].p {
			return ranked[i].p > ranked[j].p
		}
		return ranked[i].lang < ranked[j].lang
	})

	out := aggregator.LangProbs{Top1: ranked[0].lang, P1: ranked[0].p}
	if len(ranked) > 1 {
		out.Top2, out.P2 = ranked[1].lang, ranked[1].p
	}
	return out
}

// Input converts a job and its result into aggregator input.
func Input(job Job, r Result) aggregator.Input {
	segs := make([]aggregator.Segment, len(r.Segments))
	for i, s := range r.Segments {
		segs[i] = aggregator.Segment{Start: s.Start, End: s.End}
	}
	return aggregator.Input{
		Index:        job.UtteranceIndex,
		Text:         r.Text,
		Segments:     segs,
		Lang:         r.LangProbs(),
		QualityScore: r.QualityScore,
		Flags: aggregator.Flags{
			IsFinal:            r.IsFinal,
			IsManualCut:        job.IsManualCut,
			IsTimeoutTriggered: job.IsTimeoutTriggered,
		},
		Mode:          job.Mode,
		AudioOffsetMs: job.AudioOffsetMs,
	}
}
