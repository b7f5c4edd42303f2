// Package mock provides a scripted recognizer for exercising the aggregation
// pipeline without a speech model. It reproduces the recognizer artifacts the
// pipeline has to clean up: fragments split across utterances, hangover (the
// start of an utterance restating the end of the previous one) and stutter.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("recognizer closed")

// ScriptedUtterance is one recognizer result to replay.
type ScriptedUtterance struct {
	Text        string
	Language    string
	Probability float64
	Quality     float64 // 0 means not reported
	DurationMs  int64
	GapMs       int64 // silence before this utterance
	Final       bool
	ManualCut   bool
	Hangover    int  // trailing runes of the previous text restated first
	Stutter     bool // recognizer echoes the whole text twice
}

// DefaultScript is a short bilingual session with the usual artifacts.
var DefaultScript = []ScriptedUtterance{
	{Text: "我们今天", Language: "zh", Probability: 0.93, Quality: 0.9, DurationMs: 900, GapMs: 0},
	{Text: "去公园散步", Language: "zh", Probability: 0.91, Quality: 0.88, DurationMs: 1100, GapMs: 250},
	{Text: "然后回家。", Language: "zh", Probability: 0.94, Quality: 0.9, DurationMs: 800, GapMs: 300, Final: true},
	{Text: "天气很好", Language: "zh", Probability: 0.9, Quality: 0.4, DurationMs: 700, GapMs: 2600, Stutter: true},
	{Text: "我们出去走走吧。", Language: "zh", Probability: 0.92, Quality: 0.85, DurationMs: 1200, GapMs: 400, Hangover: 2, Final: true},
	{Text: "I want to cancel", Language: "en", Probability: 0.95, Quality: 0.9, DurationMs: 1300, GapMs: 2200},
	{Text: "my subscription please.", Language: "en", Probability: 0.96, Quality: 0.92, DurationMs: 1500, GapMs: 350, Final: true, ManualCut: true},
}

// Recognizer implements asr.Source by replaying a script for one session.
type Recognizer struct {
	mu        sync.Mutex
	sessionID string
	mode      aggregator.Mode
	script    []ScriptedUtterance
	pos       int
	prevEnd   int64
	prevText  string
	closed    bool
}

// New creates a recognizer replaying script for sessionID. A nil script
// replays DefaultScript.
func New(sessionID string, mode aggregator.Mode, script []ScriptedUtterance) *Recognizer {
	if script == nil {
		script = DefaultScript
	}
	return &Recognizer{
		sessionID: sessionID,
		mode:      mode,
		script:    script,
	}
}

// Next returns the next scripted job and result, or io.EOF.
func (r *Recognizer) Next(ctx context.Context) (asr.Job, asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Job{}, asr.Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return asr.Job{}, asr.Result{}, ErrClosed
	}
	if r.pos >= len(r.script) {
		return asr.Job{}, asr.Result{}, io.EOF
	}

	u := r.script[r.pos]
	r.pos++

	start := r.prevEnd + u.GapMs
	r.prevEnd = start + u.DurationMs

	text := u.Text
	if u.Hangover > 0 && r.prevText != "" {
		prev := []rune(r.prevText)
		n := u.Hangover
		if n > len(prev) {
			n = len(prev)
		}
		text = string(prev[len(prev)-n:]) + text
	}
	if u.Stutter {
		text += text
	}
	r.prevText = u.Text

	offset := start
	job := asr.Job{
		SessionID:      r.sessionID,
		UtteranceIndex: int64(r.pos),
		Mode:           r.mode,
		IsManualCut:    u.ManualCut,
		AudioOffsetMs:  &offset,
	}
	res := asr.Result{
		Text:                text,
		Segments:            []asr.Segment{{Start: 0, End: float64(u.DurationMs) / 1000}},
		Language:            u.Language,
		LanguageProbability: u.Probability,
		IsFinal:             u.Final,
	}
	if u.Quality > 0 {
		q := u.Quality
		res.QualityScore = &q
	}
	return job, res, nil
}

// Close ends the replay.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
