// Package lastsent filters outbound segments against the last segment actually
// delivered to a consumer for the same session.
//
// It is independent of the aggregation state machine: where the state machine
// trims recognizer re-segmentation, this layer catches retries and reruns that
// would deliver the same speech twice.
package lastsent

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
)

// Verdict reasons.
const (
	ReasonEmpty            = "empty"
	ReasonNoLastSent       = "no_last_sent"
	ReasonSameAsLastSent   = "same_as_last_sent"
	ReasonSubstringOfLast  = "substring_of_last_sent"
	ReasonContainsLastSent = "contains_last_sent"
	ReasonOverlapTrimmed   = "boundary_overlap_trimmed"
	ReasonOverlapFull      = "boundary_overlap_full"
	ReasonHighSimilarity   = "high_similarity"
	ReasonUnique           = "unique"
)

const (
	minContainRunes      = 3
	minOverlapRunes      = 3
	maxOverlapRunes      = 50
	minSharedSuffixRunes = 5
	similarityThreshold  = 0.95
)

// Verdict is the outcome of checking one candidate.
type Verdict struct {
	IsDuplicate bool
	Reason      string
	// DeduplicatedText is the candidate with any boundary overlap removed. It
	// equals the candidate when nothing was trimmed and is empty for duplicates.
	DeduplicatedText string
	Similarity       float64
}

// Config configures a Deduplicator.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           10 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

type record struct {
	normalized []rune
	lastAccess time.Time
}

// Deduplicator keeps the normalized last-sent text per session. It is safe
// for concurrent use.
type Deduplicator struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	entries map[string]*record

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Deduplicator. Call Start to run the TTL sweep.
func New(cfg Config) *Deduplicator {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Deduplicator{
		cfg:     cfg,
		log:     logging.WithComponent("lastsent"),
		entries: make(map[string]*record),
		done:    make(chan struct{}),
	}
}

// Start launches the periodic TTL sweep.
func (d *Deduplicator) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ticker := time.NewTicker(d.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.Sweep()
				case <-d.done:
					return
				}
			}
		}()
	})
}

// Stop ends the sweep loop.
func (d *Deduplicator) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Check compares a candidate against the session's last-sent text. It does
// not record anything.
func (d *Deduplicator) Check(sessionID, text string) Verdict {
	v := d.check(sessionID, text)
	metrics.DefaultMetrics.RecordLastSentVerdict(v.Reason)
	if v.Reason == ReasonContainsLastSent {
		d.log.Warn().
			Str("sessionId", sessionID).
			Int("candidateChars", len([]rune(text))).
			Msg("Candidate contains last sent text; filtered as duplicate")
	} else if v.IsDuplicate {
		d.log.Debug().
			Str("sessionId", sessionID).
			Str("reason", v.Reason).
			Float64("similarity", v.Similarity).
			Msg("Duplicate of last sent text")
	}
	return v
}

func (d *Deduplicator) check(sessionID, text string) Verdict {
	cand, cidx := normalize(text)
	if len(cand) == 0 {
		return Verdict{Reason: ReasonEmpty}
	}

	d.mu.Lock()
	rec, ok := d.entries[sessionID]
	var last []rune
	if ok {
		rec.lastAccess = d.cfg.Now()
		last = rec.normalized
	}
	d.mu.Unlock()

	if len(last) == 0 {
		return Verdict{Reason: ReasonNoLastSent, DeduplicatedText: strings.TrimSpace(text)}
	}

	c, l := string(cand), string(last)
	switch {
	case c == l:
		return Verdict{IsDuplicate: true, Reason: ReasonSameAsLastSent, Similarity: 1}
	case len(cand) >= minContainRunes && strings.Contains(l, c):
		return Verdict{IsDuplicate: true, Reason: ReasonSubstringOfLast, Similarity: ratio(len(cand), len(last))}
	case len(last) >= minContainRunes && strings.Contains(c, l):
		return Verdict{IsDuplicate: true, Reason: ReasonContainsLastSent, Similarity: ratio(len(last), len(cand))}
	}

	if rest, found := trimOverlap(text, cand, cidx, last); found {
		if !hasContent(rest) {
			return Verdict{IsDuplicate: true, Reason: ReasonOverlapFull}
		}
		return Verdict{Reason: ReasonOverlapTrimmed, DeduplicatedText: rest}
	}

	if sim := Similarity(cand, last); sim > similarityThreshold {
		return Verdict{IsDuplicate: true, Reason: ReasonHighSimilarity, Similarity: sim}
	}
	return Verdict{Reason: ReasonUnique, DeduplicatedText: strings.TrimSpace(text)}
}

// Record stores text as the session's last delivered segment.
func (d *Deduplicator) Record(sessionID, text string) {
	norm, _ := normalize(text)
	if len(norm) == 0 {
		return
	}
	d.mu.Lock()
	d.entries[sessionID] = &record{normalized: norm, lastAccess: d.cfg.Now()}
	n := len(d.entries)
	d.mu.Unlock()
	metrics.DefaultMetrics.SetLastSentEntries(n)
}

// Remove forgets a session.
func (d *Deduplicator) Remove(sessionID string) {
	d.mu.Lock()
	delete(d.entries, sessionID)
	n := len(d.entries)
	d.mu.Unlock()
	metrics.DefaultMetrics.SetLastSentEntries(n)
}

// Sweep drops sessions idle for longer than the TTL and returns how many.
func (d *Deduplicator) Sweep() int {
	cutoff := d.cfg.Now().Add(-d.cfg.TTL)
	d.mu.Lock()
	removed := 0
	for id, rec := range d.entries {
		if rec.lastAccess.Before(cutoff) {
			delete(d.entries, id)
			removed++
		}
	}
	n := len(d.entries)
	d.mu.Unlock()

	metrics.DefaultMetrics.SetLastSentEntries(n)
	if removed > 0 {
		d.log.Info().Int("expired", removed).Int("remaining", n).Msg("Swept last sent entries")
	}
	return removed
}

// Len returns the number of tracked sessions.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// trimOverlap looks for the longest boundary overlap between the candidate and
// the last-sent text, trying at each length: the candidate starting with the
// end of last, the candidate ending with the start of last, and both ending
// with the same span. It returns the candidate text with the overlap removed.
func trimOverlap(text string, cand []rune, cidx []int, last []rune) (string, bool) {
	src := []rune(text)
	maxL := maxOverlapRunes
	if len(cand) < maxL {
		maxL = len(cand)
	}
	if len(last) < maxL {
		maxL = len(last)
	}

	for l := maxL; l >= minOverlapRunes; l-- {
		if runesEqual(cand[:l], last[len(last)-l:]) {
			return cutFront(src, cidx, l), true
		}
		if runesEqual(cand[len(cand)-l:], last[:l]) {
			return cutBack(src, cidx, len(cand)-l), true
		}
		if l >= minSharedSuffixRunes && runesEqual(cand[len(cand)-l:], last[len(last)-l:]) {
			return cutBack(src, cidx, len(cand)-l), true
		}
	}
	return "", false
}

// cutFront drops the first n normalized runes from src.
func cutFront(src []rune, idx []int, n int) string {
	if n >= len(idx) {
		return ""
	}
	return trimEdges(string(src[idx[n]:]))
}

// cutBack keeps the normalized runes before position n.
func cutBack(src []rune, idx []int, n int) string {
	if n <= 0 {
		return ""
	}
	return trimEdges(string(src[:idx[n]]))
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",，、", r)
	})
}

func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Similarity is the share of positions holding the same rune, over the longer
// length. A shorter text fully contained in the longer scores by length ratio.
func Similarity(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}
	if strings.Contains(string(longer), string(shorter)) {
		return ratio(len(shorter), len(longer))
	}
	matched := 0
	for i := range shorter {
		if shorter[i] == longer[i] {
			matched++
		}
	}
	return ratio(matched, len(longer))
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// normalize drops all whitespace and case-folds. The second return maps each
// normalized rune to its rune index in text.
func normalize(text string) ([]rune, []int) {
	src := []rune(text)
	out := make([]rune, 0, len(src))
	idx := make([]int, 0, len(src))
	for i, r := range src {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		idx = append(idx, i)
	}
	return out, idx
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
