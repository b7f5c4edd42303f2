package aggregator

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
)

// EvictionCause says why a session left the registry.
type EvictionCause string

const (
	EvictRemoved EvictionCause = "removed"
	EvictTTL     EvictionCause = "ttl"
	EvictLRU     EvictionCause = "lru"
)

// EvictionHandler is called for every session evicted by TTL, LRU pressure or
// RemoveAll, with the text flushed from it. flushedText may be empty: state
// kept outside the registry for the session still has to be released. It is
// called outside the registry lock.
type EvictionHandler func(sessionID, flushedText string, cause EvictionCause)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Tunings       TuningSet
	SessionTTL    time.Duration
	MaxSessions   int
	SweepInterval time.Duration
	// CommitLogSize bounds the per-session commit log behind GetLastCommittedText.
	CommitLogSize int
	Now           func() time.Time
	OnEvict       EvictionHandler
}

// DefaultRegistryConfig returns sensible registry defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Tunings:       DefaultTuningSet(),
		SessionTTL:    5 * time.Minute,
		MaxSessions:   1000,
		SweepInterval: 30 * time.Second,
		CommitLogSize: 50,
	}
}

type commitRecord struct {
	index int64
	text  string
}

type sessionEntry struct {
	id string

	mu          sync.Mutex
	machine     *Machine
	commits     []commitRecord
	lastMetrics Metrics
	removed     bool

	// guarded by Registry.mu
	lastAccess time.Time
	elem       *list.Element
}

// Registry owns the state machines of all live sessions. Calls for one
// session are serialized by a per-session mutex; different sessions proceed
// concurrently. Sessions expire after SessionTTL of inactivity and the least
// recently used session is evicted when MaxSessions is exceeded. Every
// removal flushes the session's pending text first.
type Registry struct {
	cfg RegistryConfig
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	lru      *list.List // front is most recently used

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRegistry creates a registry. Call Start to run the TTL sweep.
func NewRegistry(cfg RegistryConfig) *Registry {
	def := DefaultRegistryConfig()
	if cfg.Tunings == nil {
		cfg.Tunings = def.Tunings
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.CommitLogSize <= 0 {
		cfg.CommitLogSize = def.CommitLogSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		log:      logging.WithComponent("aggregator.registry"),
		sessions: make(map[string]*sessionEntry),
		lru:      list.New(),
		done:     make(chan struct{}),
	}
}

// SetEvictionHandler replaces the handler for TTL and LRU evictions. It must
// be called before Start.
func (r *Registry) SetEvictionHandler(h EvictionHandler) {
	r.cfg.OnEvict = h
}

// Start launches the periodic TTL sweep.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.sweepLoop()
		r.log.Info().
			Dur("ttl", r.cfg.SessionTTL).
			Dur("sweepInterval", r.cfg.SweepInterval).
			Int("maxSessions", r.cfg.MaxSessions).
			Msg("Session registry started")
	})
}

// Stop ends the sweep loop and waits for it to exit. Sessions are kept;
// callers flush them with RemoveSession or RemoveAll.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.log.Info().Msg("Session registry stopped")
	})
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ProcessUtterance runs one utterance through the session's state machine,
// creating the session on first use.
func (r *Registry) ProcessUtterance(sessionID string, in Input) (CommitResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return CommitResult{}, ErrEmptySessionID
	}

	for {
		e, evicted := r.getOrCreate(sessionID)
		r.flushEvicted(evicted, EvictLRU)

		e.mu.Lock()
		if e.removed {
			// Swept between lookup and lock; start over with a fresh entry.
			e.mu.Unlock()
			continue
		}
		res := e.machine.Process(in)
		r.recordMetrics(e, res)
		e.mu.Unlock()
		return res, nil
	}
}

// Flush releases all pending and tail text of a session without removing it.
func (r *Registry) Flush(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrEmptySessionID
	}
	e := r.lookup(sessionID)
	if e == nil {
		return "", nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return "", nil
	}
	text := e.machine.Flush()
	if text != "" {
		metrics.DefaultMetrics.RecordCommit(string(TriggerExplicitFlush), CharLen(text))
	}
	return text, nil
}

// RemoveSession flushes and deletes a session, returning the flushed text.
// Removing an unknown session is not an error.
func (r *Registry) RemoveSession(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrEmptySessionID
	}
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if ok {
		r.detachLocked(e)
	}
	r.mu.Unlock()
	if !ok {
		return "", nil
	}

	text := r.flushEntry(e)
	metrics.DefaultMetrics.RecordSessionEvicted(string(EvictRemoved))
	r.log.Info().
		Str("sessionId", sessionID).
		Int("flushedChars", CharLen(text)).
		Msg("Session removed")
	return text, nil
}

// RemoveAll flushes and deletes every session, handing flushed text to the
// eviction handler. Used on shutdown.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	for _, e := range entries {
		r.detachLocked(e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		text := r.flushEntry(e)
		metrics.DefaultMetrics.RecordSessionEvicted(string(EvictRemoved))
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(e.id, text, EvictRemoved)
		}
	}
}

// RecordCommit appends text delivered downstream for an utterance index to
// the session's commit log. The log stays ordered by index and bounded.
func (r *Registry) RecordCommit(sessionID string, index int64, text string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrEmptySessionID
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	e := r.lookup(sessionID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	i := sort.Search(len(e.commits), func(i int) bool { return e.commits[i].index >= index })
	switch {
	case i < len(e.commits) && e.commits[i].index == index:
		e.commits[i].text = text
	default:
		e.commits = append(e.commits, commitRecord{})
		copy(e.commits[i+1:], e.commits[i:])
		e.commits[i] = commitRecord{index: index, text: text}
	}
	if over := len(e.commits) - r.cfg.CommitLogSize; over > 0 {
		e.commits = append(e.commits[:0], e.commits[over:]...)
	}
	return nil
}

// GetLastCommittedText returns the most recent committed text whose index is
// lower than currentIndex. Selection is positional only.
func (r *Registry) GetLastCommittedText(sessionID string, currentIndex int64) (string, bool) {
	e := r.lookup(sessionID)
	if e == nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	i := sort.Search(len(e.commits), func(i int) bool { return e.commits[i].index >= currentIndex })
	if i == 0 {
		return "", false
	}
	return e.commits[i-1].text, true
}

// State returns a snapshot of a session's state machine.
func (r *Registry) State(sessionID string) (SessionState, bool) {
	e := r.lookup(sessionID)
	if e == nil {
		return SessionState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.State(), true
}

// Sweep removes sessions idle for longer than SessionTTL. Expired entries are
// detached under the registry lock and flushed afterwards under their own
// lock, so a sweep never interleaves with an in-flight call for that session.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Now().Add(-r.cfg.SessionTTL)

	r.mu.Lock()
	var expired []*sessionEntry
	for el := r.lru.Back(); el != nil; {
		e := el.Value.(*sessionEntry)
		prev := el.Prev()
		if !e.lastAccess.Before(cutoff) {
			break
		}
		r.detachLocked(e)
		expired = append(expired, e)
		el = prev
	}
	r.mu.Unlock()

	r.flushEvicted(expired, EvictTTL)
	if len(expired) > 0 {
		r.log.Info().Int("expired", len(expired)).Msg("Swept idle sessions")
	}
	return len(expired)
}

func (r *Registry) lookup(sessionID string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	r.touchLocked(e)
	return e
}

// getOrCreate returns the session entry, creating it if needed, and any
// entries evicted to stay within MaxSessions.
func (r *Registry) getOrCreate(sessionID string) (*sessionEntry, []*sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok {
		r.touchLocked(e)
		return e, nil
	}

	e := &sessionEntry{
		id:         sessionID,
		machine:    NewMachine(sessionID, r.cfg.Tunings, r.cfg.Now, logging.WithSession(sessionID)),
		lastAccess: r.cfg.Now(),
	}
	e.elem = r.lru.PushFront(e)
	r.sessions[sessionID] = e
	metrics.DefaultMetrics.RecordSessionCreated()
	r.log.Debug().Str("sessionId", sessionID).Int("sessions", len(r.sessions)).Msg("Session created")

	var evicted []*sessionEntry
	for len(r.sessions) > r.cfg.MaxSessions {
		oldest := r.lru.Back().Value.(*sessionEntry)
		r.detachLocked(oldest)
		evicted = append(evicted, oldest)
	}
	return e, evicted
}

func (r *Registry) touchLocked(e *sessionEntry) {
	e.lastAccess = r.cfg.Now()
	r.lru.MoveToFront(e.elem)
}

func (r *Registry) detachLocked(e *sessionEntry) {
	delete(r.sessions, e.id)
	r.lru.Remove(e.elem)
}

// flushEntry marks a detached entry removed and returns its flushed text.
func (r *Registry) flushEntry(e *sessionEntry) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ""
	}
	e.removed = true
	text := e.machine.Flush()
	if text != "" {
		metrics.DefaultMetrics.RecordCommit(string(TriggerExplicitFlush), CharLen(text))
	}
	return text
}

func (r *Registry) flushEvicted(entries []*sessionEntry, cause EvictionCause) {
	for _, e := range entries {
		text := r.flushEntry(e)
		metrics.DefaultMetrics.RecordSessionEvicted(string(cause))
		r.log.Info().
			Str("sessionId", e.id).
			Str("cause", string(cause)).
			Int("flushedChars", CharLen(text)).
			Msg("Session evicted")
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(e.id, text, cause)
		}
	}
}

func (r *Registry) recordMetrics(e *sessionEntry, res CommitResult) {
	m := metrics.DefaultMetrics
	m.RecordUtterance(res.Action.String())
	if res.Committed() {
		trigger := res.Trigger
		if trigger == TriggerNone {
			trigger = TriggerNewStreamFlush
		}
		m.RecordCommit(string(trigger), CharLen(res.Text))
	}
	prev := e.lastMetrics
	m.RecordDedup(
		res.Metrics.BoundaryDedups-prev.BoundaryDedups,
		res.Metrics.ProtectedDedups-prev.ProtectedDedups,
		res.Metrics.InternalRepeats-prev.InternalRepeats,
	)
	e.lastMetrics = res.Metrics
}
