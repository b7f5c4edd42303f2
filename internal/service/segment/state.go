// Package segment tracks what happened to every utterance of a session and
// issues the IDs of the segments published for it. Delivery is at most once:
// an utterance index that reached SENT is never processed again.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Disposition is what the pipeline did with one utterance.
type Disposition int

const (
	// DispositionPending - Job accepted, gate decision not yet recorded.
	DispositionPending Disposition = iota
	// DispositionFolded - Text folded into a merge group, released by a later job.
	DispositionFolded
	// DispositionHeld - Text held by the gate until combined with a later segment.
	DispositionHeld
	// DispositionDiscarded - Text dropped as duplicate or too short. Terminal.
	DispositionDiscarded
	// DispositionSent - Text delivered downstream. Terminal.
	DispositionSent
)

// String returns the string representation of the disposition.
func (d Disposition) String() string {
	switch d {
	case DispositionPending:
		return "PENDING"
	case DispositionFolded:
		return "FOLDED"
	case DispositionHeld:
		return "HELD"
	case DispositionDiscarded:
		return "DISCARDED"
	case DispositionSent:
		return "SENT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", d)
	}
}

// IsTerminal returns true if the disposition can no longer change.
func (d Disposition) IsTerminal() bool {
	return d == DispositionDiscarded || d == DispositionSent
}

// Errors for invalid ledger transitions.
var (
	ErrAlreadySent       = errors.New("utterance already sent")
	ErrAlreadyProcessed  = errors.New("utterance already processed")
	ErrUnknownUtterance  = errors.New("utterance not in ledger")
	ErrInvalidTransition = errors.New("invalid disposition transition")
)

// DefaultLedgerWindow is how many utterance indexes a session keeps.
const DefaultLedgerWindow = 512

// Ledger records the disposition of every utterance index per session.
// Thread-safe for concurrent access.
//
// Transitions:
//
//	PENDING → FOLDED | HELD | DISCARDED | SENT
//	FOLDED  → SENT | DISCARDED
//	HELD    → SENT | DISCARDED
//
// Rules:
//   - Begin on an index that reached SENT fails with ErrAlreadySent, so an
//     orchestrator retry never publishes the same speech twice
//   - Begin on any other index past PENDING fails with ErrAlreadyProcessed
//   - SENT and DISCARDED are terminal
type Ledger struct {
	mu       sync.RWMutex
	window   int
	sessions map[string]map[int64]Disposition

	// seq numbers segments process-wide so IDs stay unique after Forget.
	seq atomic.Uint64
}

// NewLedger creates a ledger keeping the most recent window indexes per session.
func NewLedger(window int) *Ledger {
	if window <= 0 {
		window = DefaultLedgerWindow
	}
	return &Ledger{
		window:   window,
		sessions: make(map[string]map[int64]Disposition),
	}
}

// Begin registers an utterance index as PENDING.
// Re-beginning a PENDING index is allowed (the previous attempt never resolved).
func (l *Ledger) Begin(sessionID string, index int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		s = make(map[int64]Disposition)
		l.sessions[sessionID] = s
	}
	if d, seen := s[index]; seen {
		switch d {
		case DispositionPending:
			return nil
		case DispositionSent:
			return ErrAlreadySent
		default:
			return fmt.Errorf("%w: index %d is %s", ErrAlreadyProcessed, index, d)
		}
	}
	s[index] = DispositionPending
	l.pruneLocked(s)
	return nil
}

// Resolve moves an utterance index to its next disposition.
func (l *Ledger) Resolve(sessionID string, index int64, next Disposition) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return ErrUnknownUtterance
	}
	cur, ok := s[index]
	if !ok {
		return ErrUnknownUtterance
	}
	if !canTransition(cur, next) {
		return fmt.Errorf("%w: index %d %s → %s", ErrInvalidTransition, index, cur, next)
	}
	s[index] = next
	return nil
}

// ResolveOpen moves every FOLDED or HELD index of a session, at or below
// upTo, to next. It returns the indexes changed in ascending order.
func (l *Ledger) ResolveOpen(sessionID string, upTo int64, next Disposition) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var changed []int64
	for idx, d := range l.sessions[sessionID] {
		if idx <= upTo && (d == DispositionFolded || d == DispositionHeld) && canTransition(d, next) {
			l.sessions[sessionID][idx] = next
			changed = append(changed, idx)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// Disposition returns the recorded disposition of an index.
func (l *Ledger) Disposition(sessionID string, index int64) (Disposition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.sessions[sessionID][index]
	return d, ok
}

// LastIndex returns the highest utterance index recorded for a session.
func (l *Ledger) LastIndex(sessionID string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var last int64
	found := false
	for idx := range l.sessions[sessionID] {
		if !found || idx > last {
			last, found = idx, true
		}
	}
	return last, found
}

// NextSegmentID returns a new segment ID of the form "<sessionID>-seg-N".
func (l *Ledger) NextSegmentID(sessionID string) string {
	return fmt.Sprintf("%s-seg-%d", sessionID, l.seq.Add(1))
}

// Forget drops all records of a session.
func (l *Ledger) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
}

// Sessions returns the number of sessions tracked.
func (l *Ledger) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

func canTransition(from, to Disposition) bool {
	switch from {
	case DispositionPending:
		return to != DispositionPending
	case DispositionFolded, DispositionHeld:
		return to == DispositionSent || to == DispositionDiscarded
	default:
		return false
	}
}

// pruneLocked drops the lowest indexes beyond the window.
func (l *Ledger) pruneLocked(s map[int64]Disposition) {
	over := len(s) - l.window
	if over <= 0 {
		return
	}
	idx := make([]int64, 0, len(s))
	for i := range s {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	for _, i := range idx[:over] {
		delete(s, i)
	}
}
