package store

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/internal/timer"
)

// Store holds the canonical in-memory set of timers and merges snapshots
// from every source (fetch, push, poll) through the same idempotent entry
// points. Merging re-projects from the snapshot's own fields, so duplicate
// or out-of-order pushes cannot accumulate drift. A genuinely stale push
// can still transiently overwrite fresher state until the next resync;
// there are no sequence numbers to compare.
type Store struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	order []*timer.Timer
	byID  map[string]*timer.Timer

	subs    map[int]chan struct{}
	nextSub int
}

// New creates an empty store. Time only enters through the given clock.
func New(clock clockwork.Clock) *Store {
	return &Store{
		clock: clock,
		byID:  make(map[string]*timer.Timer),
		subs:  make(map[int]chan struct{}),
	}
}

// MergeFull merges an authoritative full list: snapshots are upserted and
// any timer absent from the list is tombstoned.
func (s *Store) MergeFull(snaps []timer.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(snaps))
	for _, snap := range snaps {
		if snap.ID == "" {
			log.Warn().Msg("full sync contained a timer without an id, dropping")
			continue
		}
		seen[snap.ID] = true
		s.upsertLocked(snap)
	}

	kept := s.order[:0]
	for _, t := range s.order {
		if seen[t.ID] {
			kept = append(kept, t)
			continue
		}
		delete(s.byID, t.ID)
		log.Debug().Str("timer_id", t.ID).Msg("timer tombstoned by full sync")
	}
	s.order = kept

	s.notifyLocked()
}

// ApplyPush merges a single partial snapshot. Absence of other timers
// implies nothing; nothing is removed.
func (s *Store) ApplyPush(snap timer.Snapshot) {
	if snap.ID == "" {
		log.Warn().Msg("push update missing timer id, dropping")
		return
	}

	s.mu.Lock()
	s.upsertLocked(snap)
	s.notifyLocked()
	s.mu.Unlock()
}

// upsertLocked merges one snapshot into the canonical set. Existing timers
// are mutated field-by-field on the same pointer.
func (s *Store) upsertLocked(snap timer.Snapshot) {
	now := s.clock.Now()
	if t, ok := s.byID[snap.ID]; ok {
		t.ApplySnapshot(snap, now)
		return
	}

	t := timer.FromSnapshot(snap, now)
	s.byID[snap.ID] = t
	s.order = append(s.order, t)
}

// ApplyPaused stops a timer the instant a paused event arrives, ahead of
// the full snapshot that follows it.
func (s *Store) ApplyPaused(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok || !t.IsRunning {
		return
	}
	t.IsRunning = false
	s.notifyLocked()
}

// Remove drops a timer on deletion confirmation. A tick reaching zero
// never removes anything; only this does.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, t := range s.order {
		if t.ID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.notifyLocked()
	return true
}

// TickSecond ages every running timer by one second, flooring at zero and
// stopping the timer the instant it gets there.
func (s *Store) TickSecond() {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, t := range s.order {
		if !t.IsRunning {
			continue
		}
		if t.Remaining > 0 {
			t.Remaining--
			changed = true
		}
		if t.Remaining == 0 {
			t.IsRunning = false
			changed = true
		}
	}

	if changed {
		s.notifyLocked()
	}
}

// SetRunning optimistically flips the running flag, returning a copy of
// the pre-mutation timer for rollback.
func (s *Store) SetRunning(id string, running bool) (timer.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return timer.Timer{}, false
	}
	prev := *t
	t.IsRunning = running
	s.notifyLocked()
	return prev, true
}

// ResetLocal optimistically restores a timer to its configured baseline,
// returning a copy of the pre-mutation timer for rollback.
func (s *Store) ResetLocal(id string) (timer.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return timer.Timer{}, false
	}
	prev := *t
	t.Remaining = t.OriginalDuration
	t.PausedAt = 0
	t.IsRunning = false
	t.StartTime = nil
	s.notifyLocked()
	return prev, true
}

// Restore rolls a timer back to a previously captured value, in place on
// the same canonical object.
func (s *Store) Restore(prev timer.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[prev.ID]
	if !ok {
		return
	}
	*t = prev
	s.notifyLocked()
}

// Peek returns a copy of a timer's current value.
func (s *Store) Peek(id string) (timer.Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return timer.Timer{}, false
	}
	return *t, true
}

// PeekByShareID returns a copy of the timer carrying the given share id.
func (s *Store) PeekByShareID(shareID string) (timer.Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.order {
		if t.ShareID == shareID {
			return *t, true
		}
	}
	return timer.Timer{}, false
}

// All returns the canonical timers in insertion order. The pointers are
// the live objects; callers treat them as read-only.
func (s *Store) All() []*timer.Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*timer.Timer, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of timers held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// RunningIDs returns the ids of timers currently counting down, in
// insertion order. Safe for readers that cannot hold a reference to the
// live objects.
func (s *Store) RunningIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, t := range s.order {
		if t.IsRunning {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// HasRunning reports whether at least one timer is counting down.
func (s *Store) HasRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.order {
		if t.IsRunning {
			return true
		}
	}
	return false
}

// Changes returns a coalescing notification channel signalled after every
// merge, tick, or command mutation, plus a cancel func that releases the
// subscription. Consumers read the current set with All after a signal.
func (s *Store) Changes() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
