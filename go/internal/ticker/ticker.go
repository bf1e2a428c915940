package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/internal/store"
)

const (
	secondInterval      = time.Second
	millisecondInterval = 100 * time.Millisecond
	millisecondStep     = 100
)

// Ticker ages running timers between authoritative updates: a per-second
// loop decrements remaining time through the store, and a 100ms loop keeps
// a purely cosmetic millisecond counter per running timer. Both loops stop
// together and restarting clears any previous schedule.
type Ticker struct {
	store *store.Store
	clock clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	ms     map[string]int
}

// New creates a stopped ticker over the given store.
func New(st *store.Store, clock clockwork.Clock) *Ticker {
	return &Ticker{
		store: st,
		clock: clock,
		ms:    make(map[string]int),
	}
}

// Start launches both loops under ctx. Calling Start again replaces the
// previous schedule.
func (tk *Ticker) Start(ctx context.Context) {
	tk.mu.Lock()
	if tk.cancel != nil {
		tk.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	tk.cancel = cancel
	tk.mu.Unlock()

	go tk.secondLoop(loopCtx)
	go tk.millisecondLoop(loopCtx)
}

// Stop cancels both loops. Safe to call on a stopped ticker.
func (tk *Ticker) Stop() {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.cancel != nil {
		tk.cancel()
		tk.cancel = nil
	}
}

// Milliseconds returns the cosmetic millisecond counter for a timer.
// The value carries no authority.
func (tk *Ticker) Milliseconds(id string) int {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.ms[id]
}

// ResetMilliseconds zeroes the cosmetic counter for a timer, used when a
// pause takes effect before the next sub-second tick.
func (tk *Ticker) ResetMilliseconds(id string) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	delete(tk.ms, id)
}

func (tk *Ticker) secondLoop(ctx context.Context) {
	t := tk.clock.NewTicker(secondInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			tk.tickOnce()
		}
	}
}

// tickOnce ages the store by one second. A panicking tick must not halt
// subsequent ticks.
func (tk *Ticker) tickOnce() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("tick failed, continuing")
		}
	}()

	if !tk.store.HasRunning() {
		return
	}
	tk.store.TickSecond()
}

func (tk *Ticker) millisecondLoop(ctx context.Context) {
	t := tk.clock.NewTicker(millisecondInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			tk.advanceMilliseconds()
		}
	}
}

// advanceMilliseconds reads running ids through a locked accessor; the
// store mutates its timers concurrently and the live objects must never
// be read without its lock.
func (tk *Ticker) advanceMilliseconds() {
	running := tk.store.RunningIDs()

	tk.mu.Lock()
	defer tk.mu.Unlock()

	if len(running) == 0 {
		clear(tk.ms)
		return
	}

	seen := make(map[string]bool, len(running))
	for _, id := range running {
		seen[id] = true
		tk.ms[id] = (tk.ms[id] + millisecondStep) % 1000
	}
	for id := range tk.ms {
		if !seen[id] {
			delete(tk.ms, id)
		}
	}
}
