package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/clients/timerapi"
	"github.com/tickshare/tickshare/go/internal/store"
	"github.com/tickshare/tickshare/go/internal/timer"
)

// pauseResyncDelay is how long after a successful pause we force one extra
// resync, closing the race where the push beats the HTTP acknowledgment.
const pauseResyncDelay = 100 * time.Millisecond

// ErrNotFound is returned when a command references a timer the store does
// not hold.
var ErrNotFound = fmt.Errorf("timer not found")

// API is what the gateway needs from the HTTP layer.
type API interface {
	CreateTimer(ctx context.Context, req timerapi.CreateTimerRequest) (timer.Snapshot, error)
	StartTimer(ctx context.Context, id string) (timer.Snapshot, error)
	PauseTimer(ctx context.Context, id string) (timer.Snapshot, error)
	ResetTimer(ctx context.Context, id string) (timer.Snapshot, error)
	DeleteTimer(ctx context.Context, id string) error
}

// Resyncer forces a fresh snapshot request over the channel.
type Resyncer interface {
	RequestResync()
}

// MillisecondCounter zeroes a timer's cosmetic sub-second counter.
type MillisecondCounter interface {
	ResetMilliseconds(id string)
}

type commandState int

const (
	statePending commandState = iota
	stateConfirmed
	stateRolledBack
)

// pendingCommand tracks one in-flight optimistic mutation:
// Pending(optimistic, previous) -> Confirmed | RolledBack.
type pendingCommand struct {
	id   string
	op   string
	prev timer.Timer

	state commandState
}

// Gateway issues timer commands with optimistic local application. The
// optimistic value is a forward guess: the server's own snapshot always
// wins once it arrives, so confirmation needs no further local mutation.
type Gateway struct {
	store  *store.Store
	api    API
	resync Resyncer
	ms     MillisecondCounter
	clock  clockwork.Clock

	mu       sync.Mutex
	inFlight map[string]*pendingCommand
}

// NewGateway creates a command gateway. resync and ms may be nil when no
// channel or ticker is attached (e.g. one-shot CLI use).
func NewGateway(st *store.Store, api API, resync Resyncer, ms MillisecondCounter, clock clockwork.Clock) *Gateway {
	return &Gateway{
		store:    st,
		api:      api,
		resync:   resync,
		ms:       ms,
		clock:    clock,
		inFlight: make(map[string]*pendingCommand),
	}
}

func (g *Gateway) begin(op string, prev timer.Timer) *pendingCommand {
	pc := &pendingCommand{
		id:    uuid.New().String()[:8],
		op:    op,
		prev:  prev,
		state: statePending,
	}

	g.mu.Lock()
	g.inFlight[pc.id] = pc
	g.mu.Unlock()

	log.Debug().Str("command", pc.id).Str("op", op).Str("timer_id", prev.ID).Msg("optimistic mutation applied")
	return pc
}

func (g *Gateway) confirm(pc *pendingCommand) {
	g.mu.Lock()
	pc.state = stateConfirmed
	delete(g.inFlight, pc.id)
	g.mu.Unlock()
}

func (g *Gateway) rollback(pc *pendingCommand) {
	g.mu.Lock()
	pc.state = stateRolledBack
	delete(g.inFlight, pc.id)
	g.mu.Unlock()

	g.store.Restore(pc.prev)
	log.Warn().Str("command", pc.id).Str("op", pc.op).Str("timer_id", pc.prev.ID).Msg("optimistic mutation rolled back")
}

// Start starts a timer, applying isRunning=true optimistically.
func (g *Gateway) Start(ctx context.Context, id string) error {
	prev, ok := g.store.SetRunning(id, true)
	if !ok {
		return ErrNotFound
	}
	pc := g.begin("start", prev)

	if _, err := g.api.StartTimer(ctx, id); err != nil {
		g.rollback(pc)
		return fmt.Errorf("start timer %s: %w", id, err)
	}

	// The server's push or the next resync carries the authoritative
	// snapshot; nothing more to do locally.
	g.confirm(pc)
	return nil
}

// Pause pauses a timer. Idempotent at the client: an already-paused timer
// never reaches the network.
func (g *Gateway) Pause(ctx context.Context, id string) error {
	// SetRunning both reads and flips under one lock, so the timer cannot
	// vanish between the idempotency check and the optimistic apply.
	prev, ok := g.store.SetRunning(id, false)
	if !ok {
		return ErrNotFound
	}
	if !prev.IsRunning {
		return nil
	}
	pc := g.begin("pause", prev)

	if g.ms != nil {
		g.ms.ResetMilliseconds(id)
	}

	if _, err := g.api.PauseTimer(ctx, id); err != nil {
		g.rollback(pc)
		return fmt.Errorf("pause timer %s: %w", id, err)
	}
	g.confirm(pc)

	// One extra forced resync shortly after the acknowledgment, in case
	// the paused push raced past the HTTP response.
	if g.resync != nil {
		g.clock.AfterFunc(pauseResyncDelay, g.resync.RequestResync)
	}
	return nil
}

// Reset restores a timer to its configured duration, applying the reset
// locally first.
func (g *Gateway) Reset(ctx context.Context, id string) error {
	prev, ok := g.store.ResetLocal(id)
	if !ok {
		return ErrNotFound
	}
	pc := g.begin("reset", prev)

	if _, err := g.api.ResetTimer(ctx, id); err != nil {
		g.rollback(pc)
		return fmt.Errorf("reset timer %s: %w", id, err)
	}
	g.confirm(pc)
	return nil
}

// Delete removes a timer. Never optimistic: a failed delete must not
// silently vanish a visible entity, so the store entry goes away only on
// confirmation.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	if _, ok := g.store.Peek(id); !ok {
		return ErrNotFound
	}

	if err := g.api.DeleteTimer(ctx, id); err != nil {
		return fmt.Errorf("delete timer %s: %w", id, err)
	}

	// A timerDeleted push may have removed it already.
	g.store.Remove(id)
	return nil
}

// Create creates a timer and merges the server's snapshot of it.
func (g *Gateway) Create(ctx context.Context, req timerapi.CreateTimerRequest) (timer.Timer, error) {
	snap, err := g.api.CreateTimer(ctx, req)
	if err != nil {
		return timer.Timer{}, fmt.Errorf("create timer: %w", err)
	}

	g.store.ApplyPush(snap)
	created, ok := g.store.Peek(snap.ID)
	if !ok {
		return timer.Timer{}, fmt.Errorf("created timer %s missing from store", snap.ID)
	}
	return created, nil
}

// PendingCount reports how many optimistic mutations are awaiting their
// server response.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
