package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/internal/store"
	"github.com/tickshare/tickshare/go/internal/ticker"
	"github.com/tickshare/tickshare/go/internal/timer"
	"github.com/tickshare/tickshare/go/internal/transport"
)

// API is what the engine needs from the HTTP layer: the read side only.
// Writes go through the command gateway.
type API interface {
	ListTimers(ctx context.Context) ([]timer.Snapshot, error)
}

// Channel is what the engine needs from the transport adapter.
type Channel interface {
	Run(ctx context.Context) error
	ConnectionStatus() <-chan transport.Status
	StateChanges() <-chan timer.Snapshot
	Paused() <-chan string
	Deleted() <-chan string
	SubscribeAll()
	RequestResync()
}

// Config holds engine tuning knobs.
type Config struct {
	// PollInterval is the HTTP polling cadence used while the channel is
	// disconnected.
	PollInterval time.Duration
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
	}
}

// Engine feeds every update source into the store's idempotent merge:
// the initial fetch, channel pushes, and the HTTP polling fallback that
// takes over while the channel is down. Push and poll may both be live
// during flaky connectivity; the merge's idempotence is the
// de-duplication mechanism, so neither source needs special-casing.
type Engine struct {
	cfg     Config
	api     API
	channel Channel
	store   *store.Store
	ticker  *ticker.Ticker
	clock   clockwork.Clock
}

// New wires an engine over its collaborators.
func New(cfg Config, api API, channel Channel, st *store.Store, tk *ticker.Ticker, clock clockwork.Clock) *Engine {
	return &Engine{
		cfg:     cfg,
		api:     api,
		channel: channel,
		store:   st,
		ticker:  tk,
		clock:   clock,
	}
}

// Run drives the engine until ctx is cancelled. The channel and ticker
// live and die with it.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Msg("reconciliation engine starting")

	e.refresh(ctx)
	e.channel.SubscribeAll()
	e.ticker.Start(ctx)
	defer e.ticker.Stop()

	go func() {
		if err := e.channel.Run(ctx); err != nil {
			log.Error().Err(err).Msg("channel loop failed")
		}
	}()

	// The poll timer only runs while the channel is down.
	poll := e.clock.NewTimer(e.cfg.PollInterval)
	if !poll.Stop() {
		<-poll.Chan()
	}
	polling := false

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciliation engine shutting down")
			return nil

		case status := <-e.channel.ConnectionStatus():
			switch status {
			case transport.Connected:
				if polling {
					stopAndDrainTimer(poll)
					polling = false
				}
				log.Info().Msg("channel connected, requesting resync")
				e.channel.RequestResync()
			case transport.Disconnected:
				if !polling {
					log.Warn().Dur("poll_interval", e.cfg.PollInterval).Msg("channel disconnected, polling fallback active")
					poll.Reset(e.cfg.PollInterval)
					polling = true
				}
			}

		case snap := <-e.channel.StateChanges():
			e.store.ApplyPush(snap)

		case id := <-e.channel.Paused():
			e.store.ApplyPaused(id)

		case id := <-e.channel.Deleted():
			if e.store.Remove(id) {
				log.Info().Str("timer_id", id).Msg("timer removed by server push")
			}

		case <-poll.Chan():
			e.refresh(ctx)
			if polling {
				poll.Reset(e.cfg.PollInterval)
			}
		}
	}
}

// refresh fetches the authoritative full list and merges it. Failures are
// non-fatal; the next poll or push covers them.
func (e *Engine) refresh(ctx context.Context) {
	snaps, err := e.api.ListTimers(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("timer list fetch failed")
		}
		return
	}
	e.store.MergeFull(snaps)
}

// stopAndDrainTimer stops a timer and drains its channel so a stale fire
// cannot trigger a poll after reconnect.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
