package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/internal/timer"
)

// Status is the adapter's connection state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenSource supplies the bearer token the channel authenticates with.
type TokenSource interface {
	Token() (string, error)
}

// Config holds configuration for the real-time channel.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReconnectWait    time.Duration
	ResyncInterval   time.Duration
	SendBuffer       int
	EventBuffer      int
}

// DefaultConfig returns default channel configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReconnectWait:    2 * time.Second,
		ResyncInterval:   time.Second,
		SendBuffer:       64,
		EventBuffer:      64,
	}
}

// Adapter wraps the real-time channel: it owns the WebSocket connection,
// walks the Disconnected -> Connecting -> Connected loop, replays
// subscriptions after every reconnect (the server holds no memory of a
// disconnected client's interests), and exposes typed event streams.
// Reconnecting uses a fixed wait, no backoff.
type Adapter struct {
	cfg    Config
	tokens TokenSource
	clock  clockwork.Clock

	mu        sync.Mutex
	status    Status
	subTimers map[string]bool
	subAll    bool

	send chan envelope

	statusCh  chan Status
	stateCh   chan timer.Snapshot
	pausedCh  chan string
	deletedCh chan string

	// hasRunning gates the proactive resync loop; resyncs are pointless
	// while nothing counts down.
	hasRunning func() bool
}

// New creates a channel adapter. hasRunning may be nil, in which case the
// periodic resync always fires while connected.
func New(cfg Config, tokens TokenSource, clock clockwork.Clock, hasRunning func() bool) *Adapter {
	return &Adapter{
		cfg:        cfg,
		tokens:     tokens,
		clock:      clock,
		subTimers:  make(map[string]bool),
		send:       make(chan envelope, cfg.SendBuffer),
		statusCh:   make(chan Status, 16),
		stateCh:    make(chan timer.Snapshot, cfg.EventBuffer),
		pausedCh:   make(chan string, cfg.EventBuffer),
		deletedCh:  make(chan string, cfg.EventBuffer),
		hasRunning: hasRunning,
	}
}

// ConnectionStatus returns the transition stream. Every transition is
// emitted so dependents can activate their polling fallback.
func (a *Adapter) ConnectionStatus() <-chan Status { return a.statusCh }

// StateChanges returns the stream of timer snapshots pushed by the server.
func (a *Adapter) StateChanges() <-chan timer.Snapshot { return a.stateCh }

// Paused returns the stream of timer ids the server reported as paused.
func (a *Adapter) Paused() <-chan string { return a.pausedCh }

// Deleted returns the stream of timer ids the server reported as deleted.
func (a *Adapter) Deleted() <-chan string { return a.deletedCh }

// Status returns the current connection state.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Subscribe registers interest in one timer. The subscription is replayed
// on every reconnect.
func (a *Adapter) Subscribe(timerID string) {
	a.mu.Lock()
	a.subTimers[timerID] = true
	connected := a.status == Connected
	a.mu.Unlock()

	if connected {
		a.enqueue(mustEnvelope(eventSubscribeToTimer, subscribePayload{TimerID: timerID}))
	}
}

// SubscribeAll registers interest in every timer owned by the user.
func (a *Adapter) SubscribeAll() {
	a.mu.Lock()
	a.subAll = true
	connected := a.status == Connected
	a.mu.Unlock()

	if connected {
		a.enqueue(mustEnvelope(eventSubscribeToUserTimers, nil))
	}
}

// RequestResync asks the server for fresh snapshots of everything we
// subscribe to. A no-op while disconnected; the polling fallback covers
// that window.
func (a *Adapter) RequestResync() {
	if a.Status() != Connected {
		return
	}
	a.enqueue(mustEnvelope(eventRequestTimerUpdates, nil))
}

// Run drives the connection loop until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		a.setStatus(Connecting)
		conn, err := a.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("url", a.cfg.URL).Msg("channel dial failed")
			a.setStatus(Disconnected)
			select {
			case <-ctx.Done():
				return nil
			case <-a.clock.After(a.cfg.ReconnectWait):
				continue
			}
		}

		a.setStatus(Connected)
		a.replaySubscriptions()
		a.serve(ctx, conn)
		a.setStatus(Disconnected)

		select {
		case <-ctx.Done():
			return nil
		case <-a.clock.After(a.cfg.ReconnectWait):
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := a.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve auth token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.DialContext(ctx, a.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial channel: %w", err)
	}
	return conn, nil
}

// replaySubscriptions re-issues every known interest after a (re)connect.
func (a *Adapter) replaySubscriptions() {
	a.mu.Lock()
	subAll := a.subAll
	timers := make([]string, 0, len(a.subTimers))
	for id := range a.subTimers {
		timers = append(timers, id)
	}
	a.mu.Unlock()

	if subAll {
		a.enqueue(mustEnvelope(eventSubscribeToUserTimers, nil))
	}
	for _, id := range timers {
		a.enqueue(mustEnvelope(eventSubscribeToTimer, subscribePayload{TimerID: id}))
	}
}

// serve runs the pumps for one connection and returns when it dies.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.writePump(connCtx, conn)
		cancel()
	}()
	go func() {
		defer wg.Done()
		a.resyncLoop(connCtx)
	}()

	a.readPump(connCtx, conn)
	cancel()
	conn.Close()
	wg.Wait()
}

func (a *Adapter) writePump(ctx context.Context, conn *websocket.Conn) {
	ping := a.clock.NewTicker(a.cfg.PingInterval)
	defer func() {
		ping.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-a.send:
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if err := conn.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("event", env.Event).Msg("failed to write channel message")
				return
			}
		case <-ping.Chan():
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

func (a *Adapter) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(a.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("unexpected channel close")
			}
			return
		}
		a.dispatch(message)
		conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	}
}

// resyncLoop proactively requests fresh snapshots at a fixed interval
// while connected, bounding the staleness window even if a push was
// dropped.
func (a *Adapter) resyncLoop(ctx context.Context) {
	t := a.clock.NewTicker(a.cfg.ResyncInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			if a.hasRunning != nil && !a.hasRunning() {
				continue
			}
			a.RequestResync()
		}
	}
}

// dispatch routes one inbound frame to the typed streams. Malformed
// payloads are dropped with a diagnostic log; they must never crash the
// reconciliation loop.
func (a *Adapter) dispatch(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().Err(err).Msg("malformed channel frame, dropping")
		return
	}

	switch env.Event {
	case eventTimerUpdate:
		for _, snap := range decodeSnapshots(env.Data) {
			if snap.ID == "" {
				log.Warn().Msg("timer update missing id, dropping")
				continue
			}
			select {
			case a.stateCh <- snap:
			default:
				// The periodic resync bounds what a dropped event can cost.
				log.Warn().Str("timer_id", snap.ID).Msg("state stream full, dropping update")
			}
		}

	case eventTimerDeleted:
		var p timerRefPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.TimerID == "" {
			log.Warn().Err(err).Msg("malformed timerDeleted payload, dropping")
			return
		}
		select {
		case a.deletedCh <- p.TimerID:
		default:
			log.Warn().Str("timer_id", p.TimerID).Msg("deleted stream full, dropping event")
		}

	case eventTimerEvent:
		var p timerRefPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.TimerID == "" {
			log.Warn().Err(err).Msg("malformed timerEvent payload, dropping")
			return
		}
		if p.Event != timerEventPaused {
			log.Debug().Str("event", p.Event).Str("timer_id", p.TimerID).Msg("ignoring timer event")
			return
		}
		select {
		case a.pausedCh <- p.TimerID:
		default:
			log.Warn().Str("timer_id", p.TimerID).Msg("paused stream full, dropping event")
		}

	default:
		log.Debug().Str("event", env.Event).Msg("ignoring unknown channel event")
	}
}

// decodeSnapshots accepts the timerUpdate payload as either a single
// snapshot or an array of them.
func decodeSnapshots(data []byte) []timer.Snapshot {
	var many []timer.Snapshot
	if err := json.Unmarshal(data, &many); err == nil {
		return many
	}

	var one timer.Snapshot
	if err := json.Unmarshal(data, &one); err != nil {
		log.Warn().Err(err).Msg("malformed timerUpdate payload, dropping")
		return nil
	}
	return []timer.Snapshot{one}
}

func (a *Adapter) enqueue(env envelope) {
	select {
	case a.send <- env:
	default:
		log.Warn().Str("event", env.Event).Msg("outbound queue full, dropping message")
	}
}

func (a *Adapter) setStatus(next Status) {
	a.mu.Lock()
	prev := a.status
	a.status = next
	a.mu.Unlock()

	if prev == next {
		return
	}
	log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("channel state changed")
	select {
	case a.statusCh <- next:
	default:
		log.Warn().Str("status", next.String()).Msg("status stream full, dropping transition")
	}
}
