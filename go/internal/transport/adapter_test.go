package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tickshare/tickshare/go/internal/timer"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

func newTestAdapter(url string) *Adapter {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.ReconnectWait = 20 * time.Millisecond
	return New(cfg, staticTokens("test-token"), clockwork.NewRealClock(), nil)
}

func TestDispatchSingleUpdate(t *testing.T) {
	a := newTestAdapter("")

	a.dispatch([]byte(`{"event":"timerUpdate","data":{"_id":"t1","duration":60,"isRunning":true}}`))

	select {
	case snap := <-a.StateChanges():
		if snap.ID != "t1" || snap.Duration != 60 || !snap.IsRunning {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	default:
		t.Fatal("no snapshot delivered")
	}
}

func TestDispatchUpdateArray(t *testing.T) {
	a := newTestAdapter("")

	a.dispatch([]byte(`{"event":"timerUpdate","data":[{"_id":"t1","duration":60},{"_id":"t2","duration":30}]}`))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case snap := <-a.StateChanges():
			got = append(got, snap.ID)
		default:
			t.Fatalf("delivered %d snapshots, want 2", len(got))
		}
	}
	if got[0] != "t1" || got[1] != "t2" {
		t.Errorf("ids = %v, want [t1 t2]", got)
	}
}

func TestDispatchDropsMalformed(t *testing.T) {
	a := newTestAdapter("")

	// None of these may panic or deliver anything.
	a.dispatch([]byte(`not json`))
	a.dispatch([]byte(`{"event":"timerUpdate","data":{"duration":60}}`)) // missing id
	a.dispatch([]byte(`{"event":"timerUpdate","data":"bogus"}`))
	a.dispatch([]byte(`{"event":"timerDeleted","data":{}}`))
	a.dispatch([]byte(`{"event":"somethingElse"}`))

	select {
	case snap := <-a.StateChanges():
		t.Errorf("malformed frame delivered snapshot %+v", snap)
	case id := <-a.Deleted():
		t.Errorf("malformed frame delivered deletion %q", id)
	default:
	}
}

func TestDispatchPausedEvent(t *testing.T) {
	a := newTestAdapter("")

	a.dispatch([]byte(`{"event":"timerEvent","data":{"timerId":"t1","event":"paused"}}`))
	a.dispatch([]byte(`{"event":"timerEvent","data":{"timerId":"t2","event":"resumed"}}`))

	select {
	case id := <-a.Paused():
		if id != "t1" {
			t.Errorf("paused id = %q, want t1", id)
		}
	default:
		t.Fatal("no paused event delivered")
	}
	select {
	case id := <-a.Paused():
		t.Errorf("non-paused timerEvent delivered %q", id)
	default:
	}
}

func TestDispatchDeletedEvent(t *testing.T) {
	a := newTestAdapter("")

	a.dispatch([]byte(`{"event":"timerDeleted","data":{"timerId":"t9"}}`))

	select {
	case id := <-a.Deleted():
		if id != "t9" {
			t.Errorf("deleted id = %q, want t9", id)
		}
	default:
		t.Fatal("no deletion delivered")
	}
}

// wsTestServer upgrades connections and records what the client sends.
type wsTestServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	auth     chan string
	received chan envelope
	outbound chan envelope
	kick     chan struct{}
}

func newWSTestServer(t *testing.T) (*wsTestServer, *httptest.Server) {
	ws := &wsTestServer{
		t:        t,
		auth:     make(chan string, 4),
		received: make(chan envelope, 16),
		outbound: make(chan envelope, 16),
		kick:     make(chan struct{}),
	}
	srv := httptest.NewServer(http.HandlerFunc(ws.handle))
	t.Cleanup(srv.Close)
	return ws, srv
}

func (ws *wsTestServer) handle(w http.ResponseWriter, r *http.Request) {
	ws.auth <- r.Header.Get("Authorization")

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ws.received <- env
		}
	}()

	for {
		select {
		case env := <-ws.outbound:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ws.kick:
			return
		case <-done:
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunConnectsAndDelivers(t *testing.T) {
	ws, srv := newWSTestServer(t)
	a := newTestAdapter(wsURL(srv))
	a.SubscribeAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	// Bearer token is presented on the handshake.
	select {
	case got := <-ws.auth:
		if got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no connection attempt")
	}

	// Status walks to connected.
	waitStatus(t, a, Connected)

	// The recorded subscription is replayed after connect.
	select {
	case env := <-ws.received:
		if env.Event != eventSubscribeToUserTimers {
			t.Errorf("first outbound event = %q, want %q", env.Event, eventSubscribeToUserTimers)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not replayed")
	}

	// A pushed update reaches the typed stream.
	data, _ := json.Marshal(timer.Snapshot{ID: "t1", Duration: 45})
	ws.outbound <- envelope{Event: eventTimerUpdate, Data: data}

	select {
	case snap := <-a.StateChanges():
		if snap.ID != "t1" || snap.Duration != 45 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pushed update not delivered")
	}
}

func TestRunReconnectsAndResubscribes(t *testing.T) {
	ws, srv := newWSTestServer(t)
	a := newTestAdapter(wsURL(srv))
	a.Subscribe("t1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitStatus(t, a, Connected)
	drainSubscription(t, ws, eventSubscribeToTimer)

	// Kill the connection server-side; adapter must walk back through
	// disconnected and re-issue the per-timer subscription.
	ws.kick <- struct{}{}
	waitStatus(t, a, Disconnected)

	waitStatus(t, a, Connected)
	drainSubscription(t, ws, eventSubscribeToTimer)
}

func waitStatus(t *testing.T, a *Adapter, want Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-a.ConnectionStatus():
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached status %v", want)
		}
	}
}

func drainSubscription(t *testing.T, ws *wsTestServer, event string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ws.received:
			if env.Event == event {
				return
			}
		case <-deadline:
			t.Fatalf("subscription %q never received", event)
		}
	}
}
