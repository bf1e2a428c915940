package transport

import (
	"encoding/json"
)

// Event names exchanged with the timer server.
const (
	// Outbound.
	eventSubscribeToTimer      = "subscribeToTimer"
	eventSubscribeToUserTimers = "subscribeToUserTimers"
	eventRequestTimerUpdates   = "requestTimerUpdates"

	// Inbound.
	eventTimerUpdate  = "timerUpdate"
	eventTimerDeleted = "timerDeleted"
	eventTimerEvent   = "timerEvent"

	timerEventPaused = "paused"
)

// envelope is the wire frame for every message on the channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// subscribePayload is the outbound payload for per-timer subscriptions.
type subscribePayload struct {
	TimerID string `json:"timerId"`
}

// timerRefPayload carries inbound events that reference a timer by id.
type timerRefPayload struct {
	TimerID string `json:"timerId"`
	Event   string `json:"event,omitempty"`
}

func mustEnvelope(event string, data any) envelope {
	if data == nil {
		return envelope{Event: event}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		// All outbound payloads are plain structs; this cannot fail.
		panic(err)
	}
	return envelope{Event: event, Data: raw}
}
