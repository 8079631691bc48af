// Package events defines the messages exchanged with the parent application
// and the bridge that broadcasts them.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingEvent is returned by Parse for messages that are not an object
// with a non-empty "event" field.
var ErrMissingEvent = errors.New("message has no event name")

// Inbound events sent by the parent.
const (
	AuthStart   = "auth:start"
	WindowClose = "windowClose"
)

// Outbound events broadcast to the parent.
const (
	AuthReady = "auth:ready"
	AuthCode  = "auth:code"
	AuthError = "auth:error"
)

// BroadcastMethod is the host API method used to publish an event to the app.
const BroadcastMethod = "app.broadcast"

// Event is the unit exchanged in both directions. Data is kept opaque.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Parse decodes one inbound message. It must be a JSON object naming an event.
func Parse(text string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}
	// null decodes into the zero Event without an error.
	if ev.Name == "" {
		return Event{}, fmt.Errorf("parse event: %w", ErrMissingEvent)
	}
	return ev, nil
}

// Envelope is the host's remote-broadcast request.
type Envelope struct {
	Method      string        `json:"method"`
	AccessToken string        `json:"accessToken"`
	Data        EnvelopeEvent `json:"data"`
}

// EnvelopeEvent is the event carried inside an Envelope.
type EnvelopeEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ReadyPayload accompanies auth:ready.
type ReadyPayload struct {
	Port int `json:"port"`
}

// CodePayload accompanies a successful auth:code.
type CodePayload struct {
	Code string `json:"code"`
}

// ErrorPayload accompanies auth:error. Error carries the provider's error
// parameter; Message carries a local failure.
type ErrorPayload struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
