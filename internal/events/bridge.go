package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/tracing"
	"github.com/kandev/oauthbridge/internal/wsframe"
	"go.uber.org/zap"
)

// Sender publishes an event to the parent. Implementations are best-effort.
type Sender interface {
	Send(name string, payload any)
}

var errNotAttached = errors.New("no connection attached")

// Bridge wraps events into the broadcast envelope and writes them through a
// codec. Sending before a codec is attached is a silent no-op.
type Bridge struct {
	token  string
	logger *logger.Logger

	mu    sync.RWMutex
	codec wsframe.Codec
}

var _ Sender = (*Bridge)(nil)

// NewBridge creates a Bridge that authenticates broadcasts with token.
func NewBridge(token string, log *logger.Logger) *Bridge {
	return &Bridge{
		token:  token,
		logger: log.WithComponent("event-bridge"),
	}
}

// Attach sets the codec used by subsequent sends. nil detaches.
func (b *Bridge) Attach(codec wsframe.Codec) {
	b.mu.Lock()
	b.codec = codec
	b.mu.Unlock()
}

// Send broadcasts one event. Failures are logged, never returned.
func (b *Bridge) Send(name string, payload any) {
	_, span := tracing.TraceEventSend(context.Background(), name)
	err := b.send(name, payload)
	if errors.Is(err, errNotAttached) {
		span.End()
		return
	}
	tracing.EndWithError(span, err)
	if err != nil {
		b.logger.Warn("failed to send event", zap.String("event", name), zap.Error(err))
		return
	}
	b.logger.Debug("sent event", zap.String("event", name))
}

func (b *Bridge) send(name string, payload any) error {
	b.mu.RLock()
	codec := b.codec
	b.mu.RUnlock()
	if codec == nil {
		return errNotAttached
	}

	msg, err := Marshal(b.token, name, payload)
	if err != nil {
		return err
	}
	return codec.WriteText(msg)
}

// Marshal renders the broadcast envelope for one event.
func Marshal(token, name string, payload any) (string, error) {
	data, err := json.Marshal(Envelope{
		Method:      BroadcastMethod,
		AccessToken: token,
		Data:        EnvelopeEvent{Event: name, Data: payload},
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return string(data), nil
}
