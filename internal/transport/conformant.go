package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/tracing"
	"github.com/kandev/oauthbridge/internal/wsframe"
	"go.uber.org/zap"
)

// GorillaCodec is a wsframe.Codec backed by gorilla/websocket. It verifies the
// accept key, answers pings and reassembles fragmented messages.
type GorillaCodec struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ wsframe.Codec = (*GorillaCodec)(nil)

// DialConformant reaches the same endpoint as Dial through gorilla's Dialer.
func DialConformant(ctx context.Context, opts Options, log *logger.Logger) (*GorillaCodec, error) {
	ctx, span := tracing.TraceHandshake(ctx, "conformant", opts.Port)

	u := url.URL{Scheme: "ws", Host: opts.address(), Path: "/"}
	q := url.Values{}
	q.Set("extensionId", opts.ExtensionID)
	q.Set("connectToken", opts.ConnectToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnection, err)
		tracing.EndWithError(span, err)
		return nil, err
	}
	tracing.EndWithError(span, nil)

	if opts.MaxFrameSize > 0 {
		conn.SetReadLimit(opts.MaxFrameSize)
	}
	log.Debug("handshake complete; accept key verified", zap.String("address", opts.address()))
	return &GorillaCodec{conn: conn}, nil
}

// ReadText implements wsframe.Codec.
func (c *GorillaCodec) ReadText() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return "", fmt.Errorf("%w: %v", wsframe.ErrConnectionClosed, err)
		}
		return "", err
	}
	return string(data), nil
}

// WriteText implements wsframe.Codec.
func (c *GorillaCodec) WriteText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close implements wsframe.Codec.
func (c *GorillaCodec) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
