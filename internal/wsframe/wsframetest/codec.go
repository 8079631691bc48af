// Package wsframetest provides an in-memory wsframe.Codec for tests.
package wsframetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kandev/oauthbridge/internal/wsframe"
)

// ErrWriteClosed is returned by WriteText after Close.
var ErrWriteClosed = errors.New("write on closed codec")

// Codec is an in-memory codec. Messages queued with Push are returned by
// ReadText; messages written with WriteText are recorded.
type Codec struct {
	inbound chan string
	outbox  chan string
	closed  chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	written  []string
	writeErr error
}

var _ wsframe.Codec = (*Codec)(nil)

// New returns an empty codec.
func New() *Codec {
	return &Codec{
		inbound: make(chan string, 64),
		outbox:  make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

// Push queues text for ReadText.
func (c *Codec) Push(text string) {
	c.inbound <- text
}

// FailWrites makes every later WriteText return err.
func (c *Codec) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// ReadText blocks until a message is pushed or the codec is closed.
func (c *Codec) ReadText() (string, error) {
	select {
	case <-c.closed:
		return "", wsframe.ErrConnectionClosed
	default:
	}
	select {
	case text := <-c.inbound:
		return text, nil
	case <-c.closed:
		return "", wsframe.ErrConnectionClosed
	}
}

// WriteText records text.
func (c *Codec) WriteText(text string) error {
	if c.IsClosed() {
		return ErrWriteClosed
	}
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.written = append(c.written, text)
	c.mu.Unlock()

	select {
	case c.outbox <- text:
	default:
	}
	return nil
}

// Close unblocks pending reads.
func (c *Codec) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Codec) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of everything written so far.
func (c *Codec) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Next waits up to timeout for the next written message.
func (c *Codec) Next(timeout time.Duration) (string, error) {
	select {
	case text := <-c.outbox:
		return text, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no message written within %s", timeout)
	}
}
