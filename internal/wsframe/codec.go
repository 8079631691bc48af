package wsframe

import (
	"bufio"
	"io"
	"sync"
)

// Codec is the narrow message contract the rest of the bridge depends on.
// StreamCodec is the restricted implementation in this package; a more
// conformant one can be swapped in without touching its callers.
type Codec interface {
	// ReadText blocks until one complete text message arrives.
	ReadText() (string, error)
	// WriteText sends text as one message. Safe for concurrent use.
	WriteText(text string) error
	// Close releases the underlying stream. Only the first call has effect.
	Close() error
}

// StreamCodec runs Encode and Decode over a raw byte stream.
type StreamCodec struct {
	rwc        io.ReadWriteCloser
	reader     *bufio.Reader
	maxPayload int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Codec = (*StreamCodec)(nil)

// NewStreamCodec wraps rwc. The stream must be positioned at the first frame,
// i.e. any handshake bytes must already have been consumed.
func NewStreamCodec(rwc io.ReadWriteCloser, maxPayload int64) *StreamCodec {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &StreamCodec{
		rwc:        rwc,
		reader:     bufio.NewReader(rwc),
		maxPayload: maxPayload,
	}
}

// ReadText implements Codec. Only one goroutine may read at a time.
func (c *StreamCodec) ReadText() (string, error) {
	return DecodeLimit(c.reader, c.maxPayload)
}

// WriteText implements Codec.
func (c *StreamCodec) WriteText(text string) error {
	frame, err := Encode(text)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.rwc.Write(frame)
	return err
}

// Close implements Codec.
func (c *StreamCodec) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
