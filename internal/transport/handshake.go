// Package transport opens the WebSocket connection to the parent application.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/tracing"
	"github.com/kandev/oauthbridge/internal/wsframe"
	"go.uber.org/zap"
)

// ErrConnection is wrapped by every dial or handshake failure.
var ErrConnection = errors.New("cannot reach parent")

// maxResponseHeader bounds how much of the upgrade response is read.
const maxResponseHeader = 16 << 10

var headerTerminator = []byte("\r\n\r\n")

// Options describes the parent endpoint.
type Options struct {
	// Host defaults to 127.0.0.1. The parent only ever listens on loopback.
	Host         string
	Port         int
	ExtensionID  string
	ConnectToken string

	// MaxFrameSize caps inbound payloads; 0 means wsframe.DefaultMaxPayload.
	MaxFrameSize int64
}

func (o Options) address() string {
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(o.Port))
}

func (o Options) requestURI() string {
	q := url.Values{}
	q.Set("extensionId", o.ExtensionID)
	q.Set("connectToken", o.ConnectToken)
	return "/?" + q.Encode()
}

// Dial connects to the parent and performs the client side of the opening
// handshake, then returns a codec positioned at the first frame.
//
// The server's Sec-WebSocket-Accept is NOT verified: the response header is
// read up to the blank line and discarded. The channel is trusted because it
// is loopback-only and gated by the connect token. Use DialConformant when
// that trust assumption does not hold.
func Dial(ctx context.Context, opts Options, log *logger.Logger) (*wsframe.StreamCodec, error) {
	ctx, span := tracing.TraceHandshake(ctx, "minimal", opts.Port)
	codec, err := dial(ctx, opts, log)
	tracing.EndWithError(span, err)
	return codec, err
}

func dial(ctx context.Context, opts Options, log *logger.Logger) (*wsframe.StreamCodec, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.address())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	key, err := newKey()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if _, err := conn.Write(buildUpgradeRequest(opts, key)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: send handshake: %v", ErrConnection, err)
	}

	header, err := readResponseHeader(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: read handshake response: %v", ErrConnection, err)
	}

	log.Debug("handshake complete; accept key not verified",
		zap.String("address", opts.address()),
		zap.String("status_line", statusLine(header)))

	return wsframe.NewStreamCodec(conn, opts.MaxFrameSize), nil
}

func newKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

func buildUpgradeRequest(opts Options, key string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", opts.requestURI())
	fmt.Fprintf(&b, "Host: %s\r\n", opts.address())
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	return b.Bytes()
}

// readResponseHeader reads one byte at a time so that no frame bytes that
// follow the header are consumed.
func readResponseHeader(conn net.Conn) ([]byte, error) {
	var resp []byte
	buf := make([]byte, 1)
	for !bytes.HasSuffix(resp, headerTerminator) {
		if len(resp) >= maxResponseHeader {
			return nil, fmt.Errorf("response header exceeds %d bytes", maxResponseHeader)
		}
		n, err := conn.Read(buf)
		if n == 1 {
			resp = append(resp, buf[0])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func statusLine(header []byte) string {
	line, _, _ := bufio.NewReader(bytes.NewReader(header)).ReadLine()
	return string(line)
}
