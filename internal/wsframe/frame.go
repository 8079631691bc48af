// Package wsframe implements the restricted subset of WebSocket framing the
// bridge needs: single-frame text messages, masked on the way out.
//
// It is not a general WebSocket implementation. Fragmented messages and
// control frames (ping, pong, close negotiation) are not supported.
package wsframe

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// Opcodes from RFC 6455 section 5.2.
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

const (
	finBit     = 0x80
	maskBit    = 0x80
	opcodeMask = 0x0F
	lengthMask = 0x7F

	len16Marker = 126
	len64Marker = 127

	maxShortLength = 125
	maxLength16    = 0xFFFF
)

// DefaultMaxPayload bounds the payload length Decode accepts.
const DefaultMaxPayload int64 = 16 << 20

var (
	// ErrConnectionClosed means the stream ended before a complete frame
	// arrived, or the peer sent a close frame.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrUnsupportedFrame is returned for fragmented or control frames.
	ErrUnsupportedFrame = errors.New("unsupported frame")

	// ErrFrameTooLarge is returned when the declared length exceeds the limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Encode builds one FIN-set, masked text frame carrying text.
// A fresh random mask is drawn for every call.
func Encode(text string) ([]byte, error) {
	var mask [4]byte
	if _, err := rand.Read(mask[:]); err != nil {
		return nil, fmt.Errorf("generate mask: %w", err)
	}
	return encodeMasked([]byte(text), mask), nil
}

func encodeMasked(payload []byte, mask [4]byte) []byte {
	n := len(payload)
	frame := make([]byte, 0, headerSize(n)+n)
	frame = append(frame, finBit|OpText)

	switch {
	case n <= maxShortLength:
		frame = append(frame, maskBit|byte(n))
	case n <= maxLength16:
		frame = append(frame, maskBit|len16Marker)
		frame = binary.BigEndian.AppendUint16(frame, uint16(n))
	default:
		frame = append(frame, maskBit|len64Marker)
		frame = binary.BigEndian.AppendUint64(frame, uint64(n))
	}

	frame = append(frame, mask[:]...)
	start := len(frame)
	frame = append(frame, payload...)
	applyMask(frame[start:], mask)
	return frame
}

// headerSize is the length of a masked client frame header for an n-byte payload.
func headerSize(n int) int {
	switch {
	case n <= maxShortLength:
		return 2 + 4
	case n <= maxLength16:
		return 2 + 2 + 4
	default:
		return 2 + 8 + 4
	}
}

func applyMask(b []byte, mask [4]byte) {
	for i := range b {
		b[i] ^= mask[i%4]
	}
}

// Decode reads one frame from r and returns its payload as text, using
// DefaultMaxPayload as the length limit.
func Decode(r io.Reader) (string, error) {
	return DecodeLimit(r, DefaultMaxPayload)
}

// DecodeLimit is Decode with an explicit payload length limit.
// It blocks until the whole frame has arrived.
func DecodeLimit(r io.Reader, maxPayload int64) (string, error) {
	var head [2]byte
	if err := readFull(r, head[:]); err != nil {
		return "", err
	}

	opcode := head[0] & opcodeMask
	switch {
	case opcode == OpClose:
		return "", ErrConnectionClosed
	case head[0]&finBit == 0, opcode != OpText && opcode != OpBinary:
		return "", fmt.Errorf("%w: opcode 0x%x fin=%t", ErrUnsupportedFrame, opcode, head[0]&finBit != 0)
	}

	length := uint64(head[1] & lengthMask)
	switch length {
	case len16Marker:
		var ext [2]byte
		if err := readFull(r, ext[:]); err != nil {
			return "", err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64Marker:
		var ext [8]byte
		if err := readFull(r, ext[:]); err != nil {
			return "", err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > uint64(maxPayload) {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	var mask [4]byte
	masked := head[1]&maskBit != 0
	if masked {
		if err := readFull(r, mask[:]); err != nil {
			return "", err
		}
	}

	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return "", err
	}
	if masked {
		applyMask(payload, mask)
	}
	return string(payload), nil
}

// readFull accumulates partial reads and maps every flavour of "the other
// side is gone" onto ErrConnectionClosed.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	default:
		return err
	}
}
