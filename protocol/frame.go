// Package protocol implements the broker's wire format: a 4-byte
// big-endian length prefix followed by a UTF-8 JSON payload.
// A frame is always delivered whole, never split or coalesced.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"chat-broker/errors"
)

const (
	// LengthPrefixSize is the byte width of the frame header.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds a single payload. A peer announcing a
	// larger frame is treated as a protocol error, not trusted with an
	// allocation.
	DefaultMaxFrameSize = 64 * 1024
)

// FramedConn wraps an unstructured byte stream so reads and writes happen
// one logical message at a time.
//
// Send is safe for concurrent use: the prefix and payload are written as a
// single buffer under a mutex, so interleaved writers cannot corrupt the
// framing. Receive must be called from a single goroutine.
type FramedConn struct {
	rw           io.ReadWriteCloser
	maxFrameSize int

	writeMu sync.Mutex
}

func NewFramedConn(rw io.ReadWriteCloser, maxFrameSize int) *FramedConn {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FramedConn{rw: rw, maxFrameSize: maxFrameSize}
}

// Send writes the length prefix and the payload as one buffer.
// The write either fully succeeds or the connection is no longer usable;
// a partial write never leaves a half frame readable as a valid one.
func (c *FramedConn) Send(payload []byte) error {
	if len(payload) > c.maxFrameSize {
		return fmt.Errorf("%w: %d bytes", errors.ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// io.Writer retries short writes internally; any error here means the
	// stream is broken and the caller must close the connection.
	if _, err := c.rw.Write(buf); err != nil {
		return fmt.Errorf("frame write: %w", err)
	}
	return nil
}

// Receive blocks until one full frame is available and returns its payload.
// It loops across partial reads via io.ReadFull, so a slow peer can never
// cause a frame to be split or merged.
// A clean peer shutdown is reported as errors.ErrConnClosed.
func (c *FramedConn) Receive() ([]byte, error) {
	var header [LengthPrefixSize]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return nil, mapReadError(err)
	}

	// Compared in uint64 so a size with the high bit set cannot wrap
	// negative on 32-bit platforms and slip past the cap.
	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(c.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d bytes announced", errors.ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		// EOF in the middle of a frame is a truncated stream, not a
		// graceful shutdown.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, mapReadError(err)
	}
	return payload, nil
}

func (c *FramedConn) Close() error {
	return c.rw.Close()
}

func mapReadError(err error) error {
	if err == io.EOF {
		return errors.ErrConnClosed
	}
	return fmt.Errorf("frame read: %w", err)
}
