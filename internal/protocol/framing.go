// ============================================================================
// TheSquid Wire Protocol - Framing
// ============================================================================
//
// Package: internal/protocol
// File: framing.go
// Purpose: Length-prefixed framing and acknowledgement exchange for the
//          request/accept/payload/result sequence
//
// Sequence (squad -> squidlet unless noted):
//   1. Dial (1s timeout)
//   2. Header (28-byte LE record)
//   3. Accept byte (squidlet -> squad, 1 accepted / 0 refused, <= 5s)
//   4. Payload size (u64 LE) + payload bytes
//   5. ... squidlet executes the handler ...
//   6. Result size (u64 LE, squidlet -> squad, probed non-blockingly)
//   7. Size ack -> result body -> body ack
//
// Payload and result are each a u64 little-endian length followed by raw
// bytes; the header is a fixed record and accept/acks are single bytes. The
// size probe is the one primitive that must never wait on a slow task (it
// waits at most a millisecond); the body read that follows it blocks with a
// size-proportional deadline.
//
// ============================================================================

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Protocol timeouts
const (
	DialTimeout = 1 * time.Second  // Connect to a squidlet
	OpTimeout   = 1 * time.Second  // Individual header/size/payload writes and reads
	AcceptWait  = 5 * time.Second  // Squad waiting for the accept byte
	AckWait     = 60 * time.Second // Squidlet waiting for a squad ack
)

// Accept byte values
const (
	ByteRefused  byte = 0
	ByteAccepted byte = 1
)

// ErrRefused is returned when the squidlet answers the header with a
// refusal byte.
var ErrRefused = errors.New("task refused by worker")

// BodyTimeout returns the deadline for reading a result body of the given
// size: a fixed floor plus one second per hundred bytes, rounded up.
func BodyTimeout(size uint64) time.Duration {
	return time.Duration(5+(size+99)/100) * time.Second
}

// Dial opens a connection to a squidlet with the protocol connect timeout
func Dial(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// WriteHeader sends the request header
func WriteHeader(conn net.Conn, h Header) error {
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write(h.Encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader receives the request header on the squidlet side
func ReadHeader(conn net.Conn) (Header, error) {
	buf := make([]byte, HeaderSize)
	conn.SetReadDeadline(time.Now().Add(AcceptWait))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return DecodeHeader(buf)
}

// WriteAcceptByte answers the header with acceptance or refusal
func WriteAcceptByte(conn net.Conn, accepted bool) error {
	b := ByteRefused
	if accepted {
		b = ByteAccepted
	}
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write([]byte{b}); err != nil {
		return fmt.Errorf("write accept byte: %w", err)
	}
	return nil
}

// ReadAcceptByte waits for the squidlet's answer to the header. A missing
// byte or an explicit refusal aborts the dispatch.
func ReadAcceptByte(conn net.Conn) error {
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(AcceptWait))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("read accept byte: %w", err)
	}
	if buf[0] != ByteAccepted {
		return ErrRefused
	}
	return nil
}

// WriteBlob sends a u64 LE length followed by the raw bytes
func WriteBlob(conn net.Conn, data []byte) error {
	size := make([]byte, 8)
	binary.LittleEndian.PutUint64(size, uint64(len(data)))
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write(size); err != nil {
		return fmt.Errorf("write size: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadBlob receives a u64 LE length followed by the raw bytes. Used by the
// squidlet for the payload, where blocking on the size field is fine.
func ReadBlob(conn net.Conn) ([]byte, error) {
	size := make([]byte, 8)
	conn.SetReadDeadline(time.Now().Add(AcceptWait))
	if _, err := io.ReadFull(conn, size); err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}
	n := binary.LittleEndian.Uint64(size)
	body := make([]byte, n)
	conn.SetReadDeadline(time.Now().Add(BodyTimeout(n)))
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ProbeSize performs one non-blocking read of the result-size field.
//
// buf and read accumulate partial bytes across calls; a probe that lands
// mid-field picks up where the previous one stopped. Returns ready=true with
// the decoded size once all eight bytes have arrived. A would-block
// condition returns (0, false, nil). Any other error means the connection is
// unusable.
func ProbeSize(conn net.Conn, buf *[8]byte, read *int) (uint64, bool, error) {
	// One-millisecond deadline: the read returns at once with whatever bytes
	// are already buffered by the kernel and otherwise gives up after a
	// millisecond. A deadline of time.Now() would fail before reading at all.
	conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := conn.Read(buf[*read:])
	*read += n
	if *read == len(buf) {
		return binary.LittleEndian.Uint64(buf[:]), true, nil
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("probe size: %w", err)
	}
	return 0, false, nil
}

// ReadBodyAfterProbe reads the result body once the size is known, with the
// size-proportional deadline.
func ReadBodyAfterProbe(conn net.Conn, size uint64) ([]byte, error) {
	body := make([]byte, size)
	conn.SetReadDeadline(time.Now().Add(BodyTimeout(size)))
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read result body: %w", err)
	}
	return body, nil
}

// WriteAck sends a single acknowledgement byte
func WriteAck(conn net.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write([]byte{ByteAccepted}); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	return nil
}

// WaitAck blocks until the squad acknowledges, up to the ack window
func WaitAck(conn net.Conn) error {
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(AckWait))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("wait ack: %w", err)
	}
	return nil
}

// WriteResult streams the result back to the squad: size, size-ack, body,
// body-ack. A missing ack is reported but the squidlet's state is intact
// either way; the caller tears the connection down regardless.
func WriteResult(conn net.Conn, result []byte) error {
	size := make([]byte, 8)
	binary.LittleEndian.PutUint64(size, uint64(len(result)))
	conn.SetWriteDeadline(time.Now().Add(OpTimeout))
	if _, err := conn.Write(size); err != nil {
		return fmt.Errorf("write result size: %w", err)
	}
	if err := WaitAck(conn); err != nil {
		return fmt.Errorf("size ack: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(BodyTimeout(uint64(len(result)))))
	if _, err := conn.Write(result); err != nil {
		return fmt.Errorf("write result body: %w", err)
	}
	if err := WaitAck(conn); err != nil {
		return fmt.Errorf("body ack: %w", err)
	}
	return nil
}
