// ============================================================================
// TheSquid Wire Protocol - Request Header
// ============================================================================
//
// Package: internal/protocol
// File: header.go
// Purpose: Fixed-size task request header exchanged at the start of every
//          dispatch connection
//
// Layout (28 bytes, little-endian, explicit field widths):
//   offset 0  : type    uint32
//   offset 4  : id      uint64
//   offset 12 : subID   uint64
//   offset 20 : maxWait uint64 (seconds)
//
// The header is encoded field by field, never by copying a host-layout
// struct, so the format is identical on every architecture.
//
// ============================================================================

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/thesquid/thesquid/pkg/types"
)

// HeaderSize is the wire size of a request header in bytes
const HeaderSize = 28

// Header is the fixed request record sent before the payload
type Header struct {
	Type    types.TaskType // Task kind
	ID      uint64         // Task id
	SubID   uint64         // Task sub-id
	MaxWait uint64         // Deadline in seconds
}

// Encode serializes the header into its 28-byte little-endian wire form
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint64(buf[4:12], h.ID)
	binary.LittleEndian.PutUint64(buf[12:20], h.SubID)
	binary.LittleEndian.PutUint64(buf[20:28], h.MaxWait)
	return buf
}

// DecodeHeader parses a 28-byte little-endian wire record
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("header: expected %d bytes, got %d", HeaderSize, len(buf))
	}
	return Header{
		Type:    types.TaskType(binary.LittleEndian.Uint32(buf[0:4])),
		ID:      binary.LittleEndian.Uint64(buf[4:12]),
		SubID:   binary.LittleEndian.Uint64(buf[12:20]),
		MaxWait: binary.LittleEndian.Uint64(buf[20:28]),
	}, nil
}
