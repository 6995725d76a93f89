// Package chunkid implements the 128-bit chunk identifier described in the
// data model: a UUIDv7 body whose top bits are overloaded to carry the
// chunk's object type and cell tag. The string form is lowercase base32hex,
// which preserves lexicographic sort order by creation time.
package chunkid

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectType is encoded into the low nibble of byte 6 (the UUID version
// nibble is left untouched so the id remains a valid UUIDv7 for sorting).
type ObjectType uint8

const (
	Blob ObjectType = iota
	ErasureBlob
	Journal
	Artifact
)

func (t ObjectType) String() string {
	switch t {
	case Blob:
		return "blob"
	case ErasureBlob:
		return "erasure_blob"
	case Journal:
		return "journal"
	case Artifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// encoding is base32hex (RFC 4648) lowercase without padding. Alphabet
// 0-9a-v preserves lexicographic sort order.
var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// ID uniquely identifies a chunk. It is a UUIDv7 (16 bytes); the object
// type and cell tag are folded into reserved bits of the UUID so the id
// stays time-sortable while still being a single 128-bit value.
type ID [16]byte

// New creates an ID carrying the given object type and cell tag.
// Only the low 14 bits of cellTag are kept: the top two bits of byte 8
// carry the UUID variant.
func New(objType ObjectType, cellTag uint16) ID {
	id := ID(uuid.Must(uuid.NewV7()))
	id[6] = (id[6] & 0xf0) | byte(objType&0x0f)
	binary.BigEndian.PutUint16(id[8:10], cellTag)
	// Preserve the UUID variant bits (top two bits of byte 8) so the id
	// still round-trips through uuid.UUID where that matters.
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// Parse parses a 26-character base32hex string into an ID.
func Parse(value string) (ID, error) {
	if len(value) != 26 {
		return ID{}, fmt.Errorf("chunkid: invalid length %d (want 26)", len(value))
	}
	decoded, err := encoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		return ID{}, fmt.Errorf("chunkid: invalid encoding: %w", err)
	}
	var id ID
	copy(id[:], decoded)
	return id, nil
}

// String returns the 26-character lowercase base32hex representation.
func (id ID) String() string {
	return strings.ToLower(encoding.EncodeToString(id[:]))
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Time returns the creation time encoded in the UUIDv7 timestamp field
// (bytes 0-5, 48-bit big-endian millisecond Unix time).
func (id ID) Time() time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms)
}

// ObjectType extracts the object type folded into byte 6.
func (id ID) ObjectType() ObjectType {
	return ObjectType(id[6] & 0x0f)
}

// CellTag extracts the cell tag folded into bytes 8-9.
func (id ID) CellTag() uint16 {
	return binary.BigEndian.Uint16(id[8:10]) & 0x3fff
}

// IsErasure reports whether the id names an erasure-coded blob, which
// affects GlobalRef hunk encoding (§6: erasure-typed ids carry an extra
// erasure codec field).
func (id ID) IsErasure() bool {
	return id.ObjectType() == ErasureBlob
}

// DirPrefix returns the first hex byte of the id, used as the on-disk
// sharding directory name ("<path>/<hh>/<chunkId>").
func (id ID) DirPrefix() string {
	return fmt.Sprintf("%02x", id[0])
}
