// Package hunk implements the hunk (large-blob) side-channel described
// in spec §4.4.5 and §6: encode/decode of the in-cell tagged reference,
// the hunk-chunk payload writer/reader, globalization of local refs, an
// inlining reader wrapper, and read batching.
package hunk

import (
	"encoding/binary"
	"fmt"

	"datanode/internal/chunkid"
)

// Tag is the one-byte prefix of an encoded hunk value (spec §6).
type Tag byte

const (
	TagInline   Tag = 0
	TagLocalRef Tag = 1
	TagGlobalRef Tag = 2
)

// Value is the sum type Inline | LocalRef | GlobalRef (spec §3).
type Value struct {
	Tag Tag

	// Inline
	Payload []byte

	// LocalRef
	ChunkIndex int

	// LocalRef and GlobalRef share these
	BlockIndex  int
	BlockOffset int64
	Length      int64

	// GlobalRef only
	ChunkID      chunkid.ID
	ErasureCodec uint32
}

// Inline constructs an inline value.
func Inline(payload []byte) Value { return Value{Tag: TagInline, Payload: payload} }

// LocalRef constructs a local-chunk-index reference.
func LocalRef(chunkIndex, blockIndex int, blockOffset, length int64) Value {
	return Value{Tag: TagLocalRef, ChunkIndex: chunkIndex, BlockIndex: blockIndex, BlockOffset: blockOffset, Length: length}
}

// GlobalRef constructs a global chunk reference.
func GlobalRef(id chunkid.ID, erasureCodec uint32, blockIndex int, blockOffset, length int64) Value {
	return Value{Tag: TagGlobalRef, ChunkID: id, ErasureCodec: erasureCodec, BlockIndex: blockIndex, BlockOffset: blockOffset, Length: length}
}

// Encode serializes v per spec §6's in-cell encoding:
//
//	Inline:    tag, raw payload
//	LocalRef:  tag, varint chunkIndex, varuint length, varuint blockIndex, varuint blockOffset
//	GlobalRef: tag, fixed chunkId (16 bytes), [varint erasureCodec if erasure-typed], varuint length, varuint blockIndex, varuint blockOffset
func (v Value) Encode() []byte {
	switch v.Tag {
	case TagInline:
		buf := make([]byte, 1+len(v.Payload))
		buf[0] = byte(TagInline)
		copy(buf[1:], v.Payload)
		return buf
	case TagLocalRef:
		buf := make([]byte, 1, 1+4*binary.MaxVarintLen64)
		buf[0] = byte(TagLocalRef)
		buf = appendVarint(buf, int64(v.ChunkIndex))
		buf = appendUvarint(buf, uint64(v.Length))
		buf = appendUvarint(buf, uint64(v.BlockIndex))
		buf = appendUvarint(buf, uint64(v.BlockOffset))
		return buf
	case TagGlobalRef:
		buf := make([]byte, 1, 1+16+4*binary.MaxVarintLen64)
		buf[0] = byte(TagGlobalRef)
		buf = append(buf, v.ChunkID[:]...)
		if v.ChunkID.IsErasure() {
			buf = appendVarint(buf, int64(v.ErasureCodec))
		}
		buf = appendUvarint(buf, uint64(v.Length))
		buf = appendUvarint(buf, uint64(v.BlockIndex))
		buf = appendUvarint(buf, uint64(v.BlockOffset))
		return buf
	default:
		return nil
	}
}

// Decode parses an encoded hunk value.
func Decode(data []byte) (Value, error) {
	if len(data) < 1 {
		return Value{}, fmt.Errorf("hunk: empty encoded value")
	}
	tag := Tag(data[0])
	rest := data[1:]

	switch tag {
	case TagInline:
		payload := make([]byte, len(rest))
		copy(payload, rest)
		return Inline(payload), nil
	case TagLocalRef:
		chunkIndex, n := binary.Varint(rest)
		rest = rest[n:]
		length, n := binary.Uvarint(rest)
		rest = rest[n:]
		blockIndex, n := binary.Uvarint(rest)
		rest = rest[n:]
		blockOffset, _ := binary.Uvarint(rest)
		return LocalRef(int(chunkIndex), int(blockIndex), int64(blockOffset), int64(length)), nil
	case TagGlobalRef:
		if len(rest) < 16 {
			return Value{}, fmt.Errorf("hunk: truncated global ref")
		}
		var id chunkid.ID
		copy(id[:], rest[:16])
		rest = rest[16:]
		var codec uint32
		if id.IsErasure() {
			c, n := binary.Varint(rest)
			codec = uint32(c) //nolint:gosec // codec ids are small
			rest = rest[n:]
		}
		length, n := binary.Uvarint(rest)
		rest = rest[n:]
		blockIndex, n := binary.Uvarint(rest)
		rest = rest[n:]
		blockOffset, _ := binary.Uvarint(rest)
		return GlobalRef(id, codec, int(blockIndex), int64(blockOffset), int64(length)), nil
	default:
		return Value{}, fmt.Errorf("hunk: unknown tag %d", tag)
	}
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
