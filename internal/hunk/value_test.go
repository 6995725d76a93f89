package hunk

import (
	"bytes"
	"testing"

	"datanode/internal/chunkid"
)

func TestEncodeDecodeInline(t *testing.T) {
	v := Inline([]byte("hello world"))
	got, err := Decode(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tag != TagInline || !bytes.Equal(got.Payload, v.Payload) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestEncodeDecodeLocalRef(t *testing.T) {
	v := LocalRef(3, 7, 4096, 128)
	got, err := Decode(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != v {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
	}
}

func TestEncodeDecodeGlobalRefNonErasure(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 42)
	v := GlobalRef(id, 0, 2, 1024, 256)
	got, err := Decode(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ChunkID != v.ChunkID || got.BlockIndex != v.BlockIndex || got.BlockOffset != v.BlockOffset || got.Length != v.Length {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
	}
	if got.ErasureCodec != 0 {
		t.Fatalf("expected zero erasure codec for non-erasure id, got %d", got.ErasureCodec)
	}
}

func TestEncodeDecodeGlobalRefErasure(t *testing.T) {
	id := chunkid.New(chunkid.ErasureBlob, 42)
	v := GlobalRef(id, 5, 2, 1024, 256)
	got, err := Decode(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ErasureCodec != 5 {
		t.Fatalf("expected erasure codec 5, got %d", got.ErasureCodec)
	}
	if got.ChunkID != v.ChunkID {
		t.Fatalf("chunk id mismatch")
	}
}

func TestDecodeEmptyFails(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding empty value")
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	if _, err := Decode([]byte{0x7f}); err == nil {
		t.Fatal("expected error decoding unknown tag")
	}
}
