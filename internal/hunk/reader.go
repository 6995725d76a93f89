package hunk

import (
	"fmt"
	"os"
	"sync"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Reader serves random-access reads against a hunk chunk written by
// Writer, addressing fragments by (blockIndex, blockOffset, length) as
// carried in a LocalRef or GlobalRef value (spec §4.4.5 "Decoding
// (read)").
type Reader struct {
	mu  sync.Mutex
	f   *os.File
	dec *zstd.Decoder
	sr  seekable.Reader

	idx        sidecarIndex
	blockStart []int64 // cumulative decompressed offset at which block i begins
}

// OpenReader opens a hunk chunk's data file and its sidecar index.
func OpenReader(dataPath, indexPath string) (*Reader, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	var idx sidecarIndex
	if err := msgpack.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("hunk: decode sidecar index: %w", err)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	sr, err := seekable.NewReader(f, dec)
	if err != nil {
		f.Close()
		return nil, err
	}

	starts := make([]int64, len(idx.Blocks))
	var cum int64
	for i, b := range idx.Blocks {
		starts[i] = cum
		cum += b.DecompressedLength
	}

	return &Reader{f: f, dec: dec, sr: sr, idx: idx, blockStart: starts}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sr.Close()
	return r.f.Close()
}

// ReadHunk fetches and checksum-validates the payload referenced by
// (blockIndex, blockOffset, length).
func (r *Reader) ReadHunk(blockIndex int, blockOffset, length int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if blockIndex < 0 || blockIndex >= len(r.blockStart) {
		return nil, fmt.Errorf("hunk: block index %d out of range (have %d)", blockIndex, len(r.blockStart))
	}
	logicalOffset := r.blockStart[blockIndex] + blockOffset

	buf := make([]byte, checksumHeaderSize+length)
	n, err := r.sr.ReadAt(buf, logicalOffset)
	if err != nil {
		return nil, fmt.Errorf("hunk: read at block %d offset %d: %w", blockIndex, blockOffset, err)
	}
	if int64(n) != int64(len(buf)) {
		return nil, fmt.Errorf("hunk: short read at block %d offset %d: got %d want %d", blockIndex, blockOffset, n, len(buf))
	}

	checksum := getUint64(buf[:checksumHeaderSize])
	payload := buf[checksumHeaderSize:]
	if xxhash.Sum64(payload) != checksum {
		return nil, fmt.Errorf("hunk: checksum mismatch at block %d offset %d", blockIndex, blockOffset)
	}
	return payload, nil
}
