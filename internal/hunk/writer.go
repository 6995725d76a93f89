package hunk

import (
	"fmt"
	"os"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// maxBlockSize bounds how much payload is packed into one hunk-chunk
// block (one seekable-zstd frame) before it is flushed and a new block
// starts.
const maxBlockSize = 4 << 20

// blockIndexEntry records the decompressed length of one block, so a
// reader can compute the flat logical offset for (blockIndex,
// blockOffset) addressing without decompressing the whole chunk —
// spec §6 specifies only the {hunkCount, totalHunkLength} meta summary;
// this index is the implementation detail that makes random access
// over a seekable zstd stream possible (see DESIGN.md).
type blockIndexEntry struct {
	DecompressedLength int64
}

// sidecarIndex is persisted alongside the hunk chunk's data file.
type sidecarIndex struct {
	Blocks          []blockIndexEntry
	HunkCount       int64
	TotalHunkLength int64
}

// Writer appends hunk payloads (with a checksum header) to a side-channel
// hunk chunk, packing them into fixed-size blocks written as independent
// seekable zstd frames (spec §4.4.5 "Encoding (write)", §6).
type Writer struct {
	f        *os.File
	enc      *zstd.Encoder
	sw       seekable.Writer
	indexPath string

	blockBuf    []byte
	blockIndex  int
	blocks      []blockIndexEntry
	hunkCount   int64
	totalLength int64
}

// CreateWriter creates a new hunk chunk at dataPath, with its sidecar
// index at indexPath.
func CreateWriter(dataPath, indexPath string) (*Writer, error) {
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	sw, err := seekable.NewWriter(f, enc)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, enc: enc, sw: sw, indexPath: indexPath}, nil
}

// Append writes payload with a checksum header into the current block,
// flushing the block first if it is full. It returns the blockIndex,
// the blockOffset of the checksum header, and the payload length; with
// the owning row's local chunk index, which the caller supplies, these
// make up a hunk.LocalRef.
func (w *Writer) Append(payload []byte) (blockIndex int, blockOffset int64, length int64, err error) {
	if len(w.blockBuf)+checksumHeaderSize+len(payload) > maxBlockSize && len(w.blockBuf) > 0 {
		if err := w.flushBlock(); err != nil {
			return 0, 0, 0, err
		}
	}

	offset := int64(len(w.blockBuf))
	header := make([]byte, checksumHeaderSize)
	putUint64(header, xxhash.Sum64(payload))
	w.blockBuf = append(w.blockBuf, header...)
	w.blockBuf = append(w.blockBuf, payload...)

	w.hunkCount++
	w.totalLength += int64(len(payload))

	return w.blockIndex, offset, int64(len(payload)), nil
}

func (w *Writer) flushBlock() error {
	if len(w.blockBuf) == 0 {
		return nil
	}
	n, err := w.sw.Write(w.blockBuf)
	if err != nil {
		return fmt.Errorf("hunk: flush block %d: %w", w.blockIndex, err)
	}
	w.blocks = append(w.blocks, blockIndexEntry{DecompressedLength: int64(n)})
	w.blockIndex++
	w.blockBuf = w.blockBuf[:0]
	return nil
}

// Close flushes any remaining buffered block and finalizes the hunk
// chunk, writing the sidecar index. It returns the summary used to
// populate the owning chunk's hunk-chunk-refs table.
func (w *Writer) Close() (hunkCount, totalHunkLength int64, err error) {
	if err := w.flushBlock(); err != nil {
		return 0, 0, err
	}
	if err := w.sw.Close(); err != nil {
		return 0, 0, err
	}
	if err := w.f.Close(); err != nil {
		return 0, 0, err
	}

	idx := sidecarIndex{Blocks: w.blocks, HunkCount: w.hunkCount, TotalHunkLength: w.totalLength}
	data, err := msgpack.Marshal(idx)
	if err != nil {
		return 0, 0, err
	}
	if err := os.WriteFile(w.indexPath, data, 0o644); err != nil {
		return 0, 0, err
	}

	return w.hunkCount, w.totalLength, nil
}
