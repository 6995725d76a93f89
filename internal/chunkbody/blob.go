// Package chunkbody implements the format-specific chunk body
// interfaces (spec §4.1 C3): blob chunks are a sequential block log with
// an index persisted in the sidecar meta file; journal chunks are an
// append-only changelog with a sealed flag. Both expose the block-index
// addressing that internal/blockstore reads through.
package chunkbody

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"datanode/internal/chunkid"
)

// Codec selects the compressor applied to a blob chunk's blocks. It is
// chosen once per chunk, at CreateBlobWriter time, and persisted in the
// sidecar meta so a reader can pick the matching decompressor without
// out-of-band configuration.
type Codec uint8

const (
	// CodecZstd compresses each block as an independent zstd frame. It
	// is the default: fast to decode, the same library internal/hunk
	// already depends on for its seekable frames.
	CodecZstd Codec = iota
	// CodecBrotli trades encode speed for a denser block, useful for
	// cold chunks that are written once and read rarely.
	CodecBrotli
)

// BlockIndexEntry locates one (compressed) block within a blob data file.
type BlockIndexEntry struct {
	Offset int64
	Length int32
}

// BlobMeta is the sidecar ".meta" file contents for a blob chunk (spec
// §6: "blob meta protobuf" — here msgpack, per internal/rpcwire's wire
// codec choice, since the wire format is out of scope and no protobuf
// schema is supplied).
type BlobMeta struct {
	Index    []BlockIndexEntry
	RowCount int64
	HunkRefs []HunkChunkRef
	Attrs    map[string]string
	Codec    Codec
}

// HunkChunkRef mirrors chunkregistry.HunkChunkRef; duplicated here (a
// plain data shape, not behavior) to avoid an import cycle between
// chunkbody and chunkregistry.
type HunkChunkRef struct {
	ChunkID         chunkid.ID
	ErasureCodec    uint32
	HunkCount       int64
	TotalHunkLength int64
}

// BlobReader serves reads against a sealed blob chunk.
type BlobReader struct {
	mu   sync.Mutex
	f    *os.File
	meta BlobMeta
}

// OpenBlobReader opens the data file and loads the block index from the
// sidecar meta file.
func OpenBlobReader(dataPath, metaPath string) (*BlobReader, error) {
	meta, err := ReadBlobMeta(metaPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	return &BlobReader{f: f, meta: meta}, nil
}

// ReadBlobMeta decodes the msgpack-encoded sidecar meta file.
func ReadBlobMeta(metaPath string) (BlobMeta, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return BlobMeta{}, err
	}
	var meta BlobMeta
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return BlobMeta{}, fmt.Errorf("chunkbody: decode blob meta: %w", err)
	}
	return meta, nil
}

// WriteBlobMeta encodes and writes the sidecar meta file.
func WriteBlobMeta(metaPath string, meta BlobMeta) error {
	data, err := msgpack.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, data, 0o644)
}

// Close releases the underlying file handle.
func (r *BlobReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// BlockCount returns the number of indexed blocks.
func (r *BlobReader) BlockCount() int { return len(r.meta.Index) }

// Meta returns the loaded sidecar meta.
func (r *BlobReader) Meta() BlobMeta { return r.meta }

// ReadBlocks reads count blocks starting at first, decompressing each
// with the codec recorded in the chunk's meta.
func (r *BlobReader) ReadBlocks(first, count int) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if first < 0 || first+count > len(r.meta.Index) {
		return nil, fmt.Errorf("chunkbody: block range [%d,%d) out of bounds (have %d)", first, first+count, len(r.meta.Index))
	}

	out := make([][]byte, count)
	for i := range count {
		entry := r.meta.Index[first+i]
		buf := make([]byte, entry.Length)
		if _, err := r.f.ReadAt(buf, entry.Offset); err != nil {
			return nil, fmt.Errorf("chunkbody: read block %d: %w", first+i, err)
		}
		block, err := decodeBlock(r.meta.Codec, buf)
		if err != nil {
			return nil, fmt.Errorf("chunkbody: decompress block %d: %w", first+i, err)
		}
		out[i] = block
	}
	return out, nil
}

// decodeBlock reverses encodeBlock for the given codec.
func decodeBlock(codec Codec, compressed []byte) ([]byte, error) {
	switch codec {
	case CodecBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	default:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(compressed, nil)
	}
}

// encodeBlock compresses one block under the given codec.
func encodeBlock(codec Codec, block []byte) ([]byte, error) {
	switch codec {
	case CodecBrotli:
		var buf bytes.Buffer
		bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := bw.Write(block); err != nil {
			bw.Close()
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(block, nil), nil
	}
}

var (
	sharedZstdEncoder    *zstd.Encoder
	sharedZstdDecoder    *zstd.Decoder
	sharedZstdEncoderErr error
	sharedZstdDecoderErr error
	sharedZstdOnce       sync.Once
)

// zstdEncoder and zstdDecoder lazily build the process-wide zstd
// encoder/decoder blob codec blocks share; both types are safe for
// concurrent use per klauspost/compress/zstd's own documentation.
func zstdEncoder() (*zstd.Encoder, error) {
	sharedZstdOnce.Do(initSharedZstd)
	return sharedZstdEncoder, sharedZstdEncoderErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	sharedZstdOnce.Do(initSharedZstd)
	return sharedZstdDecoder, sharedZstdDecoderErr
}

func initSharedZstd() {
	sharedZstdEncoder, sharedZstdEncoderErr = zstd.NewWriter(nil)
	sharedZstdDecoder, sharedZstdDecoderErr = zstd.NewReader(nil)
}

// BlobWriter accumulates blocks into a sequential data file and tracks
// the block index, finalized into the sidecar meta file on Finish.
type BlobWriter struct {
	mu       sync.Mutex
	f        *os.File
	index    []BlockIndexEntry
	offset   int64
	metaPath string
	codec    Codec
}

// CreateBlobWriter creates the data file for a new blob chunk. codec
// selects the block compressor; omitting it defaults to CodecZstd, so
// existing call sites that only ever wrote zstd blocks keep compiling.
func CreateBlobWriter(dataPath, metaPath string, codec ...Codec) (*BlobWriter, error) {
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	c := CodecZstd
	if len(codec) > 0 {
		c = codec[0]
	}
	return &BlobWriter{f: f, metaPath: metaPath, codec: c}, nil
}

// PutBlocks compresses and appends blocks starting at logical index
// first. Per spec §5 ("disk I/O is serialized by the location's write
// pool"), callers are expected to submit through a single-writer pool;
// PutBlocks itself only guards its own index bookkeeping.
func (w *BlobWriter) PutBlocks(first int, blocks [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if first != len(w.index) {
		return fmt.Errorf("chunkbody: out-of-order blob write: first=%d have=%d", first, len(w.index))
	}
	for i, b := range blocks {
		compressed, err := encodeBlock(w.codec, b)
		if err != nil {
			return fmt.Errorf("chunkbody: compress block %d: %w", first+i, err)
		}
		n, err := w.f.Write(compressed)
		if err != nil {
			return err
		}
		w.index = append(w.index, BlockIndexEntry{Offset: w.offset, Length: int32(n)}) //nolint:gosec // block sizes are bounded well under 2^31
		w.offset += int64(n)
	}
	return nil
}

// Flush syncs the data file to disk.
func (w *BlobWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Finish writes the sidecar meta file and closes the data file.
func (w *BlobWriter) Finish(hunkRefs []HunkChunkRef, attrs map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.f.Sync(); err != nil {
		return err
	}
	meta := BlobMeta{
		Index:    w.index,
		RowCount: int64(len(w.index)),
		HunkRefs: hunkRefs,
		Attrs:    attrs,
		Codec:    w.codec,
	}
	if err := WriteBlobMeta(w.metaPath, meta); err != nil {
		return err
	}
	return w.f.Close()
}

// Cancel discards the in-progress data file.
func (w *BlobWriter) Cancel(dataPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.f.Close()
	return os.Remove(dataPath)
}
