package chunkbody

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// journalIndexRecordSize matches internal/location's expectation during
// scan: {rowOffset int64, rowLength int32}.
const journalIndexRecordSize = 12

// JournalReader serves reads against a journal chunk's append log via
// its changelog index.
type JournalReader struct {
	mu     sync.Mutex
	data   *os.File
	index  *os.File
	sealed bool
}

// OpenJournalReader opens a journal chunk's data and index files.
func OpenJournalReader(dataPath, indexPath string, sealed bool) (*JournalReader, error) {
	data, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	index, err := os.Open(indexPath)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &JournalReader{data: data, index: index, sealed: sealed}, nil
}

// Close releases the underlying file handles.
func (r *JournalReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err1 := r.data.Close()
	err2 := r.index.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Sealed reports whether the journal chunk has been sealed.
func (r *JournalReader) Sealed() bool { return r.sealed }

// RowCount returns the number of entries recorded in the index.
func (r *JournalReader) RowCount() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, err := r.index.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size() / journalIndexRecordSize, nil
}

func (r *JournalReader) readIndexEntry(row int64) (offset int64, length int32, err error) {
	buf := make([]byte, journalIndexRecordSize)
	if _, err := r.index.ReadAt(buf, row*journalIndexRecordSize); err != nil {
		return 0, 0, err
	}
	offset = int64(binary.LittleEndian.Uint64(buf[0:8]))
	length = int32(binary.LittleEndian.Uint32(buf[8:12])) //nolint:gosec // row lengths fit in int32
	return offset, length, nil
}

// ReadBlocks reads count rows (treated as blocks for the purposes of
// BlockReader) starting at row index first.
func (r *JournalReader) ReadBlocks(first, count int) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, count)
	for i := range count {
		off, length, err := r.readIndexEntry(int64(first + i))
		if err != nil {
			return nil, fmt.Errorf("chunkbody: journal index read row %d: %w", first+i, err)
		}
		buf := make([]byte, length)
		if _, err := r.data.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("chunkbody: journal data read row %d: %w", first+i, err)
		}
		out[i] = buf
	}
	return out, nil
}

// JournalWriter appends rows to a journal chunk's data file, maintaining
// the fixed-size changelog index as it goes (spec §4.1, §12).
type JournalWriter struct {
	mu        sync.Mutex
	data      *os.File
	index     *os.File
	offset    int64
	sealedPath string
}

// CreateJournalWriter creates the data and index files for a new
// journal chunk.
func CreateJournalWriter(dataPath, indexPath, sealedPath string) (*JournalWriter, error) {
	data, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	index, err := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &JournalWriter{data: data, index: index, sealedPath: sealedPath}, nil
}

// PutBlocks appends rows to the changelog.
func (w *JournalWriter) PutBlocks(first int, rows [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, row := range rows {
		n, err := w.data.Write(row)
		if err != nil {
			return err
		}
		rec := make([]byte, journalIndexRecordSize)
		binary.LittleEndian.PutUint64(rec[0:8], uint64(w.offset))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(n)) //nolint:gosec // row sizes bounded well under 2^32
		if _, err := w.index.Write(rec); err != nil {
			return err
		}
		w.offset += int64(n)
	}
	return nil
}

// Flush syncs both the data and index files.
func (w *JournalWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.data.Sync(); err != nil {
		return err
	}
	return w.index.Sync()
}

// Seal writes the empty ".sealed" marker file and closes the writer's
// handles (spec §6).
func (w *JournalWriter) Seal() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.Create(w.sealedPath)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := w.data.Close(); err != nil {
		return err
	}
	return w.index.Close()
}

// Cancel closes the handles without sealing; the caller is expected to
// trash the data/index files.
func (w *JournalWriter) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data.Close()
	w.index.Close()
	return nil
}
