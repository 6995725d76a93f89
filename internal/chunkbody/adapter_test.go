package chunkbody

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
)

type fakeSender struct {
	target string
	id     chunkid.ID
	first  int
	blocks [][]byte
}

func (s *fakeSender) SendBlocks(ctx context.Context, target string, id chunkid.ID, first, count int, blocks [][]byte) error {
	s.target = target
	s.id = id
	s.first = first
	s.blocks = blocks
	return nil
}

func newTestSessionWriter(t *testing.T) (*SessionWriter, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	id := chunkid.New(chunkid.Blob, 0)
	data := filepath.Join(dir, "chunk")
	meta := filepath.Join(dir, "chunk.meta")

	bw, err := CreateBlobWriter(data, meta)
	if err != nil {
		t.Fatalf("CreateBlobWriter: %v", err)
	}
	sender := &fakeSender{}
	return &SessionWriter{ID: id, Blob: bw, Sender: sender, DataPath: data}, sender
}

func TestSessionWriterPutBlocksBuffersForSend(t *testing.T) {
	w, _ := newTestSessionWriter(t)

	if err := w.PutBlocks(context.Background(), 0, [][]byte{[]byte("a"), []byte("b")}); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if len(w.blocks) != 2 {
		t.Fatalf("buffered blocks = %d, want 2", len(w.blocks))
	}
}

func TestSessionWriterSendBlocksForwardsToSender(t *testing.T) {
	w, sender := newTestSessionWriter(t)

	if err := w.PutBlocks(context.Background(), 0, [][]byte{[]byte("a"), []byte("b"), []byte("c")}); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if err := w.SendBlocks(context.Background(), 1, 2, "peer-addr:9"); err != nil {
		t.Fatalf("SendBlocks: %v", err)
	}
	if sender.target != "peer-addr:9" || sender.first != 1 || len(sender.blocks) != 2 {
		t.Fatalf("sender received target=%q first=%d blocks=%d, want peer-addr:9/1/2", sender.target, sender.first, len(sender.blocks))
	}
	if sender.id != w.ID {
		t.Fatal("sender did not receive the session's chunk id")
	}
}

func TestSessionWriterSendBlocksOutOfRangeErrors(t *testing.T) {
	w, _ := newTestSessionWriter(t)
	if err := w.PutBlocks(context.Background(), 0, [][]byte{[]byte("a")}); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if err := w.SendBlocks(context.Background(), 0, 5, "peer"); err == nil {
		t.Fatal("expected out-of-range SendBlocks to error")
	}
}

func TestSessionWriterFinishSealsBlobAndResolvesHunkRefs(t *testing.T) {
	w, _ := newTestSessionWriter(t)
	if err := w.PutBlocks(context.Background(), 0, [][]byte{[]byte("a")}); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}

	meta := &chunkregistry.Meta{
		RowCount: 1,
		HunkRefs: []chunkregistry.HunkChunkRef{
			{ChunkID: chunkid.New(chunkid.Blob, 1), ErasureCodec: 2, HunkCount: 3, TotalHunkLength: 40},
		},
	}
	if err := w.Finish(context.Background(), meta, 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := OpenBlobReader(w.DataPath, w.DataPath+".meta")
	if err != nil {
		t.Fatalf("OpenBlobReader: %v", err)
	}
	defer r.Close()
	if r.BlockCount() != 1 {
		t.Fatalf("BlockCount() = %d, want 1", r.BlockCount())
	}
	refs := r.Meta().HunkRefs
	if len(refs) != 1 || refs[0].ErasureCodec != 2 || refs[0].HunkCount != 3 || refs[0].TotalHunkLength != 40 {
		t.Fatalf("Meta().HunkRefs = %+v, want one ref {ErasureCodec:2 HunkCount:3 TotalHunkLength:40}", refs)
	}
}

func TestSessionWriterCancelRemovesBlobDataFile(t *testing.T) {
	w, _ := newTestSessionWriter(t)
	if err := w.Cancel(context.Background(), "client abort"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := os.Stat(w.DataPath); !os.IsNotExist(err) {
		t.Fatal("expected Cancel to remove the blob data file")
	}
}
