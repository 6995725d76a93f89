package chunkbody

import (
	"context"
	"fmt"

	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
)

// PeerSender forwards already-written blocks to a downstream replica
// (spec §4.5 "sendBlocks (tree-push replication)"). Implemented by
// internal/peerconn's connection pool.
type PeerSender interface {
	SendBlocks(ctx context.Context, target string, id chunkid.ID, first, count int, blocks [][]byte) error
}

// SessionWriter adapts a BlobWriter or JournalWriter plus a PeerSender
// into the chunkregistry.Writer interface consumed by an open session.
type SessionWriter struct {
	ID       chunkid.ID
	Blob     *BlobWriter
	Journal  *JournalWriter
	Sender   PeerSender
	DataPath string
	IndexPath string

	blocks [][]byte // buffered for SendBlocks by index
}

var _ chunkregistry.Writer = (*SessionWriter)(nil)

func (w *SessionWriter) PutBlocks(ctx context.Context, first int, blocks [][]byte) error {
	w.blocks = append(w.blocks, blocks...)
	if w.Blob != nil {
		return w.Blob.PutBlocks(first, blocks)
	}
	return w.Journal.PutBlocks(first, blocks)
}

func (w *SessionWriter) SendBlocks(ctx context.Context, first, count int, target string) error {
	if first < 0 || first+count > len(w.blocks) {
		return fmt.Errorf("chunkbody: sendBlocks range [%d,%d) out of buffered range (%d)", first, first+count, len(w.blocks))
	}
	return w.Sender.SendBlocks(ctx, target, w.ID, first, count, w.blocks[first:first+count])
}

func (w *SessionWriter) FlushBlocks(ctx context.Context, lastIndex int) error {
	if w.Blob != nil {
		return w.Blob.Flush()
	}
	return w.Journal.Flush()
}

func (w *SessionWriter) Finish(ctx context.Context, meta *chunkregistry.Meta, blockCount int) error {
	hunkRefs := make([]HunkChunkRef, len(meta.HunkRefs))
	for i, h := range meta.HunkRefs {
		hunkRefs[i] = HunkChunkRef{
			ChunkID:         h.ChunkID,
			ErasureCodec:    h.ErasureCodec,
			HunkCount:       h.HunkCount,
			TotalHunkLength: h.TotalHunkLength,
		}
	}
	if w.Blob != nil {
		return w.Blob.Finish(hunkRefs, nil)
	}
	return w.Journal.Seal()
}

func (w *SessionWriter) Cancel(ctx context.Context, reason string) error {
	if w.Blob != nil {
		return w.Blob.Cancel(w.DataPath)
	}
	return w.Journal.Cancel()
}
