package location

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"datanode/internal/chunkid"
)

// moveToTrash moves a chunk's parts into the trash directory, preserving
// modification time, and records a trash entry. Both the entry list and
// trashDiskSpace are updated under trashMu (spec §3 trash entry
// invariant: "both are updated under one lock").
func (l *Location) moveToTrash(id chunkid.ID, parts []string, diskSpace int64) error {
	dir := filepath.Join(l.cfg.Path, trashDirName, id.DirPrefix())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	trashed := make([]string, 0, len(parts))
	for _, p := range parts {
		dst := filepath.Join(dir, filepath.Base(p))
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if err := os.Rename(p, dst); err != nil {
			return err
		}
		if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
			l.logger.Warn("failed to preserve mtime on trashed part", "path", dst, "error", err)
		}
		trashed = append(trashed, dst)
	}

	l.trashMu.Lock()
	l.trash = append(l.trash, trashEntry{
		ChunkID:   id,
		DiskSpace: diskSpace,
		Timestamp: l.now(),
		Parts:     trashed,
	})
	sort.Slice(l.trash, func(i, j int) bool { return l.trash[i].Timestamp.Before(l.trash[j].Timestamp) })
	l.trashDiskSpace.Add(diskSpace)
	l.trashMu.Unlock()

	if l.cfg.Archival != nil {
		go l.mirrorToArchive(context.Background(), id, trashed)
	}

	return nil
}

func (l *Location) mirrorToArchive(ctx context.Context, id chunkid.ID, paths []string) {
	parts := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		parts[filepath.Base(p)] = data
	}
	if err := l.cfg.Archival.Upload(ctx, id, parts); err != nil {
		l.logger.Warn("archival mirror upload failed", "chunk", id.String(), "error", err)
	}
}

// removeTrashEntry deletes an entry's files from disk and removes it
// from the trash list, decrementing trashDiskSpace under the same lock.
func (l *Location) removeTrashEntry(idx int) {
	entry := l.trash[idx]
	for _, p := range entry.Parts {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("failed removing trashed part", "path", p, "error", err)
		}
	}
	l.trash = append(l.trash[:idx], l.trash[idx+1:]...)
	l.trashDiskSpace.Add(-entry.DiskSpace)
}

// TrashDiskSpace returns the sum of diskSpace over trash entries (spec
// §8 "Trash consistency").
func (l *Location) TrashDiskSpace() int64 { return l.trashDiskSpace.Load() }

// runTrashCheck enforces the two trash rules (spec §4.1):
// (a) entries older than MaxTrashTTL are removed;
// (b) while availableSpace - trashDiskSpace < TrashCleanup watermark,
// the oldest entries are removed until the condition clears.
func (l *Location) runTrashCheck() {
	now := l.now()

	l.trashMu.Lock()
	defer l.trashMu.Unlock()

	// Rule (a): TTL expiry, oldest-first since the slice is sorted.
	i := 0
	for i < len(l.trash) && now.Sub(l.trash[i].Timestamp) > l.cfg.MaxTrashTTL {
		l.removeTrashEntry(i)
		// removeTrashEntry shrank the slice in place at index i; re-check i.
	}

	// Rule (b): watermark-driven cleanup.
	avail, _ := l.GetAvailableSpace()
	for len(l.trash) > 0 && avail-l.trashDiskSpace.Load() < l.cfg.Watermarks.TrashCleanup {
		l.removeTrashEntry(0)
		avail, _ = l.GetAvailableSpace()
	}
}
