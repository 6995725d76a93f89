package location

import (
	"os"
	"path/filepath"

	"datanode/internal/chunkid"
)

// RemoveChunkFiles removes a chunk's on-disk parts. On Store locations,
// force=false moves parts to trash (preserving modification time);
// force=true deletes. Cache locations always delete (spec §4.1).
func (l *Location) RemoveChunkFiles(id chunkid.ID, partPaths []string, diskSpace int64, force bool) error {
	if l.cfg.Type == Cache || force {
		for _, p := range partPaths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		l.AddUsedSpace(-diskSpace)
		return nil
	}
	if err := l.moveToTrash(id, partPaths, diskSpace); err != nil {
		return err
	}
	l.AddUsedSpace(-diskSpace)
	return nil
}

// BlobParts returns the conventional on-disk paths for a blob chunk's
// data and meta files (spec §6 on-disk layout).
func (l *Location) BlobParts(id chunkid.ID) (data, meta string) {
	dir := filepath.Join(l.cfg.Path, id.DirPrefix())
	return filepath.Join(dir, id.String()), filepath.Join(dir, id.String()+metaSuffix)
}

// JournalParts returns the conventional on-disk paths for a journal
// chunk's data, index, and sealed-marker files.
func (l *Location) JournalParts(id chunkid.ID) (data, index, sealed string) {
	dir := filepath.Join(l.cfg.Path, id.DirPrefix())
	base := filepath.Join(dir, id.String())
	return base, base + indexSuffix, base + sealedSuffix
}
