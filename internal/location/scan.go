package location

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"datanode/internal/chunkid"
)

const (
	metaSuffix   = ".meta"
	indexSuffix  = ".index"
	sealedSuffix = ".sealed"
)

type parts struct {
	data  string
	dataSize int64
	hasData bool
	meta  string
	metaSize int64
	hasMeta bool
	index string
	hasIndex bool
	sealed string
	hasSealed bool
}

// Scan enumerates regular files under Path, ignoring the trash
// subdirectory and the reserved cell-id/disabled/health-probe files
// (spec §4.1 scan()). Files whose base name does not parse as a chunk id
// are logged and skipped. Half-present chunks are repaired per the
// rules in spec §4.1; scan failure disables the location.
func (l *Location) Scan(ctx context.Context) ([]Descriptor, error) {
	byID := make(map[chunkid.ID]*parts)

	err := filepath.WalkDir(l.cfg.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.cfg.Path && d.Name() == trashDirName {
				return filepath.SkipDir
			}
			return nil
		}
		base := filepath.Base(path)
		switch base {
		case cellIDFileName, disabledFileName, healthProbeName:
			return nil
		}
		for _, g := range l.cfg.IgnoreGlobs {
			if ok, _ := doublestar.Match(g, base); ok {
				return nil
			}
		}

		idStr, suffix := splitSuffix(base)
		id, perr := chunkid.Parse(idStr)
		if perr != nil {
			l.logger.Warn("scan: unparseable chunk file, skipping", "path", path)
			return nil
		}

		p, ok := byID[id]
		if !ok {
			p = &parts{}
			byID[id] = p
		}
		info, ierr := d.Info()
		var size int64
		if ierr == nil {
			size = info.Size()
		}
		switch suffix {
		case "":
			p.data, p.dataSize, p.hasData = path, size, true
		case metaSuffix:
			p.meta, p.metaSize, p.hasMeta = path, size, true
		case indexSuffix:
			p.index, p.hasIndex = path, true
		case sealedSuffix:
			p.sealed, p.hasSealed = path, true
		}
		return nil
	})
	if err != nil {
		l.Disable(err)
		return nil, err
	}

	var descriptors []Descriptor
	for id, p := range byID {
		desc, ok := l.repair(id, p)
		if ok {
			descriptors = append(descriptors, desc)
		}
	}
	return descriptors, nil
}

// splitSuffix separates a file's base name into the chunk-id prefix and
// a recognized suffix ("" for blob data).
func splitSuffix(base string) (id string, suffix string) {
	for _, s := range []string{metaSuffix, indexSuffix, sealedSuffix} {
		if len(base) > len(s) && base[len(base)-len(s):] == s {
			return base[:len(base)-len(s)], s
		}
	}
	return base, ""
}

// repair implements the half-present chunk repair table of spec §4.1.
func (l *Location) repair(id chunkid.ID, p *parts) (Descriptor, bool) {
	switch id.ObjectType() {
	case chunkid.Journal:
		return l.repairJournal(id, p)
	default:
		return l.repairBlob(id, p)
	}
}

func (l *Location) repairBlob(id chunkid.ID, p *parts) (Descriptor, bool) {
	switch {
	case p.hasData && !p.hasMeta:
		// data only, meta missing -> data moved to trash
		_ = l.moveToTrash(id, []string{p.data}, p.dataSize)
		return Descriptor{}, false
	case p.hasMeta && !p.hasData:
		// meta only, data missing -> meta moved to trash
		_ = l.moveToTrash(id, []string{p.meta}, p.metaSize)
		return Descriptor{}, false
	case p.hasData && p.hasMeta && p.metaSize == 0:
		// meta present, size 0 -> both removed
		_ = l.moveToTrash(id, []string{p.data, p.meta}, p.dataSize+p.metaSize)
		return Descriptor{}, false
	case p.hasData && p.hasMeta:
		return Descriptor{ID: id, DiskSpace: p.dataSize + p.metaSize, Sealed: true}, true
	default:
		return Descriptor{}, false
	}
}

func (l *Location) repairJournal(id chunkid.ID, p *parts) (Descriptor, bool) {
	switch {
	case p.hasData:
		rowCount, sealed, err := openChangelog(p.data, p.index, p.hasSealed)
		if err != nil {
			l.logger.Warn("scan: failed to open journal changelog", "chunk", id.String(), "error", err)
			return Descriptor{}, false
		}
		return Descriptor{ID: id, DiskSpace: p.dataSize, RowCount: rowCount, Sealed: sealed}, true
	case p.hasIndex && !p.hasData:
		_ = l.moveToTrash(id, []string{p.index}, 0)
		return Descriptor{}, false
	default:
		return Descriptor{}, false
	}
}
