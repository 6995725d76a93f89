package location

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"datanode/internal/dataerr"
)

// WatchDisabledFile watches the location's directory for an externally
// created disabled marker (operator tooling, fsck-style out-of-band
// disable) and folds it into the same disable-signal path as an
// internally detected fault. Runs until ctx is cancelled.
func (l *Location) WatchDisabledFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.cfg.Path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Join(l.cfg.Path, disabledFileName)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == target && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					l.Disable(dataerr.New(dataerr.IOError, "disabled marker created externally"))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("disabled-file watcher error", "error", err)
			}
		}
	}()
	return nil
}
