package location

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"time"

	"datanode/internal/dataerr"
)

const healthCheckProbeSize = 4096

// runHealthCheck writes N random bytes to a probe file, reads them back,
// compares, and removes the file. A timeout or mismatch disables the
// location (spec §4.1).
func (l *Location) runHealthCheck(ctx context.Context) {
	if !l.Enabled() {
		return
	}

	done := make(chan error, 1)
	go func() { done <- l.healthCheckOnce() }()

	select {
	case err := <-done:
		if err != nil {
			l.Disable(dataerr.Wrap(dataerr.IOError, "health check failed", err))
		}
	case <-time.After(10 * time.Second):
		l.Disable(dataerr.New(dataerr.IOError, "health check timed out"))
	case <-ctx.Done():
	}
}

func (l *Location) healthCheckOnce() error {
	probe := make([]byte, healthCheckProbeSize)
	if _, err := rand.Read(probe); err != nil {
		return err
	}

	path := filepath.Join(l.cfg.Path, healthProbeName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_SYNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(probe); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	defer os.Remove(path)

	readBack, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Equal(probe, readBack) {
		return errMismatch
	}
	return nil
}

var errMismatch = &mismatchError{}

type mismatchError struct{}

func (*mismatchError) Error() string { return "health check probe readback mismatch" }
