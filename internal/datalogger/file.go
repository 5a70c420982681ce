package datalogger

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const lockFileName = ".mpd.lock"

// PrepareFile returns the path for a new log file in dir. With
// deletePrevious an earlier file of the same name is removed, otherwise a
// unique name is chosen. The directory lock keeps concurrent recorders
// from racing on the same name.
func PrepareFile(dir, identifier, ext string, deletePrevious bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("failed to lock output directory %s: %w", dir, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to unlock output directory", "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, identifier+"."+ext)
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return path, nil
	case err != nil:
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if deletePrevious {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("failed to remove previous file %s: %w", path, err)
		}
		slog.Debug("Removed previous log file", "path", path)
		return path, nil
	}

	unique := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", identifier, uuid.NewString()[:8], ext))
	return unique, nil
}
