package updater

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CompletionMarker is the durable on-disk fact that an update finished and
// awaits reboot. Presence is the entire contract; the content is irrelevant.
// The orchestrator writes it once per successful cycle and never deletes it;
// cleanup happens at reboot.
type CompletionMarker struct {
	path string
}

// NewCompletionMarker creates a marker handle for the given path.
func NewCompletionMarker(path string) CompletionMarker {
	return CompletionMarker{path: path}
}

// Path returns the marker file location.
func (m CompletionMarker) Path() string { return m.path }

// Exists reports whether the marker is present.
func (m CompletionMarker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Write creates the marker file. An already-present marker is not an error.
// A write failure must not invalidate the finished update; the caller logs
// it and proceeds.
func (m CompletionMarker) Write() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("create completion marker: %w", err)
	}
	return f.Close()
}
