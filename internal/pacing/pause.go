package pacing

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// PauseSource reports whether the operator has paused the campaign.
// It is polled before every send decision.
type PauseSource interface {
	IsPaused() bool
}

// FlagFile is a PauseSource backed by the presence of a flag file. A
// filesystem watcher keeps the cached state fresh so a pause is picked up
// without waiting for the next poll; every IsPaused call still stats the
// file as a fallback.
type FlagFile struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	paused  atomic.Bool
	done    chan struct{}
}

// NewFlagFile creates a flag-file pause source watching path
func NewFlagFile(path string, logger *slog.Logger) (*FlagFile, error) {
	f := &FlagFile{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	f.paused.Store(exists(path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Degrade to stat-only polling.
		if logger != nil {
			logger.Warn("pause flag watcher unavailable, falling back to polling", "error", err)
		}
		return f, nil
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		if logger != nil {
			logger.Warn("failed to watch pause flag directory, falling back to polling", "dir", dir, "error", err)
		}
		return f, nil
	}

	f.watcher = watcher
	go f.watch()
	return f, nil
}

// IsPaused reports whether the flag file currently exists
func (f *FlagFile) IsPaused() bool {
	paused := exists(f.path)
	f.paused.Store(paused)
	return paused
}

// Close stops the filesystem watcher
func (f *FlagFile) Close() error {
	close(f.done)
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FlagFile) watch() {
	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Name != f.path {
				continue
			}
			paused := exists(f.path)
			if f.paused.Swap(paused) != paused && f.logger != nil {
				if paused {
					f.logger.Info("campaign paused by operator", "flag", f.path)
				} else {
					f.logger.Info("campaign resumed by operator", "flag", f.path)
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			if f.logger != nil {
				f.logger.Warn("pause flag watcher error", "error", err)
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Pause creates the flag file
func Pause(path string) error {
	return os.WriteFile(path, []byte("PAUSED\n"), 0644)
}

// Resume removes the flag file if present
func Resume(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StaticPause is a fixed in-memory PauseSource, useful in tests
type StaticPause bool

func (s StaticPause) IsPaused() bool { return bool(s) }
