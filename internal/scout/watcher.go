package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the window in which notifications collapse into
// one change signal. Editors often write a file several times per save.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatchedDirGone is returned by Watch when the watched file's parent
// directory is removed or renamed. The backend drops the watch with it,
// so the caller has to start a new one.
var ErrWatchedDirGone = errors.New("watched directory removed")

// Watcher reports changes to a single file. It watches the file's parent
// directory (non-recursively) and filters by name, so the watch survives
// editors that save by writing a temp file and renaming it over the
// original.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	// onStart, if set, runs once the watch is registered.
	onStart func()
}

// NewWatcher creates a watcher for path. onChange is called once per
// debounce window in which at least one notification arrived.
func NewWatcher(path string, debounce time.Duration, onChange func(), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Watch blocks until ctx is cancelled, the notification channels
// close, or the parent directory goes away (ErrWatchedDirGone). Errors
// from the notification backend are logged and do not stop the loop.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.logger.Info("file watcher started", slog.String("path", w.path))

	if w.onStart != nil {
		w.onStart()
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if filepath.Clean(event.Name) == dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return fmt.Errorf("%s: %w", dir, ErrWatchedDirGone)
			}

			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("watch event", slog.String("op", event.Op.String()), slog.String("path", event.Name))

			// The window starts at the first notification; later ones
			// inside it are absorbed.
			if fire == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			timer = nil

			w.onChange()
		}
	}
}

// relevant reports whether event concerns the watched file. Attribute
// only changes are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}

	return event.Op&^fsnotify.Chmod != 0
}
