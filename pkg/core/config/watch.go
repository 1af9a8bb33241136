package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// ChangeHandler is called with the path of a file that changed
type ChangeHandler func(path string)

// Watcher reports changes to a single file. It watches the parent directory
// so that editors replacing the file through a rename are still noticed.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onChange ChangeHandler
	debounce time.Duration
	logger   *logging.Logger
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, onChange ChangeHandler, logger *logging.Logger) (*Watcher, error) {
	if path == "" {
		return nil, verrors.New("file path required for watching").
			WithCode(verrors.CodeInvalidInput).
			WithOperation("config.NewWatcher")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, verrors.Wrap(err, "resolve watch path").WithCode(verrors.CodeInvalidInput)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, verrors.Wrap(err, "create file watcher").WithCode(verrors.CodeInternal)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		watcher:  fw,
		path:     abs,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes how long the watcher waits for further writes
// before reporting a change. Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching. It returns immediately; the event loop ends when
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return verrors.Wrap(err, "watch config directory").
			WithCode(verrors.CodeConfiguration).
			WithDetail("path", w.path)
	}
	w.running = true
	go w.run(ctx)
	w.logger.Info("Watching file", "path", w.path)
	return nil
}

// Stop ends the event loop and releases the watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	err := w.watcher.Close()
	if running {
		<-w.doneCh
	}
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "path", w.path, "error", err)

		case <-fire:
			fire = nil
			w.logger.Info("File changed", "path", w.path)
			if w.onChange != nil {
				w.onChange(w.path)
			}
		}
	}
}
