// Package watch re-runs a callback whenever a log file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

type Options struct {
	// Debounce is the quiet period after the last event before the callback
	// runs. Zero means 250ms.
	Debounce time.Duration
	// Initial runs the callback once before waiting for changes.
	Initial bool
	Logger  *zap.Logger
}

type Watcher struct {
	path     string
	debounce time.Duration
	initial  bool
	logger   *zap.Logger
}

func New(path string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{path: abs, debounce: opts.Debounce, initial: opts.Initial, logger: opts.Logger}, nil
}

func (w *Watcher) Path() string { return w.path }

// Run watches the file's directory so editors that replace the file by
// rename are still seen. Callback errors are logged and do not stop the
// watch. Run returns nil once ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching log file", zap.String("path", w.path), zap.Duration("debounce", w.debounce))

	if w.initial {
		w.fire(ctx, onChange)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("log file event", zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-timer.C:
			w.fire(ctx, onChange)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, onChange func(context.Context) error) {
	if err := onChange(ctx); err != nil {
		w.logger.Error("log file reload failed", zap.String("path", w.path), zap.Error(err))
	}
}
