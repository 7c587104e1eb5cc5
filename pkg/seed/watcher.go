package seed

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/gatekeeper/pkg/async"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// DefaultReloadDelay coalesces bursts of writes from editors into one apply
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher re-applies a seed file whenever it changes on disk.
//
// The parent directory is watched rather than the file so that editors which
// replace the file by rename are still picked up.
type Watcher struct {
	applier  *Applier
	path     string
	delay    time.Duration
	logger   *observability.Logger
	watcher  *fsnotify.Watcher
	onReload func(*Result, error)
}

// NewWatcher creates a watcher for path. A non-positive delay uses DefaultReloadDelay.
func NewWatcher(applier *Applier, path string, delay time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve seed path: %w", err)
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		applier: applier,
		path:    abs,
		delay:   delay,
		logger:  applier.logger.WithField("seed_file", abs),
		watcher: fw,
	}, nil
}

// OnReload registers a callback invoked after every reload attempt
func (w *Watcher) OnReload(fn func(*Result, error)) {
	w.onReload = fn
}

// Start runs the watch loop in the background until ctx is canceled or the
// watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	async.SafeGo(observability.WithLogger(ctx, w.logger), 0, "seed watcher", w.Run)
}

// Run blocks processing file events until ctx is canceled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Info("watching seed file")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("seed watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	result, err := w.applier.ApplyFile(ctx, w.path)
	if err != nil {
		w.logger.WithError(err).Error("failed to reload seed file")
	} else {
		w.logger.Info("seed file reloaded")
	}
	if w.onReload != nil {
		w.onReload(result, err)
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
