package dataset

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Watch refreshes the registry whenever incident files are added, removed,
// or renamed in the data directory. The onRefresh callback (optional) runs
// after each successful refresh so callers can drop derived caches.
// Watching stops when the context is cancelled.
func (r *Registry) Watch(ctx context.Context, onRefresh func()) error {
	if r.dir == "" {
		return eris.New("dataset: registry has no directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "dataset: create watcher")
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !crimeFilePattern.MatchString(filepath.Base(evt.Name)) {
					continue
				}
				if err := r.Refresh(); err != nil {
					zap.L().Warn("dataset: refresh after file event failed",
						zap.String("file", evt.Name),
						zap.Error(err),
					)
					continue
				}
				zap.L().Info("dataset: registry refreshed",
					zap.String("file", evt.Name),
					zap.Ints("years", r.Years()),
				)
				if onRefresh != nil {
					onRefresh()
				}
			case err := <-watcher.Errors:
				zap.L().Warn("dataset: watcher error", zap.Error(err))
			}
		}
	}()

	return watcher.Add(r.dir)
}
