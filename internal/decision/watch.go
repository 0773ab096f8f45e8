package decision

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces bursts of file events from editors.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the registry from dir whenever a table file changes, until ctx
// is done. A failed reload keeps the previous tables and is passed to
// onReload, which may be nil.
func (r *Registry) Watch(ctx context.Context, dir string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch decisions dir: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		err := r.LoadDir(dir)
		if err != nil {
			r.logger.Warn("decision table reload failed", "dir", dir, "error", err)
		} else {
			r.logger.Info("decision tables reloaded", "dir", dir, "count", len(r.IDs()))
		}
		if onReload != nil {
			onReload(err)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isTableFile(event.Name) {
				continue
			}
			r.logger.Debug("decision table changed", "file", filepath.Base(event.Name), "op", event.Op.String())

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("decision watcher error", "error", err)
		}
	}
}
