package serve

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentctl/agentctl/internal/logging"
)

// watchLockRelease blocks until lockPath is removed (the server releasing
// its writer lock on clean shutdown), ctx is cancelled, or deadline
// elapses. It returns at once if the watcher cannot be set up, since
// Stop's poll loop is still the authoritative fallback.
func watchLockRelease(ctx context.Context, lockPath string, deadline time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Debug().Err(err).Msg("fsnotify watcher unavailable, falling back to polling")
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(lockPath)
	if err := watcher.Add(dir); err != nil {
		logging.Debug().Err(err).Str("dir", dir).Msg("fsnotify watch on control-plane dir failed")
		return
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name == lockPath && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				return
			}
			if _, err := os.Stat(lockPath); os.IsNotExist(err) {
				return
			}
		case <-watcher.Errors:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		}
	}
}
