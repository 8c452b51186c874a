package desired

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses editor write bursts into a single reload.
const watchDebounce = 500 * time.Millisecond

// Watch blocks until ctx is cancelled, reloading the desired state
// whenever one of the input files changes and handing each fresh state
// to reloadFn. Reload failures are logged and watching continues, so a
// half-saved file does not kill the watch loop.
func (l *Loader) Watch(ctx context.Context, reloadFn func(*State) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	l.logger.Info().Str("dir", l.dir).Msg("Watching desired state for changes")

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
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
			if !isDesiredFile(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Desired state file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(watchDebounce, func() {
				state, err := l.Load()
				if err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload desired state")
					return
				}
				if err := reloadFn(state); err != nil {
					l.logger.Error().Err(err).Msg("Failed to apply reloaded desired state")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// isDesiredFile reports whether path is one of the loader's inputs.
func isDesiredFile(path string) bool {
	switch filepath.Base(path) {
	case BlueprintsFile, AppConfigFile, WebhookMappingsFile:
		return true
	default:
		return false
	}
}
