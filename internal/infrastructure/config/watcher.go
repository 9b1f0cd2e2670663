package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file on change and hands the fresh Config to a
// callback. Changes are debounced: editors tend to emit bursts of write and
// rename events for a single save.
type Watcher struct {
	path     string
	logger   *zerolog.Logger
	debounce time.Duration
}

func NewWatcher(path string, logger *zerolog.Logger) *Watcher {
	return &Watcher{path: path, logger: logger, debounce: 200 * time.Millisecond}
}

// Watch blocks until ctx is cancelled, invoking onReload with each
// successfully reloaded Config. Reload failures are logged and skipped; the
// previous configuration stays in effect.
func (w *Watcher) Watch(ctx context.Context, onReload func(Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory, not the file: rename-over saves replace the
	// inode and would silently detach a file-level watch.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous")
				continue
			}
			w.logger.Info().Str("path", w.path).Msg("config reloaded")
			onReload(cfg)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("config watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}
