package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called with the key of a collection file that changed on disk.
type ChangeFunc func(key string)

const watchDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the FS adapter's directory and reports
// external edits of collection files until ctx is cancelled. Events are
// debounced, and writes made by the adapter itself are ignored.
func Watch(ctx context.Context, f *FS, logger *slog.Logger, cb ChangeFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", f.Root()))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			fire = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			for key := range pending {
				if f.OwnWrite(key) {
					continue
				}
				logger.Debug("watcher: collection changed", slog.String("key", key))
				cb(key)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := f.KeyOf(ev.Name)
			if !ok {
				continue
			}
			pending[key] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
