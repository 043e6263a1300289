package registry

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/agentboard/agentboard/internal/events"
)

// Watch reloads the registry whenever its backing file is written, so
// edits take effect without waiting for a SIGHUP. It blocks until ctx is
// canceled or the watcher fails to start, and is meant to run in its own
// goroutine alongside the SIGHUP handler in cli/serve.go. A successful
// reload publishes EventRegistryReloaded on pub, which may be nil.
func (r *Registry) Watch(ctx context.Context, log *slog.Logger, pub events.Publisher) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Name != r.path || !event.Has(fsnotify.Write) {
				continue
			}
			if err := r.Reload(); err != nil {
				log.Warn("registry reload failed", "path", r.path, "error", err)
				continue
			}
			log.Info("registry reloaded", "path", r.path)
			if pub != nil {
				pub.Publish(events.NewEvent(events.EventRegistryReloaded, events.GlobalTaskID, nil))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("registry watcher error", "error", err)
		}
	}
}
