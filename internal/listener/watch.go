package listener

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Reloader interface {
	Reload(ctx context.Context) error
}

// SourceWatcher reloads the session when the local source file changes.
// Bursts of events are collapsed into one reload once writes settle.
type SourceWatcher struct {
	path     string
	debounce time.Duration
	reloader Reloader
	log      *slog.Logger
	reloaded chan struct{}
}

func NewSourceWatcher(path string, debounce time.Duration, reloader Reloader, logger *slog.Logger) *SourceWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &SourceWatcher{
		path:     filepath.Clean(abs),
		debounce: debounce,
		reloader: reloader,
		log:      logger.With(slog.String("component", "source-watch"), slog.String("path", abs)),
		reloaded: make(chan struct{}, 1),
	}
}

// Reloaded receives a value after each reload attempt. Sends never block.
func (w *SourceWatcher) Reloaded() <-chan struct{} { return w.reloaded }

// Run watches the file's directory, so editors that replace the file by
// rename are still seen, until ctx is done.
func (w *SourceWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.log.Info("source watcher started", slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.log.Debug("source change", slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.String("error", err.Error()))

		case <-timer.C:
			if err := w.reloader.Reload(ctx); err != nil {
				w.log.Warn("reload after change failed", slog.String("error", err.Error()))
			} else {
				w.log.Info("source reloaded after change")
			}
			select {
			case w.reloaded <- struct{}{}:
			default:
			}
		}
	}
}
