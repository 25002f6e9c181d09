package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the spam keyword file for changes and swaps in a freshly
// built scorer via the apply callback. Scorers stay immutable; a reload
// builds a new one.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	apply   func(*Scorer)
	logger  *slog.Logger
}

// NewReloader creates a file watcher for the keyword file at path.
func NewReloader(path string, apply func(*Scorer), logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	return &Reloader{
		watcher: watcher,
		path:    path,
		apply:   apply,
		logger:  logger,
	}, nil
}

// Run watches for file changes and reloads keywords. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("keyword watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	keywords, err := LoadKeywordsFile(r.path)
	if err != nil {
		r.logger.Error("keyword reload failed", "path", r.path, "error", err)
		return
	}
	r.apply(NewScorerWithKeywords(keywords))
	r.logger.Info("spam keywords reloaded", "path", r.path, "count", len(keywords))
}
