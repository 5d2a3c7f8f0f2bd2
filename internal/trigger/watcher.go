package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet window applied to filesystem events. A
// source transaction touches the database, its WAL and its shm file in
// quick succession; one window covers the whole burst.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a source watcher.
type Config struct {
	// SourcePath is the source database file. The watcher observes its
	// parent directory and reacts to the file and its sidecars
	// (journal, -wal, -shm).
	SourcePath string

	// Debounce is the quiet window for filesystem bursts. Zero means
	// DefaultDebounce.
	Debounce time.Duration

	// Interval is the periodic fallback trigger, for changes the
	// filesystem never surfaces (network mounts, missed events). Zero
	// disables it.
	Interval time.Duration
}

// Watcher drives a trigger callback from source-database file events and
// an optional periodic ticker. It does not interpret the callback's
// error handling; callers decide what a coalesced or failed pass means.
type Watcher struct {
	cfg  Config
	fire func()
	fsw  *fsnotify.Watcher
	deb  *Debouncer
}

// New creates a watcher over cfg.SourcePath that invokes fire after each
// debounced burst of events.
func New(cfg Config, fire func()) (*Watcher, error) {
	if cfg.SourcePath == "" {
		return nil, fmt.Errorf("source path is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	// Watch the directory, not the file: SQLite replaces and sidecars
	// the database, and a watch on the file itself dies on rename.
	dir := filepath.Dir(cfg.SourcePath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		cfg:  cfg,
		fire: fire,
		fsw:  fsw,
		deb:  NewDebouncer(cfg.Debounce, fire),
	}, nil
}

// Run consumes events until the context is cancelled. It returns the
// context's error on cancellation and a watcher error if the event
// channel closes unexpectedly.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.deb.Stop()
	defer w.fsw.Close()

	var tick <-chan time.Time
	if w.cfg.Interval > 0 {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	slog.Info("watching source for changes",
		slog.String("path", w.cfg.SourcePath),
		slog.Duration("debounce", w.cfg.Debounce),
		slog.Duration("interval", w.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("filesystem watcher closed")
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("source changed",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()))
			w.deb.Poke()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("filesystem watcher closed")
			}
			slog.Warn("filesystem watcher error",
				slog.String("error", err.Error()))

		case <-tick:
			w.fire()
		}
	}
}

// relevant reports whether an event concerns the source database or one
// of its sidecar files.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), filepath.Base(w.cfg.SourcePath))
}
