package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a configuration file when it changes and applies the
// settings that can change at runtime to a DB. Only the slow query
// threshold is applied; other changes need a new DB.
type Watcher struct {
	path     string
	db       *DB
	fsw      *fsnotify.Watcher
	onReload func(*Config)
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// OnReload registers fn to receive every configuration loaded.
func OnReload(fn func(*Config)) WatchOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher starts watching path. The directory is watched so that files
// replaced by rename are noticed.
func NewWatcher(path string, db *DB, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{path: abs, db: db, fsw: fsw}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run applies changes until ctx is done, then closes the watcher. Files
// that fail to load are logged and leave the current settings in place.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.db.logger.WarnContext(ctx, "config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Load(w.path)
	if err != nil {
		w.db.logger.WarnContext(ctx, "config reload failed", "path", w.path, "error", err)
		return
	}
	if d := cfg.SlowQuery.Std(); d != w.db.SlowThreshold() {
		w.db.SetSlowThreshold(d)
		w.db.logger.InfoContext(ctx, "slow query threshold reloaded", "threshold", d)
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
