package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the strategy tunables when the config file changes.
// Only gamma/baseSize/sizeEta are applied live; everything else requires a
// restart. Reloads that fail validation are rejected and logged, never
// partially applied.
type Watcher struct {
	path     string
	cfg      *Config
	cooldown time.Duration
	log      *zap.Logger

	lastReload time.Time
}

func NewWatcher(path string, cfg *Config, log *zap.Logger) *Watcher {
	return &Watcher{
		path:     path,
		cfg:      cfg,
		cooldown: 5 * time.Second,
		log:      log,
	}
}

// Run watches until ctx is cancelled. Watch setup failure is returned;
// individual reload failures are logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if time.Since(w.lastReload) < w.cooldown {
				continue
			}
			w.lastReload = time.Now()
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload rejected", zap.Error(err))
		return
	}
	gamma, baseSize, sizeEta := fresh.Tunables()
	w.cfg.ApplyTunables(gamma, baseSize, sizeEta)
	w.log.Info("strategy tunables reloaded",
		zap.Float64("gamma", gamma),
		zap.Float64("base_size", baseSize),
		zap.Float64("size_eta", sizeEta))
}
