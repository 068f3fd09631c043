package config

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads retention_policy.message_expiry from disk whenever the
// config file changes, without restarting the process. Every other field
// requires a restart to take effect.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *zap.Logger
	expiry  atomic.Int64 // time.Duration, nanoseconds
	done    chan struct{}
}

// NewWatcher starts watching path for writes and seeds the current
// message_expiry from initial.
func NewWatcher(path string, initial Config, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, path: path, logger: logger, done: make(chan struct{})}
	w.expiry.Store(int64(initial.RetentionPolicy.MessageExpiry))
	go w.run()
	return w, nil
}

// MessageExpiry returns the most recently observed retention expiry.
func (w *Watcher) MessageExpiry() time.Duration {
	return time.Duration(w.expiry.Load())
}

// Close stops the underlying fsnotify watch.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous value", zap.Error(err))
		}
		return
	}
	w.expiry.Store(int64(cfg.RetentionPolicy.MessageExpiry))
	if w.logger != nil {
		w.logger.Info("retention_policy.message_expiry reloaded", zap.Duration("message_expiry", cfg.RetentionPolicy.MessageExpiry))
	}
}
