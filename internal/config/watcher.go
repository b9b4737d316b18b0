package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher re-checks the config file.
const defaultPollInterval = 5 * time.Second

// Watcher polls a config file and swaps in each valid revision, keeping the
// last good config when a reload fails. The matching threshold is the value
// expected to change at runtime; a few seconds of staleness is acceptable
// for it, so polling beats pulling in a filesystem-notification dependency.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval sets the polling interval. The default is 5 seconds.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it for changes in a
// background goroutine. onChange, if non-nil, runs after every successful
// reload with the previous and new config; it may call [Watcher.Current] and
// [Watcher.Threshold] freely.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Threshold returns the current matching threshold. Handed to the dispatcher
// as its threshold func so reloads take effect on the next match sweep.
func (w *Watcher) Threshold() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.Matching.Threshold
}

// Stop ends the polling goroutine. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if !w.touched() {
				continue
			}
			if err := w.reload(); err != nil {
				slog.Warn("config reload failed, keeping previous",
					"path", w.path, "err", err)
			}
		}
	}
}

// touched reports whether the file's mtime moved since the last load. The
// cheap stat gates the full read-parse-validate cycle.
func (w *Watcher) touched() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.mtime)
}

// reload reads, parses, and validates the file, then swaps the new config in
// if its content actually differs. Invalid content leaves the current config
// untouched.
func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	if w.current != nil && sum == w.sum {
		// Touched but identical; just remember the new mtime.
		w.mtime = info.ModTime()
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.sum = sum
	w.mtime = info.ModTime()
	w.mu.Unlock()

	if old != nil {
		slog.Info("configuration reloaded", "path", w.path)
		if w.onChange != nil {
			w.onChange(old, cfg)
		}
	}
	return nil
}
