// Package watch polls a file for content changes and hands every new valid
// version to a callback. It backs both the config hot reload and the
// character database reload.
package watch

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LoadFunc parses the raw file contents. Returning an error keeps the
// previous value.
type LoadFunc[T any] func(data []byte) (T, error)

// Watcher monitors a file for changes and calls a callback when its
// content changes and still parses. It uses polling (not fsnotify): the
// watched files are small and edited by hand.
type Watcher[T any] struct {
	path     string
	interval time.Duration
	load     LoadFunc[T]
	onChange func(old, new T)
	logger   *slog.Logger

	mu       sync.Mutex
	current  T
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// Option configures a [Watcher].
type Option func(*options)

type options struct {
	interval time.Duration
	logger   *slog.Logger
}

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a watcher for path. It loads the initial value immediately
// and starts polling in a background goroutine. onChange may be nil.
func New[T any](path string, load LoadFunc[T], onChange func(old, new T), opts ...Option) (*Watcher[T], error) {
	o := options{interval: 5 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	w := &Watcher[T]{
		path:     path,
		interval: o.interval,
		load:     load,
		onChange: onChange,
		logger:   o.logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	v, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("watch: initial load of %q: %w", path, err)
	}
	w.current = v
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid value.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Path returns the watched file path.
func (w *Watcher[T]) Path() string { return w.path }

// Stop stops polling and waits for a running callback to return. It is
// safe to call more than once but must not be called from the callback.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

func (w *Watcher[T]) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the file and, if its content changed and still loads, calls
// onChange and updates the current value.
func (w *Watcher[T]) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("watch: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	v, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		w.logger.Warn("watch: failed to load file, keeping previous version", "path", w.path, "err", err)
		// Remember the mtime so a broken file is not re-parsed every tick.
		w.mu.Lock()
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = v
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	w.logger.Info("watch: file changed", "path", w.path)

	// Outside the lock so the callback can call Current.
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

func (w *Watcher[T]) loadAndHash() (T, [sha256.Size]byte, time.Time, error) {
	var (
		zero     T
		zeroHash [sha256.Size]byte
	)

	info, err := os.Stat(w.path)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}

	v, err := w.load(data)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}
	return v, sha256.Sum256(data), info.ModTime(), nil
}
