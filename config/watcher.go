package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileEvent describes a change to a watched file.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp is the kind of change observed.
type FileOp int

const (
	// FileOpCreate means the file appeared.
	FileOpCreate FileOp = iota
	// FileOpWrite means the file's content changed.
	FileOpWrite
	// FileOpRemove means the file disappeared.
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileWatcher polls a set of files and notifies callbacks when one
// changes. It is used to reload mission templates without restarting
// the delegating process. Polling keeps it portable; templates change
// rarely, so a coarse interval is fine.
type FileWatcher struct {
	mu sync.RWMutex

	paths        []string
	pollInterval time.Duration
	debounce     time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent
	callbacks []func(FileEvent)

	logger *zap.Logger

	lastModTimes map[string]time.Time
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often files are checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.pollInterval = d }
}

// WithDebounceDelay sets the quiet period before callbacks fire, so a
// burst of writes produces a single reload.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounce = d }
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// NewFileWatcher creates a watcher over the given paths. Paths that do
// not exist yet are watched for creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:        paths,
		pollInterval: time.Second,
		debounce:     100 * time.Millisecond,
		stopChan:     make(chan struct{}),
		eventChan:    make(chan FileEvent, 16),
		lastModTimes: make(map[string]time.Time),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("watched file does not exist yet", zap.String("path", path))
			} else {
				return nil, fmt.Errorf("failed to stat %s: %w", path, err)
			}
		}
	}

	return w, nil
}

// OnChange registers a callback. Callbacks run on the watcher's
// dispatch goroutine and must not block.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins polling until Stop or context cancellation.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true

	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}
	w.mu.Unlock()

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("file watcher stopped")
}

// IsRunning reports whether the watcher is active.
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

func (w *FileWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, existed := w.lastModTimes[path]; existed {
					delete(w.lastModTimes, path)
					w.emit(FileEvent{Path: path, Op: FileOpRemove, Timestamp: time.Now()})
				}
			}
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		switch {
		case !existed:
			w.lastModTimes[path] = info.ModTime()
			w.emit(FileEvent{Path: path, Op: FileOpCreate, Timestamp: time.Now()})
		case info.ModTime().After(lastMod):
			w.lastModTimes[path] = info.ModTime()
			w.emit(FileEvent{Path: path, Op: FileOpWrite, Timestamp: time.Now()})
		}
	}
}

// emit drops events when the dispatch queue is saturated; the next poll
// finds the change again.
func (w *FileWatcher) emit(event FileEvent) {
	select {
	case w.eventChan <- event:
	default:
	}
}

// dispatchLoop coalesces events per path and fires callbacks once the
// debounce window has been quiet.
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	pending := make(map[string]FileEvent)
	var (
		debounceTimer *time.Timer
		timerC        <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.eventChan:
			pending[event.Path] = event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			timerC = debounceTimer.C
		case <-timerC:
			timerC = nil

			w.mu.RLock()
			callbacks := make([]func(FileEvent), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.RUnlock()

			for _, evt := range pending {
				w.logger.Debug("dispatching file event",
					zap.String("path", evt.Path),
					zap.String("op", evt.Op.String()))
				for _, cb := range callbacks {
					cb(evt)
				}
			}
			pending = make(map[string]FileEvent)
		}
	}
}
