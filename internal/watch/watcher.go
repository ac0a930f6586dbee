package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/downsize/internal/domain"
	"github.com/fsnotify/fsnotify"
)

const DefaultSettle = 500 * time.Millisecond

// HandleFunc is called once per settled file.
type HandleFunc func(ctx context.Context, path string)

// Watcher feeds supported images that appear in a directory to a handler.
// Files are handed over only after no further create or write event has been
// seen for the settle period, so partially copied files are not decoded.
type Watcher struct {
	dir    string
	handle HandleFunc
	settle time.Duration
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

func New(dir string, handle HandleFunc, opts ...Option) (*Watcher, error) {
	if handle == nil {
		return nil, fmt.Errorf("watch handler is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}

	w := &Watcher{
		dir:     dir,
		handle:  handle,
		settle:  DefaultSettle,
		logger:  log.New(io.Discard, "", 0),
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run blocks until ctx is cancelled or the underlying watcher fails. Pending
// files whose settle timer has not fired yet are dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch folder %s: %w", w.dir, err)
	}
	w.logger.Printf("watching dir=%s settle=%s", w.dir, w.settle)

	defer func() {
		w.mu.Lock()
		w.stopped = true
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, exists := w.pending[path]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		// superseded by a later event for the same path
		if w.pending[path] != timer {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		if ctx.Err() != nil {
			return
		}
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return
		}
		w.handle(ctx, path)
	})
	w.pending[path] = timer
}

// relevant keeps create and write events for supported, non-hidden files.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return domain.IsSupportedPath(event.Name)
}
