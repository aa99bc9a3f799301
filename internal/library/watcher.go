package library

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const cacheDebounce = 200 * time.Millisecond

var cachedFileRe = regexp.MustCompile(`^-?\d+_\d+\.mp3$`)

type watcher struct {
	fs     *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	debounce *time.Timer
	running  sync.WaitGroup // debounced callbacks in flight
}

// Watch follows the download cache directory and re-publishes the library
// snapshot when tracks appear in or disappear from it. The watcher stops
// when ctx is done or the store is closed.
func (s *Store) Watch(ctx context.Context) error {
	if s.watcher != nil || s.cacheDir == "" {
		return nil
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	if err := fs.Add(s.cacheDir); err != nil {
		_ = fs.Close()
		return errors.Wrapf(err, "watch %s", s.cacheDir)
	}

	w := &watcher{fs: fs, stopCh: make(chan struct{})}
	s.watcher = w
	w.wg.Add(1)
	go s.watchLoop(ctx, w)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !cachedFileRe.MatchString(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.logger.Debug("Cache changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
				w.schedule(func() { s.notify(context.Background()) })
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Cache watcher error", zap.Error(err))
		}
	}
}

// schedule runs fn once events have settled, so a download written in many
// chunks produces a single snapshot.
func (w *watcher) schedule(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(cacheDebounce, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.running.Add(1)
		w.mu.Unlock()

		defer w.running.Done()
		fn()
	})
}

// close stops the watcher and waits for a refresh that is already running,
// so the store can close its database afterwards.
func (w *watcher) close() error {
	w.mu.Lock()
	w.stopped = true
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.fs.Close()
	w.wg.Wait()
	w.running.Wait()
	return err
}
