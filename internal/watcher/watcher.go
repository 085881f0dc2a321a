package watcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crewbase/crewsync/pkg/cerr"
)

// DefaultDebounce is the settle delay after a filesystem event before the
// file is re-hashed. Editors and sync tools emit bursts (write temp file,
// rename); the debounce collapses a burst into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher observes one file for content changes and invokes a handler once
// per settled change. Handler invocations never overlap and never block the
// event loop: a change arriving while the handler runs coalesces into one
// pending invocation.
type Watcher struct {
	path     string
	debounce time.Duration
	handler  func(context.Context)

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

func New(path string, debounce time.Duration, handler func(context.Context)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, fmt.Sprintf("failed to resolve %s", path), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		handler:  handler,
	}, nil
}

// Run watches until ctx is cancelled. The handler fires once immediately so
// consumers start from the current file state rather than waiting for the
// first mutation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to create filesystem watcher", err)
	}
	defer fsw.Close()

	// Watch the parent directory, not the file itself. Atomic replace
	// (write temp file, rename) changes the inode; watching the directory
	// catches the rename.
	watchDir := filepath.Dir(w.path)
	baseName := filepath.Base(w.path)
	if err := fsw.Add(watchDir); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to watch %s", watchDir), err)
	}
	slog.Info("watching for changes", "dir", watchDir, "file", baseName)

	if h, err := hashFile(w.path); err == nil {
		w.mu.Lock()
		w.lastHash = h
		w.mu.Unlock()
	}

	// Worker goroutine serializes handler invocations; notifyCh carries at
	// most one pending invocation.
	notifyCh := make(chan struct{}, 1)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-notifyCh:
				w.handler(ctx)
			}
		}
	}()

	notifyCh <- struct{}{}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				<-workerDone
				return nil
			}
			if filepath.Base(event.Name) != baseName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("filesystem event", "op", event.Op.String(), "name", event.Name)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.settle(notifyCh)
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				<-workerDone
				return nil
			}
			slog.Error("filesystem watcher error", "error", err)
		}
	}
}

// settle re-hashes the file after the debounce window and hands off to the
// worker when the content actually changed. The send is non-blocking: a
// pending invocation already covers this change.
func (w *Watcher) settle(notifyCh chan<- struct{}) {
	newHash, err := hashFile(w.path)
	if err != nil {
		// Transient during atomic replace; the next event retries.
		slog.Debug("could not hash watched file", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	changed := newHash != w.lastHash
	if changed {
		w.lastHash = newHash
	}
	w.mu.Unlock()
	if !changed {
		return
	}
	select {
	case notifyCh <- struct{}{}:
	default:
	}
}

func hashFile(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, err
	}
	var result [sha256.Size]byte
	copy(result[:], h.Sum(nil))
	return result, nil
}
