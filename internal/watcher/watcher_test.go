package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCount(t *testing.T, counter *atomic.Int64, want int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if counter.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("handler ran %d times, want at least %d", counter.Load(), want)
}

func TestWatcher_FiresOnceAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks: []\n"), 0o644))

	var count atomic.Int64
	w, err := New(path, 20*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Run(ctx))
		close(done)
	}()

	waitForCount(t, &count, 1, 2*time.Second)
	cancel()
	<-done
}

func TestWatcher_DetectsContentChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var count atomic.Int64
	w, err := New(path, 20*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitForCount(t, &count, 1, 2*time.Second)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	waitForCount(t, &count, 2, 2*time.Second)
}

func TestWatcher_AtomicReplaceDetected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var count atomic.Int64
	w, err := New(path, 20*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitForCount(t, &count, 1, 2*time.Second)

	// Write-temp-then-rename, the way board writers avoid torn reads.
	tmp := filepath.Join(dir, "board.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v2"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	waitForCount(t, &count, 2, 2*time.Second)
}

func TestWatcher_UnchangedContentDoesNotFire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))

	var count atomic.Int64
	w, err := New(path, 20*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitForCount(t, &count, 1, 2*time.Second)

	// Touch the file with identical bytes; the checksum gate should hold.
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestWatcher_OtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var count atomic.Int64
	w, err := New(path, 20*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitForCount(t, &count, 1, 2*time.Second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}
