package sentinel

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "binary")
	if err := os.WriteFile(path, []byte("content-a"), 0o755); err != nil {
		t.Fatal(err)
	}

	h1, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 != h2 {
		t.Error("same content should produce the same hash")
	}

	if err := os.WriteFile(path, []byte("content-b"), 0o755); err != nil {
		t.Fatal(err)
	}
	h3, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 == h3 {
		t.Error("different content should produce a different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHashAccessConcurrent(t *testing.T) {
	s := &Sentinel{stopCh: make(chan struct{})}

	// mainLoop refreshes the hash while the watcher's debounce goroutine
	// reads it; both must go through the guarded accessors.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.setHash([sha256.Size]byte{b})
				_ = s.currentHash()
			}
		}(byte(i))
	}
	wg.Wait()

	got := s.currentHash()
	if got[0] > 3 {
		t.Errorf("unexpected hash byte %d", got[0])
	}
}

func TestBackoffProgression(t *testing.T) {
	s := &Sentinel{backoff: InitialBackoff}

	s.increaseBackoff()
	want := time.Duration(float64(InitialBackoff) * BackoffFactor)
	if s.backoff != want {
		t.Errorf("backoff = %v, want %v", s.backoff, want)
	}

	s.increaseBackoff()
	want = time.Duration(float64(want) * BackoffFactor)
	if s.backoff != want {
		t.Errorf("backoff = %v, want %v", s.backoff, want)
	}
}

func TestBackoffCap(t *testing.T) {
	s := &Sentinel{backoff: MaxBackoff}
	s.increaseBackoff()
	if s.backoff != MaxBackoff {
		t.Errorf("backoff = %v, want cap %v", s.backoff, MaxBackoff)
	}
}

func TestSleepBackoffInterruptible(t *testing.T) {
	s := &Sentinel{
		backoff: 10 * time.Second,
		stopCh:  make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		s.sleepBackoff()
		close(done)
	}()

	close(s.stopCh)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleepBackoff did not return after stopCh was closed")
	}
}
