package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupOld(t *testing.T) {
	c, _ := newTestCache(t)

	old := filepath.Join(c.root, "old-project")
	fresh := filepath.Join(c.root, "fresh-project")
	for _, dir := range []string{old, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, err := c.CleanupOld(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOld failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale directory should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh directory should survive")
	}
}

func TestSize(t *testing.T) {
	c, _ := newTestCache(t)

	dir := filepath.Join(c.root, "p1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := c.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Size() = %d, want 150", size)
	}
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.RunJanitor(ctx, time.Hour, time.Hour)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on context cancellation")
	}
}
