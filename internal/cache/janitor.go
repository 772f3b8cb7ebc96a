package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CleanupOld removes project directories whose contents have not been
// touched for longer than maxAge and returns how many were removed.
// Records in the store keep their entries; a build against a reaped
// project fails at descriptor discovery, which is the same outcome as
// an agent restart.
func (c *Cache) CleanupOld(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(c.root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				c.logger.Debug("failed to remove old project", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("cleaned up old projects", "removed", removed)
	}
	return removed, nil
}

// Size returns the total size in bytes of the storage tree.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, ierr := d.Info(); ierr == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}

// RunJanitor periodically reaps old project directories until the
// context is cancelled.
func (c *Cache) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CleanupOld(maxAge); err != nil {
				c.logger.Warn("project cleanup failed", "error", err)
			}
		}
	}
}
