// Package cache implements the content-addressed project cache:
// uploaded tarballs are extracted once per distinct checksum and
// deduplicated on re-upload.
package cache

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/state"
	"github.com/zeebo/blake3"
)

// ErrBadArchive is returned when the uploaded bytes are not a readable
// gzip tarball.
var ErrBadArchive = errors.New("invalid project archive")

// Cache extracts uploaded archives under a storage root, keyed by
// checksum. The storage tree is exclusively owned by the cache; nothing
// else writes into a project directory once extraction completes.
type Cache struct {
	store  *state.Store
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New creates a cache rooted at root, creating the directory if needed.
func New(st *state.Store, root string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Cache{
		store:    st,
		root:     root,
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
	}, nil
}

// lockChecksum serializes extraction per checksum so concurrent uploads
// of identical bytes extract once. One guard per distinct checksum; the
// cardinality matches the project registry.
func (c *Cache) lockChecksum(checksum string) func() {
	c.mu.Lock()
	l, ok := c.inflight[checksum]
	if !ok {
		l = &sync.Mutex{}
		c.inflight[checksum] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Checksum computes the hex digest the cache uses as project identity.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extract registers an uploaded archive. If a project with the same
// checksum already exists its record is returned untouched with
// WasCached set: uploading identical bytes twice is a no-op the second
// time. A caller-supplied checksum is trusted as the identity; when
// absent it is computed here.
func (c *Cache) Extract(ctx context.Context, name, checksum string, data []byte) (*models.SyncResponse, error) {
	if checksum == "" {
		checksum = Checksum(data)
	}
	defer c.lockChecksum(checksum)()

	if existing, ok := c.store.GetProjectByChecksum(checksum); ok {
		c.logger.Info("project already cached",
			"project_id", existing.ID,
			"checksum", shortChecksum(checksum),
		)
		return &models.SyncResponse{
			ProjectID: existing.ID,
			Path:      existing.Path,
			WasCached: true,
		}, nil
	}

	id := uuid.New().String()
	dir := filepath.Join(c.root, id)

	// Cannot collide under correct id allocation; handled anyway so a
	// stale directory never pollutes a fresh extraction.
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("removing stale project directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}

	count, err := unpack(dir, data)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	project := &models.Project{
		ID:       id,
		Name:     name,
		Checksum: checksum,
		Path:     dir,
		SyncedAt: time.Now().UTC(),
	}
	c.store.PutProject(project)

	c.logger.Info("project extracted",
		"project_id", id,
		"name", name,
		"files", count,
		"checksum", shortChecksum(checksum),
	)
	return &models.SyncResponse{
		ProjectID:      id,
		Path:           dir,
		FilesExtracted: count,
	}, nil
}

// unpack writes the archive's entries under root. Entries whose path
// would escape the root are skipped silently: archives are untrusted
// input.
func unpack(root string, data []byte) (int, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("%w: %v", ErrBadArchive, err)
		}

		dest, ok := safeJoin(root, header.Name)
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, fs.FileMode(header.Mode)&0o777|0o700); err != nil {
				return count, fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return count, fmt.Errorf("creating parent directory: %w", err)
			}
			if err := writeFile(dest, tr, fs.FileMode(header.Mode)&0o777); err != nil {
				return count, err
			}
			count++
		default:
			// Symlinks and special files are not extracted: a link
			// target can escape the root just like a .. component.
		}
	}
	return count, nil
}

// safeJoin resolves an archive entry path inside root, rejecting
// absolute paths and any path whose cleaned form escapes the root.
func safeJoin(root, name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(root, cleaned), true
}

func writeFile(dest string, r io.Reader, mode fs.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	return f.Close()
}

func shortChecksum(checksum string) string {
	if len(checksum) > 8 {
		return checksum[:8]
	}
	return checksum
}
