// Package state provides the concurrency-safe in-memory registries
// shared by all request handlers: projects, builds, build artifacts and
// per-build log channels.
package state

import (
	"sync"

	"github.com/xscape-dev/agent/internal/logs"
	"github.com/xscape-dev/agent/internal/models"
)

// Store is the registry handle passed into every component at startup.
// Each registry is independently synchronized; no operation spans two
// registries atomically. Build records are replaced as whole values so
// readers never observe a half-updated record.
type Store struct {
	mu        sync.RWMutex
	projects  map[string]*models.Project
	builds    map[string]*models.BuildRecord
	artifacts map[string]*models.Artifact

	chmu     sync.RWMutex
	channels map[string]*logs.Channel

	logBuffer int
}

// New creates an empty store. logBuffer is the per-subscriber capacity
// of log channels created through the store.
func New(logBuffer int) *Store {
	if logBuffer <= 0 {
		logBuffer = 1000
	}
	return &Store{
		projects:  make(map[string]*models.Project),
		builds:    make(map[string]*models.BuildRecord),
		artifacts: make(map[string]*models.Artifact),
		channels:  make(map[string]*logs.Channel),
		logBuffer: logBuffer,
	}
}

// GetProject returns the project with the given id.
func (s *Store) GetProject(id string) (*models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// GetProjectByChecksum returns the project whose tarball checksum
// matches. Checksums are the project identity: at most one record per
// distinct checksum ever exists.
func (s *Store) GetProjectByChecksum(checksum string) (*models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.Checksum == checksum {
			return p, true
		}
	}
	return nil, false
}

// PutProject registers a project record.
func (s *Store) PutProject(p *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

// ProjectCount returns the number of registered projects.
func (s *Store) ProjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

// GetBuild returns the build record with the given id.
func (s *Store) GetBuild(id string) (*models.BuildRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.builds[id]
	return b, ok
}

// PutBuild stores a build record, replacing any previous value for the
// same id in a single visible write. Only the build's owning task may
// call this after the record is created.
func (s *Store) PutBuild(b *models.BuildRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[b.ID] = b
}

// GetArtifact returns the artifact produced by the given build.
func (s *Store) GetArtifact(buildID string) (*models.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[buildID]
	return a, ok
}

// PutArtifact stores the artifact for a succeeded build.
func (s *Store) PutArtifact(buildID string, a *models.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[buildID] = a
}

// CreateLogChannel creates the fan-out channel for a build and returns
// the writer handle. Channels are never destroyed explicitly; the
// writer closes delivery at build end and the registry entry keeps
// serving late subscribers the end-of-stream signal.
func (s *Store) CreateLogChannel(buildID string) *logs.Channel {
	s.chmu.Lock()
	defer s.chmu.Unlock()
	ch := logs.NewChannel(s.logBuffer)
	s.channels[buildID] = ch
	return ch
}

// GetLogChannel returns the fan-out channel for a build. Absence is a
// normal outcome, not an error: the API boundary turns it into a
// terminal closed connection.
func (s *Store) GetLogChannel(buildID string) (*logs.Channel, bool) {
	s.chmu.RLock()
	defer s.chmu.RUnlock()
	ch, ok := s.channels[buildID]
	return ch, ok
}
