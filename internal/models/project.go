// Package models defines the core data types shared across the agent.
package models

import "time"

// Project represents an uploaded and extracted project tree.
// A project is identified by the checksum of its tarball: uploading the
// same bytes twice yields the same project, never a second extraction.
// Records are immutable once created.
type Project struct {
	ID       string    `json:"project_id"`
	Name     string    `json:"project_name"`
	Checksum string    `json:"checksum"`
	Path     string    `json:"path"`
	SyncedAt time.Time `json:"synced_at"`
}

// SyncResponse is returned by the sync-project endpoint.
type SyncResponse struct {
	ProjectID      string `json:"project_id"`
	Path           string `json:"path"`
	FilesExtracted int    `json:"files_extracted"`
	WasCached      bool   `json:"was_cached"`
}
