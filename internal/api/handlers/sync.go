package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/xscape-dev/agent/internal/cache"
)

// maxUploadBytes bounds project tarball uploads.
const maxUploadBytes = 512 << 20

// SyncHandler handles project uploads.
type SyncHandler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(c *cache.Cache, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{cache: c, logger: logger}
}

// Sync handles POST /sync-project: a multipart upload with fields
// project_name, checksum and tarball.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteBadRequest(w, "invalid multipart data: "+err.Error())
		return
	}

	name := r.FormValue("project_name")
	if name == "" {
		WriteBadRequest(w, "missing project_name field")
		return
	}
	checksum := r.FormValue("checksum")

	file, _, err := r.FormFile("tarball")
	if err != nil {
		WriteBadRequest(w, "missing tarball field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteBadRequest(w, "reading tarball: "+err.Error())
		return
	}

	h.logger.Info("syncing project", "name", name, "bytes", len(data))

	resp, err := h.cache.Extract(r.Context(), name, checksum, data)
	if err != nil {
		h.logger.Error("project extraction failed", "name", name, "error", err)
		if errors.Is(err, cache.ErrBadArchive) {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteInternalError(w, "failed to extract project: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}
