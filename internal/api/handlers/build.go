package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xscape-dev/agent/internal/build"
	"github.com/xscape-dev/agent/internal/models"
)

// BuildHandler handles build submission and status polling.
type BuildHandler struct {
	builds *build.Service
	logger *slog.Logger
}

// NewBuildHandler creates a build handler.
func NewBuildHandler(builds *build.Service, logger *slog.Logger) *BuildHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildHandler{builds: builds, logger: logger}
}

// Start handles POST /build.
func (h *BuildHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		WriteBadRequest(w, "project_id is required")
		return
	}
	if req.Scheme == "" {
		WriteBadRequest(w, "scheme is required")
		return
	}
	if req.Destination.DeviceName == "" {
		WriteBadRequest(w, "destination.device_name is required")
		return
	}

	record, err := h.builds.Start(r.Context(), &req)
	if err != nil {
		if errors.Is(err, build.ErrProjectNotFound) {
			WriteNotFound(w, err.Error())
			return
		}
		h.logger.Error("failed to start build", "error", err)
		WriteInternalError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, &models.BuildResponse{
		BuildID:   record.ID,
		Status:    record.Status,
		StartedAt: record.StartedAt,
	})
}

// Get handles GET /build/{buildID}.
func (h *BuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	record, err := h.builds.Get(buildID)
	if err != nil {
		if errors.Is(err, build.ErrBuildNotFound) {
			WriteNotFound(w, err.Error())
			return
		}
		WriteInternalError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
