package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/simctl"
	"github.com/xscape-dev/agent/internal/state"
)

// SimulatorHandler handles device listing, lifecycle and app runs.
type SimulatorHandler struct {
	store  *state.Store
	simctl *simctl.Client
	logger *slog.Logger
}

// NewSimulatorHandler creates a simulator handler.
func NewSimulatorHandler(st *state.Store, client *simctl.Client, logger *slog.Logger) *SimulatorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatorHandler{store: st, simctl: client, logger: logger}
}

// List handles GET /simulator/list.
func (h *SimulatorHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.simctl.ListDevices(r.Context())
	if err != nil {
		h.logger.Error("failed to list devices", "error", err)
		WriteInternalError(w, "failed to list devices: "+err.Error())
		return
	}

	runtimes, err := h.simctl.ListRuntimes(r.Context())
	if err != nil {
		h.logger.Error("failed to list runtimes", "error", err)
		WriteInternalError(w, "failed to list runtimes: "+err.Error())
		return
	}

	if devices == nil {
		devices = []models.SimulatorDevice{}
	}
	WriteJSON(w, http.StatusOK, &models.ListSimulatorsResponse{Devices: devices, Runtimes: runtimes})
}

// Boot handles POST /simulator/boot.
func (h *SimulatorHandler) Boot(w http.ResponseWriter, r *http.Request) {
	var req models.BootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.DeviceUDID == "" {
		WriteBadRequest(w, "device_udid is required")
		return
	}

	if err := h.simctl.Boot(r.Context(), req.DeviceUDID); err != nil {
		h.logger.Error("failed to boot simulator", "udid", req.DeviceUDID, "error", err)
		WriteInternalError(w, "failed to boot simulator: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, &models.BootResponse{
		DeviceUDID: req.DeviceUDID,
		State:      models.SimulatorStateBooted,
	})
}

// Shutdown handles POST /simulator/shutdown.
func (h *SimulatorHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	var req models.BootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.DeviceUDID == "" {
		WriteBadRequest(w, "device_udid is required")
		return
	}

	if err := h.simctl.Shutdown(r.Context(), req.DeviceUDID); err != nil {
		h.logger.Error("failed to shutdown simulator", "udid", req.DeviceUDID, "error", err)
		WriteInternalError(w, "failed to shutdown simulator: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, &models.BootResponse{
		DeviceUDID: req.DeviceUDID,
		State:      models.SimulatorStateShutdown,
	})
}

// Run handles POST /simulator/run: install the built app on the device
// (booting it first if needed) and launch it.
func (h *SimulatorHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.BuildID == "" || req.DeviceUDID == "" {
		WriteBadRequest(w, "build_id and device_udid are required")
		return
	}

	artifact, ok := h.store.GetArtifact(req.BuildID)
	if !ok {
		WriteNotFound(w, "build not found or produced no artifact: "+req.BuildID)
		return
	}
	if artifact.BundleID == "" {
		WriteBadRequest(w, "build has no bundle identifier")
		return
	}

	devices, err := h.simctl.ListDevices(r.Context())
	if err != nil {
		WriteInternalError(w, "failed to list devices: "+err.Error())
		return
	}
	var device *models.SimulatorDevice
	for i := range devices {
		if devices[i].UDID == req.DeviceUDID {
			device = &devices[i]
			break
		}
	}
	if device == nil {
		WriteNotFound(w, "simulator not found: "+req.DeviceUDID)
		return
	}

	if device.State != models.SimulatorStateBooted {
		h.logger.Info("booting simulator for run", "udid", req.DeviceUDID, "device", device.Name)
		if err := h.simctl.Boot(r.Context(), req.DeviceUDID); err != nil {
			WriteInternalError(w, "failed to boot simulator: "+err.Error())
			return
		}
	}

	if err := h.simctl.Install(r.Context(), req.DeviceUDID, artifact.AppPath); err != nil {
		h.logger.Error("failed to install app", "udid", req.DeviceUDID, "error", err)
		WriteInternalError(w, "failed to install app: "+err.Error())
		return
	}

	pid, err := h.simctl.Launch(r.Context(), req.DeviceUDID, artifact.BundleID, req.LaunchArgs, req.Environment)
	if err != nil {
		h.logger.Error("failed to launch app", "udid", req.DeviceUDID, "error", err)
		WriteInternalError(w, "failed to launch app: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, &models.RunResponse{
		SessionID:  uuid.New().String(),
		BundleID:   artifact.BundleID,
		PID:        pid,
		DeviceUDID: req.DeviceUDID,
	})
}
