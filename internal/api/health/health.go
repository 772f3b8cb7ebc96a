// Package health provides health check functionality for the agent API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/toolchain"
	"github.com/xscape-dev/agent/internal/xcodebuild"
)

// Status represents the health status of the agent.
type Status string

const (
	// StatusHealthy indicates the agent is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the agent is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the agent cannot build or run apps.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status               Status                     `json:"status"`
	Components           map[string]ComponentStatus `json:"components"`
	ToolchainVersion     string                     `json:"toolchain_version,omitempty"`
	ToolchainPath        string                     `json:"toolchain_path,omitempty"`
	AvailableDeviceCount int                        `json:"available_device_count"`
	Version              string                     `json:"version"`
	Uptime               string                     `json:"uptime"`
}

// DeviceLister lists simulator devices, typically a simctl client.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]models.SimulatorDevice, error)
}

// Checker performs health checks for the agent.
type Checker struct {
	runner    toolchain.Runner
	devices   DeviceLister
	startTime time.Time
	version   string
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewChecker creates a new health checker.
func NewChecker(runner toolchain.Runner, devices DeviceLister, version string) *Checker {
	return &Checker{
		runner:    runner,
		devices:   devices,
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check probes the Xcode toolchain and the simulator runtime and returns
// the aggregated response. A missing toolchain makes the agent unhealthy;
// simulator failures only degrade it since builds can still run.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp := &Response{
		Components: make(map[string]ComponentStatus),
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}

	info, err := xcodebuild.Probe(checkCtx, c.runner)
	if err != nil {
		resp.Components["toolchain"] = ComponentStatus{
			Status:  StatusUnhealthy,
			Message: "xcodebuild unavailable: " + err.Error(),
		}
	} else {
		resp.ToolchainVersion = info.Version
		resp.ToolchainPath = info.Path
		resp.Components["toolchain"] = ComponentStatus{
			Status:  StatusHealthy,
			Message: "Xcode " + info.Version,
		}
	}

	devices, err := c.devices.ListDevices(checkCtx)
	if err != nil {
		resp.Components["simulator"] = ComponentStatus{
			Status:  StatusDegraded,
			Message: "simctl list failed: " + err.Error(),
		}
	} else {
		resp.AvailableDeviceCount = len(devices)
		resp.Components["simulator"] = ComponentStatus{
			Status: StatusHealthy,
		}
	}

	resp.Status = StatusHealthy
	for _, comp := range resp.Components {
		if comp.Status == StatusUnhealthy {
			resp.Status = StatusUnhealthy
			break
		}
		if comp.Status == StatusDegraded {
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}
