package models

import (
	"fmt"
	"time"
)

// BuildStatus represents the current state of a build.
type BuildStatus string

const (
	BuildStatusQueued    BuildStatus = "queued"
	BuildStatusBuilding  BuildStatus = "building"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// Terminal returns true if the status is a final state.
func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildStatusSucceeded, BuildStatusFailed, BuildStatusCancelled:
		return true
	default:
		return false
	}
}

// BuildConfiguration selects the xcodebuild configuration.
type BuildConfiguration string

const (
	ConfigurationDebug   BuildConfiguration = "debug"
	ConfigurationRelease BuildConfiguration = "release"
)

// XcodeName returns the configuration name as xcodebuild spells it.
func (c BuildConfiguration) XcodeName() string {
	if c == ConfigurationRelease {
		return "Release"
	}
	return "Debug"
}

// Destination is the target platform, device and OS version a build is
// compiled for.
type Destination struct {
	Platform   string `json:"platform"`
	DeviceName string `json:"device_name"`
	OSVersion  string `json:"os_version,omitempty"`
}

// XcodebuildArg renders the destination as an xcodebuild -destination value.
func (d Destination) XcodebuildArg() string {
	platform := d.Platform
	if platform == "" {
		platform = "iOS Simulator"
	}
	arg := fmt.Sprintf("platform=%s,name=%s", platform, d.DeviceName)
	if d.OSVersion != "" {
		arg += fmt.Sprintf(",OS=%s", d.OSVersion)
	}
	return arg
}

// BuildRequest describes a build submitted by a client.
type BuildRequest struct {
	ProjectID string `json:"project_id"`
	// ProjectFile optionally overrides descriptor discovery with a path
	// relative to the project root.
	ProjectFile   string             `json:"project_file,omitempty"`
	Scheme        string             `json:"scheme"`
	Configuration BuildConfiguration `json:"configuration"`
	Destination   Destination        `json:"destination"`
	ExtraArgs     []string           `json:"extra_args,omitempty"`
	Clean         bool               `json:"clean"`
}

// BuildRecord is the full lifecycle record of one build. It is created
// with status queued, replaced wholesale by the owning build task on
// every transition, and read freely by concurrent status polls.
type BuildRecord struct {
	ID           string      `json:"build_id"`
	ProjectID    string      `json:"project_id"`
	Scheme       string      `json:"scheme"`
	Status       BuildStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	AppPath      string      `json:"app_path,omitempty"`
	BundleID     string      `json:"bundle_id,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Warnings     []string    `json:"warnings"`
	DurationSecs *float64    `json:"duration_secs,omitempty"`
}

// BuildResponse is returned when a build is accepted.
type BuildResponse struct {
	BuildID   string      `json:"build_id"`
	Status    BuildStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
}

// Artifact is the output of a successful build, written once and
// immutable thereafter.
type Artifact struct {
	AppPath  string   `json:"app_path"`
	BundleID string   `json:"bundle_id"`
	Warnings []string `json:"warnings"`
}
