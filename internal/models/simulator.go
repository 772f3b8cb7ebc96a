package models

// SimulatorState is the normalized lifecycle state of a simulator device.
type SimulatorState string

const (
	SimulatorStateShutdown     SimulatorState = "shutdown"
	SimulatorStateBooted       SimulatorState = "booted"
	SimulatorStateBooting      SimulatorState = "booting"
	SimulatorStateShuttingDown SimulatorState = "shuttingdown"
)

// SimulatorDevice is a snapshot of one simulator device as reported by
// the device-control tool. Devices are never cached: every listing
// re-fetches from the tool.
type SimulatorDevice struct {
	UDID              string         `json:"udid"`
	Name              string         `json:"name"`
	DeviceTypeID      string         `json:"device_type_identifier"`
	RuntimeIdentifier string         `json:"runtime_identifier"`
	Runtime           string         `json:"runtime"`
	State             SimulatorState `json:"state"`
	IsAvailable       bool           `json:"is_available"`
}

// SimulatorRuntime is one installed simulator runtime.
type SimulatorRuntime struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	BuildVersion string `json:"build_version"`
	IsAvailable  bool   `json:"is_available"`
}

// ListSimulatorsResponse is returned by the simulator list endpoint.
type ListSimulatorsResponse struct {
	Devices  []SimulatorDevice  `json:"devices"`
	Runtimes []SimulatorRuntime `json:"runtimes"`
}

// BootRequest asks for a device state change.
type BootRequest struct {
	DeviceUDID string `json:"device_udid"`
}

// BootResponse reports the device state after a boot or shutdown.
type BootResponse struct {
	DeviceUDID string         `json:"device_udid"`
	State      SimulatorState `json:"state"`
}

// RunRequest asks to install and launch a built app on a device.
type RunRequest struct {
	BuildID     string            `json:"build_id"`
	DeviceUDID  string            `json:"device_udid"`
	LaunchArgs  []string          `json:"launch_args,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	WaitForExit bool              `json:"wait_for_exit"`
}

// RunResponse reports a launched app session. PID is zero when the
// device-control tool did not report one; it is optional by contract.
type RunResponse struct {
	SessionID  string `json:"session_id"`
	BundleID   string `json:"bundle_id"`
	PID        int    `json:"pid,omitempty"`
	DeviceUDID string `json:"device_udid"`
}
