// Package simctl adapts the native device-control tool (xcrun simctl)
// into typed device and runtime records and lifecycle operations.
package simctl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/toolchain"
)

// runtimePrefix is what simctl prepends to runtime identifiers in its
// device listing keys.
const runtimePrefix = "com.apple.CoreSimulator.SimRuntime."

// Client shells out to simctl. Device state is always re-fetched, never
// cached: listings are snapshots.
type Client struct {
	runner toolchain.Runner
	logger *slog.Logger
	// bootSettle is the pause after a boot request; simctl returns
	// before the device is usable.
	bootSettle time.Duration
}

// NewClient creates a simctl adapter.
func NewClient(runner toolchain.Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{runner: runner, logger: logger, bootSettle: 2 * time.Second}
}

type deviceList struct {
	Devices map[string][]rawDevice `json:"devices"`
}

type rawDevice struct {
	UDID         string `json:"udid"`
	Name         string `json:"name"`
	DeviceTypeID string `json:"deviceTypeIdentifier"`
	State        string `json:"state"`
	IsAvailable  *bool  `json:"isAvailable"`
}

type runtimeList struct {
	Runtimes []rawRuntime `json:"runtimes"`
}

type rawRuntime struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	BuildVersion string `json:"buildversion"`
	IsAvailable  bool   `json:"isAvailable"`
}

// ListDevices returns a snapshot of all simulator devices.
func (c *Client) ListDevices(ctx context.Context) ([]models.SimulatorDevice, error) {
	res, err := c.run(ctx, "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, err
	}

	var list deviceList
	if err := json.Unmarshal([]byte(res.Stdout), &list); err != nil {
		return nil, fmt.Errorf("parsing simctl device list: %w", err)
	}

	runtimeIDs := make([]string, 0, len(list.Devices))
	for id := range list.Devices {
		runtimeIDs = append(runtimeIDs, id)
	}
	sort.Strings(runtimeIDs)

	var devices []models.SimulatorDevice
	for _, runtimeID := range runtimeIDs {
		runtimeName := humanRuntime(runtimeID)
		for _, d := range list.Devices[runtimeID] {
			available := true
			if d.IsAvailable != nil {
				available = *d.IsAvailable
			}
			devices = append(devices, models.SimulatorDevice{
				UDID:              d.UDID,
				Name:              d.Name,
				DeviceTypeID:      d.DeviceTypeID,
				RuntimeIdentifier: runtimeID,
				Runtime:           runtimeName,
				State:             ParseState(d.State),
				IsAvailable:       available,
			})
		}
	}
	return devices, nil
}

// ListRuntimes returns the installed simulator runtimes.
func (c *Client) ListRuntimes(ctx context.Context) ([]models.SimulatorRuntime, error) {
	res, err := c.run(ctx, "simctl", "list", "runtimes", "--json")
	if err != nil {
		return nil, err
	}

	var list runtimeList
	if err := json.Unmarshal([]byte(res.Stdout), &list); err != nil {
		return nil, fmt.Errorf("parsing simctl runtime list: %w", err)
	}

	runtimes := make([]models.SimulatorRuntime, 0, len(list.Runtimes))
	for _, r := range list.Runtimes {
		runtimes = append(runtimes, models.SimulatorRuntime{
			Identifier:   r.Identifier,
			Name:         r.Name,
			Version:      r.Version,
			BuildVersion: r.BuildVersion,
			IsAvailable:  r.IsAvailable,
		})
	}
	return runtimes, nil
}

// Boot boots a device. Booting an already-booted device is success:
// simctl reports the benign no-op only as error text, so the text is
// inspected for the current-state phrase. This is a deliberate
// heuristic; the tool offers no structured signal to replace it.
func (c *Client) Boot(ctx context.Context, udid string) error {
	c.logger.Info("booting simulator", "udid", udid)
	res, err := c.runner.Run(ctx, "xcrun", "simctl", "boot", udid)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(res.Stderr, "Booted") {
		return fmt.Errorf("simctl boot failed: %s", strings.TrimSpace(res.Stderr))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.bootSettle):
	}
	return nil
}

// Shutdown shuts a device down. Shutting down an already-shutdown
// device is success, detected the same way as Boot.
func (c *Client) Shutdown(ctx context.Context, udid string) error {
	c.logger.Info("shutting down simulator", "udid", udid)
	res, err := c.runner.Run(ctx, "xcrun", "simctl", "shutdown", udid)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(res.Stderr, "Shutdown") {
		return fmt.Errorf("simctl shutdown failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Install installs an app bundle on a device.
func (c *Client) Install(ctx context.Context, udid, appPath string) error {
	c.logger.Info("installing app", "udid", udid, "app_path", appPath)
	res, err := c.runner.Run(ctx, "xcrun", "simctl", "install", udid, appPath)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("simctl install failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Launch starts an app, restarting it if already running. The returned
// pid is parsed from the tool's output and is zero when the tool did
// not report one; a missing pid is not an error.
func (c *Client) Launch(ctx context.Context, udid, bundleID string, launchArgs []string, env map[string]string) (int, error) {
	c.logger.Info("launching app", "udid", udid, "bundle_id", bundleID)

	args := []string{"simctl", "launch", "--terminate-running-process", udid, bundleID}
	args = append(args, launchArgs...)

	res, err := c.runner.RunEnv(ctx, env, "xcrun", args...)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("simctl launch failed: %s", strings.TrimSpace(res.Stderr))
	}
	return parsePID(res.Stdout, bundleID), nil
}

// Terminate stops a running app. A non-zero exit is tolerated: the app
// may simply not be running.
func (c *Client) Terminate(ctx context.Context, udid, bundleID string) error {
	c.logger.Info("terminating app", "udid", udid, "bundle_id", bundleID)
	res, err := c.runner.Run(ctx, "xcrun", "simctl", "terminate", udid, bundleID)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		c.logger.Debug("simctl terminate returned non-zero", "stderr", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Uninstall removes an app from a device.
func (c *Client) Uninstall(ctx context.Context, udid, bundleID string) error {
	c.logger.Info("uninstalling app", "udid", udid, "bundle_id", bundleID)
	res, err := c.runner.Run(ctx, "xcrun", "simctl", "uninstall", udid, bundleID)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("simctl uninstall failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// FindDeviceByName returns the first available device whose name
// contains the given name, case-insensitively.
func (c *Client) FindDeviceByName(ctx context.Context, name string) (*models.SimulatorDevice, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for i := range devices {
		if devices[i].IsAvailable && strings.Contains(strings.ToLower(devices[i].Name), needle) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no available simulator found matching %q", name)
}

func (c *Client) run(ctx context.Context, args ...string) (*toolchain.Result, error) {
	res, err := c.runner.Run(ctx, "xcrun", args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("xcrun %s failed: %s", strings.Join(args, " "), strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// ParseState normalizes simctl's state vocabulary. Unrecognized
// strings default to shutdown.
func ParseState(state string) models.SimulatorState {
	switch strings.ToLower(state) {
	case "booted":
		return models.SimulatorStateBooted
	case "booting":
		return models.SimulatorStateBooting
	case "shuttingdown", "shutting down":
		return models.SimulatorStateShuttingDown
	default:
		return models.SimulatorStateShutdown
	}
}

// parsePID extracts a process id from launch output, formatted as
// "com.example.App: 12345". Absence is fine; zero means unknown.
func parsePID(stdout, bundleID string) int {
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, bundleID) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if pid, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return pid
		}
	}
	return 0
}

// humanRuntime turns a runtime identifier into a readable name, e.g.
// "com.apple.CoreSimulator.SimRuntime.iOS-17-0" into "iOS 17 0".
func humanRuntime(identifier string) string {
	name := strings.TrimPrefix(identifier, runtimePrefix)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, ".", " ")
	return name
}
