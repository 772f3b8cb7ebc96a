package xcodebuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xscape-dev/agent/internal/toolchain"
	"howett.net/plist"
)

// infoPlist is the subset of an app bundle's manifest the agent needs.
type infoPlist struct {
	CFBundleIdentifier string `plist:"CFBundleIdentifier"`
}

// BundleID reads the bundle identifier from the app's embedded
// manifest. The plist is decoded directly (simulator builds emit
// binary plists, which the decoder handles); if decoding fails the
// native PlistBuddy tool is asked as a fallback so behavior on a
// fully-equipped Mac host is unchanged.
func BundleID(ctx context.Context, runner toolchain.Runner, appPath string) (string, error) {
	plistPath := filepath.Join(appPath, "Info.plist")

	data, err := os.ReadFile(plistPath)
	if err == nil {
		var info infoPlist
		if _, derr := plist.Unmarshal(data, &info); derr == nil && info.CFBundleIdentifier != "" {
			return info.CFBundleIdentifier, nil
		}
	}

	res, err := runner.Run(ctx, "/usr/libexec/PlistBuddy", "-c", "Print :CFBundleIdentifier", plistPath)
	if err != nil {
		return "", fmt.Errorf("reading bundle identifier from %s: %w", plistPath, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("reading bundle identifier: %s", strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}
