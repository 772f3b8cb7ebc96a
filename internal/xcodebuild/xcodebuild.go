// Package xcodebuild wraps the mechanics of the native build tool:
// descriptor discovery, argument construction, output-line
// classification, app bundle location and toolchain probing.
package xcodebuild

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/toolchain"
)

// Descriptor is the on-disk project or workspace file a build is run
// against.
type Descriptor struct {
	Path        string
	IsWorkspace bool
}

// FindDescriptor locates the build descriptor in dir. An explicit
// override must exist or the lookup fails; otherwise a workspace is
// preferred over a project file.
func FindDescriptor(dir, override string) (*Descriptor, error) {
	if override != "" {
		path := filepath.Join(dir, override)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("specified project file not found: %s", override)
		}
		return &Descriptor{Path: path, IsWorkspace: strings.HasSuffix(override, ".xcworkspace")}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading project directory: %w", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".xcworkspace" {
			return &Descriptor{Path: filepath.Join(dir, entry.Name()), IsWorkspace: true}, nil
		}
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".xcodeproj" {
			return &Descriptor{Path: filepath.Join(dir, entry.Name())}, nil
		}
	}
	return nil, ErrNoDescriptor
}

// Args builds the xcodebuild argument list for a request.
func Args(desc *Descriptor, req *models.BuildRequest) []string {
	args := make([]string, 0, 16)
	if desc.IsWorkspace {
		args = append(args, "-workspace", desc.Path)
	} else {
		args = append(args, "-project", desc.Path)
	}
	args = append(args,
		"-scheme", req.Scheme,
		"-configuration", req.Configuration.XcodeName(),
		"-sdk", "iphonesimulator",
		"-destination", req.Destination.XcodebuildArg(),
	)
	if req.Clean {
		args = append(args, "clean")
	}
	args = append(args, "build")
	args = append(args, req.ExtraArgs...)
	return args
}

// ClassifyLine assigns a severity to one xcodebuild output line by
// substring inspection, independent of the process exit status.
func ClassifyLine(line string) models.LogLevel {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error:") || strings.Contains(lower, "fatal error"):
		return models.LogLevelError
	case strings.Contains(lower, "warning:"):
		return models.LogLevelWarning
	case strings.Contains(lower, "note:"):
		return models.LogLevelDebug
	default:
		return models.LogLevelInfo
	}
}

// maxBundleWalkDepth bounds the DerivedData walk; build products never
// sit deeper than Build/Products/<config>-iphonesimulator/<name>.app.
const maxBundleWalkDepth = 6

// FindAppBundle walks the known build-output roots for an .app bundle
// matching the requested configuration and the simulator platform.
func FindAppBundle(projectDir string, configuration models.BuildConfiguration) (string, error) {
	home, _ := os.UserHomeDir()
	roots := []string{
		filepath.Join(projectDir, "DerivedData"),
		filepath.Join(projectDir, "build"),
	}
	if home != "" {
		roots = append(roots, filepath.Join(home, "Library/Developer/Xcode/DerivedData"))
	}

	configName := configuration.XcodeName()
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		found := ""
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if depth(root, path) > maxBundleWalkDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() && filepath.Ext(path) == ".app" {
				if strings.Contains(path, configName) && strings.Contains(path, "iphonesimulator") {
					found = path
					return filepath.SkipAll
				}
				return filepath.SkipDir
			}
			return nil
		})
		if walkErr == nil && found != "" {
			return found, nil
		}
	}
	return "", ErrAppNotFound
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// Info describes the installed Xcode toolchain.
type Info struct {
	Version string
	Path    string
}

// Probe checks the toolchain by asking for its path and version. A
// missing toolchain returns ErrToolchainUnavailable.
func Probe(ctx context.Context, runner toolchain.Runner) (*Info, error) {
	pathRes, err := runner.Run(ctx, "xcode-select", "-p")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolchainUnavailable, err)
	}
	if pathRes.ExitCode != 0 {
		return nil, fmt.Errorf("%w: xcode-select failed: %s", ErrToolchainUnavailable, strings.TrimSpace(pathRes.Stderr))
	}

	verRes, err := runner.Run(ctx, "xcodebuild", "-version")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolchainUnavailable, err)
	}
	if verRes.ExitCode != 0 {
		return nil, fmt.Errorf("%w: xcodebuild -version failed", ErrToolchainUnavailable)
	}

	version := "Unknown"
	if lines := strings.Split(verRes.Stdout, "\n"); len(lines) > 0 && lines[0] != "" {
		version = strings.TrimPrefix(strings.TrimSpace(lines[0]), "Xcode ")
	}
	return &Info{
		Version: version,
		Path:    strings.TrimSpace(pathRes.Stdout),
	}, nil
}
