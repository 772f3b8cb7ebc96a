package xcodebuild

import "errors"

var (
	// ErrNoDescriptor is returned when the extracted project tree
	// contains neither an .xcworkspace nor an .xcodeproj.
	ErrNoDescriptor = errors.New("no .xcworkspace or .xcodeproj found in project directory")
	// ErrAppNotFound is returned when a build exited zero but no
	// matching .app bundle could be located in the build-output roots.
	ErrAppNotFound = errors.New("built app bundle not found")
	// ErrToolchainUnavailable is returned when the Xcode toolchain
	// cannot be probed at all.
	ErrToolchainUnavailable = errors.New("xcode toolchain unavailable")
)
