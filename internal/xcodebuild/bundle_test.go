package xcodebuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xscape-dev/agent/internal/toolchain"
)

const demoInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.demo</string>
	<key>CFBundleName</key>
	<string>Demo</string>
</dict>
</plist>
`

func TestBundleIDFromPlist(t *testing.T) {
	app := filepath.Join(t.TempDir(), "Demo.app")
	mustMkdir(t, app)
	if err := os.WriteFile(filepath.Join(app, "Info.plist"), []byte(demoInfoPlist), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := toolchain.NewFakeRunner()
	got, err := BundleID(context.Background(), runner, app)
	if err != nil {
		t.Fatalf("BundleID failed: %v", err)
	}
	if got != "com.example.demo" {
		t.Errorf("BundleID = %q, want com.example.demo", got)
	}
	if len(runner.Calls) != 0 {
		t.Error("a parseable plist must not fall back to PlistBuddy")
	}
}

func TestBundleIDFallsBackToPlistBuddy(t *testing.T) {
	app := filepath.Join(t.TempDir(), "Demo.app")
	mustMkdir(t, app)
	if err := os.WriteFile(filepath.Join(app, "Info.plist"), []byte("not a plist"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := toolchain.NewFakeRunner()
	runner.Stub("/usr/libexec/PlistBuddy", &toolchain.Script{
		Result: &toolchain.Result{Stdout: "com.example.fallback\n"},
	})

	got, err := BundleID(context.Background(), runner, app)
	if err != nil {
		t.Fatalf("BundleID failed: %v", err)
	}
	if got != "com.example.fallback" {
		t.Errorf("BundleID = %q, want com.example.fallback", got)
	}
}

func TestBundleIDMissingPlist(t *testing.T) {
	app := filepath.Join(t.TempDir(), "Demo.app")
	mustMkdir(t, app)

	runner := toolchain.NewFakeRunner()
	runner.Stub("/usr/libexec/PlistBuddy", &toolchain.Script{
		Result: &toolchain.Result{ExitCode: 1, Stderr: "File Doesn't Exist"},
	})

	if _, err := BundleID(context.Background(), runner, app); err == nil {
		t.Fatal("BundleID should fail when no identifier can be read")
	}
}
