package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xscape-dev/agent/internal/models"
	"github.com/xscape-dev/agent/internal/state"
	"github.com/xscape-dev/agent/internal/toolchain"
)

const testInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.demo</string>
</dict>
</plist>
`

// newTestProject lays out a registered project directory with an
// .xcodeproj descriptor, optionally with a built simulator app bundle.
func newTestProject(t *testing.T, st *state.Store, withBundle bool) *models.Project {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "Demo.xcodeproj"), 0o755); err != nil {
		t.Fatal(err)
	}
	if withBundle {
		app := filepath.Join(dir, "build", "Build", "Products", "Debug-iphonesimulator", "Demo.app")
		if err := os.MkdirAll(app, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(app, "Info.plist"), []byte(testInfoPlist), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p := &models.Project{ID: "p1", Name: "Demo", Checksum: "abc", Path: dir, SyncedAt: time.Now().UTC()}
	st.PutProject(p)
	return p
}

func testRequest() *models.BuildRequest {
	return &models.BuildRequest{
		ProjectID:     "p1",
		Scheme:        "Demo",
		Configuration: models.ConfigurationDebug,
		Destination:   models.Destination{DeviceName: "iPhone 15"},
	}
}

func waitForTerminal(t *testing.T, st *state.Store, buildID string) *models.BuildRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if record, ok := st.GetBuild(buildID); ok && record.Status.Terminal() {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("build never reached a terminal status")
	return nil
}

func TestStartUnknownProject(t *testing.T) {
	st := state.New(10)
	svc := NewService(st, toolchain.NewFakeRunner(), nil)

	_, err := svc.Start(context.Background(), testRequest())
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestGetUnknownBuild(t *testing.T) {
	st := state.New(10)
	svc := NewService(st, toolchain.NewFakeRunner(), nil)

	_, err := svc.Get("nope")
	if !errors.Is(err, ErrBuildNotFound) {
		t.Fatalf("err = %v, want ErrBuildNotFound", err)
	}
}

func TestBuildSucceeds(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{
		StdoutLines: []string{
			"CompileSwift normal arm64 App.swift",
			"/src/App.swift:3:1: warning: variable 'x' was never used",
			"** BUILD SUCCEEDED **",
		},
	})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, true)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if record.Status != models.BuildStatusQueued {
		t.Errorf("initial status = %q, want queued", record.Status)
	}

	final := waitForTerminal(t, st, record.ID)
	if final.Status != models.BuildStatusSucceeded {
		t.Fatalf("status = %q (%s), want succeeded", final.Status, final.ErrorMessage)
	}
	if final.BundleID != "com.example.demo" {
		t.Errorf("BundleID = %q, want com.example.demo", final.BundleID)
	}
	if !strings.HasSuffix(final.AppPath, "Demo.app") {
		t.Errorf("AppPath = %q, want a Demo.app path", final.AppPath)
	}
	if len(final.Warnings) != 1 || !strings.Contains(final.Warnings[0], "never used") {
		t.Errorf("Warnings = %v, want the collected warning line", final.Warnings)
	}
	if final.FinishedAt == nil || final.DurationSecs == nil {
		t.Error("terminal record must carry FinishedAt and DurationSecs")
	}

	artifact, ok := st.GetArtifact(record.ID)
	if !ok {
		t.Fatal("succeeded build must register an artifact")
	}
	if artifact.BundleID != "com.example.demo" {
		t.Errorf("artifact BundleID = %q", artifact.BundleID)
	}
}

func TestBuildFailsOnNonZeroExit(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{
		StdoutLines: []string{"/src/App.swift:10:5: error: cannot find 'foo' in scope"},
		StderrLines: []string{"** BUILD FAILED **"},
		ExitCode:    65,
	})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, false)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForTerminal(t, st, record.ID)
	if final.Status != models.BuildStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "exit") && !strings.Contains(final.ErrorMessage, "65") {
		t.Errorf("ErrorMessage = %q, want the exit code surfaced", final.ErrorMessage)
	}
	if _, ok := st.GetArtifact(record.ID); ok {
		t.Error("failed build must not register an artifact")
	}
}

func TestBuildCancelledOnSignal(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{
		StdoutLines: []string{"CompileSwift normal arm64 App.swift"},
		Signalled:   true,
		Signal:      "terminated",
	})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, false)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForTerminal(t, st, record.ID)
	if final.Status != models.BuildStatusCancelled {
		t.Fatalf("status = %q, want cancelled for a signalled process", final.Status)
	}
}

func TestBuildFailsWhenNoBundleProduced(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{
		StdoutLines: []string{"** BUILD SUCCEEDED **"},
	})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, false)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForTerminal(t, st, record.ID)
	if final.Status != models.BuildStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "no app bundle") {
		t.Errorf("ErrorMessage = %q, want the missing-bundle explanation", final.ErrorMessage)
	}
}

func TestBuildFailsWithoutDescriptor(t *testing.T) {
	st := state.New(100)
	svc := NewService(st, toolchain.NewFakeRunner(), nil)

	dir := t.TempDir()
	st.PutProject(&models.Project{ID: "p1", Name: "Empty", Path: dir})

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForTerminal(t, st, record.ID)
	if final.Status != models.BuildStatusFailed {
		t.Fatalf("status = %q, want failed when no descriptor exists", final.Status)
	}
}

func TestLogStreamClosesAtBuildEnd(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{
		StdoutLines: []string{"line one", "line two"},
		ExitCode:    65,
	})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, false)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	channel, ok := st.GetLogChannel(record.ID)
	if !ok {
		t.Fatal("build must create its log channel")
	}
	sub := channel.Subscribe()

	// Whatever subset of the stream this late subscriber sees, every
	// message is well-formed and the stream terminates.
	for {
		select {
		case msg, open := <-sub.C:
			if !open {
				waitForTerminal(t, st, record.ID)
				return
			}
			if msg.Type != "build_output" && msg.Type != "system_event" {
				t.Errorf("unexpected message type %q", msg.Type)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("log stream never closed")
		}
	}
}

func TestTerminalRecordIsStable(t *testing.T) {
	st := state.New(100)
	runner := toolchain.NewFakeRunner()
	runner.Stub("xcodebuild", &toolchain.Script{ExitCode: 1})
	svc := NewService(st, runner, nil)
	newTestProject(t, st, false)

	record, err := svc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForTerminal(t, st, record.ID)
	time.Sleep(20 * time.Millisecond)
	again, _ := st.GetBuild(record.ID)
	if again.Status != final.Status {
		t.Errorf("terminal status changed from %q to %q", final.Status, again.Status)
	}
	if again.Warnings == nil {
		t.Error("Warnings must be non-nil on terminal records")
	}
}
