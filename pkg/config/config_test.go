package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogBuffer != 1000 {
		t.Errorf("LogBuffer = %d, want 1000", cfg.LogBuffer)
	}
	if cfg.Storage.CleanupAfter != 24*time.Hour {
		t.Errorf("CleanupAfter = %v, want 24h", cfg.Storage.CleanupAfter)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("XSCAPE_HOST", "127.0.0.1")
	t.Setenv("XSCAPE_PORT", "9000")
	t.Setenv("XSCAPE_LOG_BUFFER", "50")
	t.Setenv("XSCAPE_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("XSCAPE_PROJECTS_DIR", "/tmp/xscape-test")
	t.Setenv("XSCAPE_CLEANUP_AFTER", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 9000 {
		t.Errorf("Addr() = %q, want 127.0.0.1:9000", cfg.Addr())
	}
	if cfg.LogBuffer != 50 {
		t.Errorf("LogBuffer = %d, want 50", cfg.LogBuffer)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.Storage.ProjectsDir != "/tmp/xscape-test" {
		t.Errorf("ProjectsDir = %q", cfg.Storage.ProjectsDir)
	}
	if cfg.Storage.CleanupAfter != 2*time.Hour {
		t.Errorf("CleanupAfter = %v, want 2h", cfg.Storage.CleanupAfter)
	}
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("XSCAPE_PORT", "not-a-number")
	t.Setenv("XSCAPE_CLEANUP_AFTER", "sometime later")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want the default on a malformed value", cfg.Port)
	}
	if cfg.Storage.CleanupAfter != 24*time.Hour {
		t.Errorf("CleanupAfter = %v, want the default", cfg.Storage.CleanupAfter)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("XSCAPE_PORT", "9000")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := "host: 10.0.0.5\nstorage:\n  projects_dir: /srv/projects\n  cleanup_after: 1h\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Host != "10.0.0.5" {
		t.Errorf("Host = %q, want the file value", cfg.Host)
	}
	// Values absent from the file keep their environment values.
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want the env value 9000", cfg.Port)
	}
	if cfg.Storage.ProjectsDir != "/srv/projects" {
		t.Errorf("ProjectsDir = %q", cfg.Storage.ProjectsDir)
	}
	if cfg.Storage.CleanupAfter != time.Hour {
		t.Errorf("CleanupAfter = %v, want 1h", cfg.Storage.CleanupAfter)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile should fail on a missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Host:      "0.0.0.0",
			Port:      8080,
			LogBuffer: 100,
			Storage:   StorageConfig{ProjectsDir: "/tmp/p"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	bad := base()
	bad.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("port 0 should be rejected")
	}

	bad = base()
	bad.Port = 70000
	if err := bad.Validate(); err == nil {
		t.Error("port above 65535 should be rejected")
	}

	bad = base()
	bad.Storage.ProjectsDir = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty projects dir should be rejected")
	}

	bad = base()
	bad.LogBuffer = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero log buffer should be rejected")
	}
}
