package config

import (
	"os"
	"path/filepath"
	"testing"
)

func noEnv(string) string { return "" }

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(filepath.Join(t.TempDir(), "missing.json"), noEnv)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("server defaults wrong: %+v", cfg.Server)
	}
	if cfg.Runner.DefaultModel != "gpt-4o-mini" || cfg.Runner.MaxIterations != 15 {
		t.Errorf("runner defaults wrong: %+v", cfg.Runner)
	}
	if cfg.Storage.RunsDir == "" {
		t.Error("runs dir default empty")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level default = %q", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server.port": 9000,
		"runner.default_model": "claude-haiku",
		"storage.runs_dir": "/tmp/traces"
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(path, noEnv)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Runner.DefaultModel != "claude-haiku" {
		t.Errorf("model = %q", cfg.Runner.DefaultModel)
	}
	if cfg.Storage.RunsDir != "/tmp/traces" {
		t.Errorf("runs dir = %q", cfg.Storage.RunsDir)
	}
	// Untouched keys keep their defaults.
	if cfg.Runner.MaxIterations != 15 {
		t.Errorf("max iterations = %d", cfg.Runner.MaxIterations)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 9000}`), 0o600); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{
		"RLMTRACE_SERVER_PORT":  "9999",
		"RLMTRACE_SERVER_TOKEN": "hunter2",
	}
	cfg, err := loadWith(path, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if cfg.Server.Token != "hunter2" {
		t.Errorf("token = %q", cfg.Server.Token)
	}
}

func TestRunsDirFollowsDataDir(t *testing.T) {
	cfg, err := loadWith(filepath.Join(t.TempDir(), "missing.json"), func(k string) string {
		if k == "RLMTRACE_STORAGE_DATA_DIR" {
			return "/var/lib/rlmtrace"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Storage.RunsDir != filepath.Join("/var/lib/rlmtrace", "runs") {
		t.Errorf("runs dir = %q, want it under the overridden data dir", cfg.Storage.RunsDir)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": "not-a-number"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadWith(path, noEnv); err == nil {
		t.Error("expected error for non-integer port")
	}

	if _, err := loadWith(filepath.Join(t.TempDir(), "missing.json"), func(k string) string {
		if k == "RLMTRACE_SERVER_PORT" {
			return "8.5"
		}
		return ""
	}); err == nil {
		t.Error("expected error for fractional env port")
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadWith(path, noEnv); err == nil {
		t.Error("expected error for corrupt config file")
	}
}
