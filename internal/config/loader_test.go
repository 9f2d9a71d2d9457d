package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobsh.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("LOG_DIR", "/var/tmp")
	path := writeConfig(t, `prompt: "$ "
logging:
  level: DEBUG
  file: ${LOG_DIR}/jobsh.log
  format: json
shutdown:
  grace: 500ms
metrics:
  listen: 127.0.0.1:9464
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prompt != "$ " {
		t.Fatalf("unexpected prompt %q", cfg.Prompt)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalised level, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.File != "/var/tmp/jobsh.log" {
		t.Fatalf("expected expanded log file, got %q", cfg.Logging.File)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected format %q", cfg.Logging.Format)
	}
	if cfg.Shutdown.Grace.Duration != 500*time.Millisecond {
		t.Fatalf("unexpected grace %v", cfg.Shutdown.Grace.Duration)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Fatalf("unexpected listen address %q", cfg.Metrics.Listen)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prompt != DefaultPrompt {
		t.Fatalf("expected default prompt, got %q", cfg.Prompt)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.Shutdown.Grace.Duration != DefaultShutdownGrace {
		t.Fatalf("unexpected grace %v", cfg.Shutdown.Grace.Duration)
	}
}

func TestLoadExplicitZeroGraceIsKept(t *testing.T) {
	path := writeConfig(t, "shutdown:\n  grace: 0s\n")
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Shutdown.Grace.Duration != 0 {
		t.Fatalf("expected zero grace, got %v", cfg.Shutdown.Grace.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := Load(missing, true)
	if err != nil {
		t.Fatalf("optional load: %v", err)
	}
	if cfg.Prompt != DefaultPrompt {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	if _, err := Load(missing, false); err == nil {
		t.Fatalf("expected error for required missing file")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("JOBSH_PROMPT", "> ")
	t.Setenv("JOBSH_LOG_LEVEL", "warn")
	t.Setenv("JOBSH_SHUTDOWN_GRACE", "5s")
	path := writeConfig(t, "prompt: \"$ \"\nlogging:\n  level: debug\n")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prompt != "> " {
		t.Fatalf("expected env prompt, got %q", cfg.Prompt)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env level, got %q", cfg.Logging.Level)
	}
	if cfg.Shutdown.Grace.Duration != 5*time.Second {
		t.Fatalf("expected env grace, got %v", cfg.Shutdown.Grace.Duration)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknownField", body: "colour: red\n", wantErr: "field colour not found"},
		{name: "badLevel", body: "logging:\n  level: loud\n", wantErr: "logging.level"},
		{name: "badFormat", body: "logging:\n  format: xml\n", wantErr: "logging.format"},
		{name: "negativeGrace", body: "shutdown:\n  grace: -1s\n", wantErr: "shutdown.grace"},
		{name: "badDuration", body: "shutdown:\n  grace: soon\n", wantErr: "invalid duration"},
		{name: "badListen", body: "metrics:\n  listen: nowhere\n", wantErr: "metrics.listen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path, false)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadRejectsInvalidEnvironmentGrace(t *testing.T) {
	for _, value := range []string{"abc", "-1s"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("JOBSH_SHUTDOWN_GRACE", value)
			_, err := Load("", false)
			if err == nil {
				t.Fatalf("expected error for %q", value)
			}
			if !strings.Contains(err.Error(), "JOBSH_SHUTDOWN_GRACE") {
				t.Fatalf("expected error naming the variable, got %v", err)
			}
		})
	}
}
