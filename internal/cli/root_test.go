package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobshrc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, configManifest(
		`prompt: "% "`,
		"logging:",
		"  level: info",
		"shutdown:",
		"  grace: 3s",
	))

	cmd, opts := newRootCommand()
	if err := cmd.PersistentFlags().Set("file", path); err != nil {
		t.Fatalf("set file flag: %v", err)
	}
	if err := cmd.Flags().Set("prompt", "> "); err != nil {
		t.Fatalf("set prompt flag: %v", err)
	}
	if err := cmd.Flags().Set("log-level", "debug"); err != nil {
		t.Fatalf("set log-level flag: %v", err)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Prompt != "> " {
		t.Fatalf("expected prompt override, got %q", cfg.Prompt)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Shutdown.Grace.Duration != 3*time.Second {
		t.Fatalf("expected grace from file, got %s", cfg.Shutdown.Grace.Duration)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	path := writeConfigFile(t, "")

	cmd, opts := newRootCommand()
	if err := cmd.PersistentFlags().Set("file", path); err != nil {
		t.Fatalf("set file flag: %v", err)
	}
	if err := cmd.Flags().Set("metrics-listen", "missing-port"); err != nil {
		t.Fatalf("set metrics-listen flag: %v", err)
	}
	if _, err := loadConfig(cmd, opts); err == nil || !strings.Contains(err.Error(), "metrics.listen") {
		t.Fatalf("expected metrics.listen validation error, got %v", err)
	}
}

func TestBuiltinCommand(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"builtin", "pwd"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("builtin pwd: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if out.String() != wd+"\n" {
		t.Fatalf("expected %q, got %q", wd+"\n", out.String())
	}
}

func TestBuiltinCommandUnknown(t *testing.T) {
	cmd := NewRootCmd()
	errOut := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"builtin", "ls", "-l"})

	err := cmd.ExecuteContext(context.Background())
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 127 {
		t.Fatalf("expected exit status 127, got %v", err)
	}
	if errOut.String() != "ls: not a builtin\n" {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestCommandFlagReturnsExitStatus(t *testing.T) {
	path := writeConfigFile(t, "")

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--file", path, "-c", "false"})
	err := cmd.ExecuteContext(context.Background())
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}

	cmd = NewRootCmd()
	cmd.SetArgs([]string{"--file", path, "-c", "true"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "jobsh ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
