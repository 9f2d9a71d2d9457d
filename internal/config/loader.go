package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultFileName = ".jobshrc.yaml"

// DefaultPath returns the per-user configuration path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultFileName)
}

// Load reads the configuration at path. When optional is set a missing file
// yields the defaults instead of an error. Environment overrides are applied
// before validation.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		f, err := os.Open(absPath)
		switch {
		case err == nil:
			defer f.Close()
			decoder := yaml.NewDecoder(f)
			decoder.KnownFields(true)
			if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: decode: %w", absPath, err)
			}
			cfg.Logging.File = os.ExpandEnv(cfg.Logging.File)
			path = absPath
		case optional && errors.Is(err, fs.ErrNotExist):
			path = ""
		default:
			return nil, fmt.Errorf("open config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if value := os.Getenv("JOBSH_PROMPT"); value != "" {
		cfg.Prompt = value
	}
	if value := os.Getenv("JOBSH_LOG_LEVEL"); value != "" {
		cfg.Logging.Level = value
	}
	if value := os.Getenv("JOBSH_LOG_FILE"); value != "" {
		cfg.Logging.File = os.ExpandEnv(value)
	}
	if value := os.Getenv("JOBSH_LOG_FORMAT"); value != "" {
		cfg.Logging.Format = value
	}
	if value := os.Getenv("JOBSH_METRICS_LISTEN"); value != "" {
		cfg.Metrics.Listen = value
	}
	if value := os.Getenv("JOBSH_SHUTDOWN_GRACE"); value != "" {
		var grace Duration
		if err := grace.UnmarshalText([]byte(value)); err != nil || grace.Duration < 0 {
			return fmt.Errorf("JOBSH_SHUTDOWN_GRACE: invalid duration %q", value)
		}
		cfg.Shutdown.Grace = grace
	}
	return nil
}
