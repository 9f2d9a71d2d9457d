package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Config mirrors the interpreter's YAML configuration file.
type Config struct {
	Prompt   string       `yaml:"prompt"`
	Logging  LoggingSpec  `yaml:"logging"`
	Shutdown ShutdownSpec `yaml:"shutdown"`
	Metrics  MetricsSpec  `yaml:"metrics"`
}

// LoggingSpec configures the diagnostic log. The terminal is shared with
// jobs, so logs go to a file or nowhere.
type LoggingSpec struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// ShutdownSpec controls how remaining jobs are ended when the interpreter
// exits.
type ShutdownSpec struct {
	// Grace is how long jobs get to honour SIGTERM before SIGKILL.
	Grace Duration `yaml:"grace"`
}

// MetricsSpec configures the optional Prometheus endpoint.
type MetricsSpec struct {
	Listen string `yaml:"listen"`
}

const (
	DefaultPrompt        = "# "
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultShutdownGrace = 2 * time.Second
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() error {
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if !c.Shutdown.Grace.IsSet() {
		c.Shutdown.Grace = Duration{Duration: DefaultShutdownGrace}
	}
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
