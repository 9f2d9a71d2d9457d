package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Validate enforces configuration invariants.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("%s: unsupported level %q (expected one of %s)", fieldPath("logging", "level"), c.Logging.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("%s: unsupported format %q (expected one of %s)", fieldPath("logging", "format"), c.Logging.Format, strings.Join(logFormats, ", "))
	}
	if c.Shutdown.Grace.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("shutdown", "grace"))
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("%s: invalid address %q: %w", fieldPath("metrics", "listen"), c.Metrics.Listen, err)
		}
	}
	return nil
}
