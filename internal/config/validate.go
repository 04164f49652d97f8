package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validOutputs    = []string{"auto", "table", "json"}
)

// Validate checks enumerated values. Connection sources are checked when
// the connection is opened, so commands without a database still run.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.Output = strings.ToLower(c.Output)

	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("log_level must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.LogLevel)
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("log_format must be one of %s, got %q", strings.Join(validLogFormats, ", "), c.LogFormat)
	}
	if !slices.Contains(validOutputs, c.Output) {
		return fmt.Errorf("output must be one of %s, got %q", strings.Join(validOutputs, ", "), c.Output)
	}
	if c.DBSection == "" {
		return fmt.Errorf("db_section must not be empty")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	return nil
}
