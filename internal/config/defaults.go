package config

import (
	"time"

	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/inserter"
)

// Default configuration values.
const (
	DefaultAddr            = ":8000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultOutput          = "auto"
	DefaultEnvPrefix       = "ATLAS_"
	DefaultDBSection       = postgres.DefaultSection
)

// configFileNames are searched, in order, when no file is given explicitly.
var configFileNames = []string{"atlas.yaml", "atlas.yml"}

// defaults returns the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"addr":             DefaultAddr,
		"shutdown_timeout": DefaultShutdownTimeout.String(),
		"db_section":       DefaultDBSection,
		"staging_schema":   inserter.DefaultStagingSchema,
		"log_level":        DefaultLogLevel,
		"log_format":       DefaultLogFormat,
		"output":           DefaultOutput,
	}
}

// Default returns a Config holding only the built-in defaults.
func Default() *Config {
	return &Config{
		Addr:            DefaultAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		DBSection:       DefaultDBSection,
		StagingSchema:   inserter.DefaultStagingSchema,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		Output:          DefaultOutput,
	}
}
