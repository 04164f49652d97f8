// Package config provides configuration management for the atlas CLI and
// HTTP server.
//
// Values are layered, highest precedence first: command-line flags, ATLAS_*
// environment variables, atlas.yaml, built-in defaults.
package config

import (
	"time"

	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
)

// Config holds all application configuration.
type Config struct {
	// Addr is the listen address of the HTTP API.
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Exactly one of ConnInfo, Service and DBConfig selects the database.
	ConnInfo      string            `koanf:"conninfo"`
	Service       string            `koanf:"service"`
	DBConfig      string            `koanf:"db_config"`
	DBSection     string            `koanf:"db_section"`
	DBOptions     map[string]string `koanf:"db_options"`
	StagingSchema string            `koanf:"staging_schema"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Output    string `koanf:"output"`

	// ConfigFile is the atlas.yaml that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// Source describes the database connection the configuration selects.
func (c *Config) Source() postgres.Source {
	return postgres.Source{
		ConnInfo:   c.ConnInfo,
		Service:    c.Service,
		ConfigFile: c.DBConfig,
		Section:    c.DBSection,
		Options:    c.DBOptions,
	}
}

// HasSource reports whether any connection source is configured.
func (c *Config) HasSource() bool {
	return c.ConnInfo != "" || c.Service != "" || c.DBConfig != ""
}
