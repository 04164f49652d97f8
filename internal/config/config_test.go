package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("addr", DefaultAddr, "")
	fs.String("conninfo", "", "")
	fs.String("db-config", "", "")
	fs.String("log-level", DefaultLogLevel, "")
	fs.String("table", "", "")
	fs.Duration("shutdown-timeout", DefaultShutdownTimeout, "")
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, "atlasdb", cfg.DBSection)
	assert.Equal(t, "staging", cfg.StagingSchema)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "auto", cfg.Output)
	assert.Empty(t, cfg.ConfigFile)
	assert.False(t, cfg.HasSource())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
conninfo: "postgres://file"
log_level: warn
shutdown_timeout: 3s
db_options:
  sslmode: require
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Addr)
		assert.Equal(t, "postgres://file", cfg.ConnInfo)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
		assert.Equal(t, map[string]string{"sslmode": "require"}, cfg.DBOptions)
		assert.Equal(t, path, cfg.ConfigFile)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("ATLAS_ADDR", ":9100")
		t.Setenv("ATLAS_DB_OPTIONS_APPLICATION_NAME", "atlas-env")

		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, ":9100", cfg.Addr)
		assert.Equal(t, "atlas-env", cfg.DBOptions["application_name"])
		assert.Equal(t, "require", cfg.DBOptions["sslmode"])
	})

	t.Run("changed flags over env", func(t *testing.T) {
		t.Setenv("ATLAS_ADDR", ":9100")
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--addr", ":9200", "--config", path}))

		cfg, err := Load(path, fs)
		require.NoError(t, err)
		assert.Equal(t, ":9200", cfg.Addr)
		// Unchanged flags keep lower layers.
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "postgres://file", cfg.ConnInfo)
	})

	t.Run("kebab flags map to snake keys", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{
			"--db-config", "/etc/atlas/dbconfig", "--log-level", "debug",
			"--shutdown-timeout", "1m", "--table", "asset",
		}))

		cfg, err := Load(path, fs)
		require.NoError(t, err)
		assert.Equal(t, "/etc/atlas/dbconfig", cfg.DBConfig)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
	})
}

func TestLoad_FindsConfigInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "atlas.yml"), []byte("service: atlas\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "atlas.yml", cfg.ConfigFile)
	assert.Equal(t, "atlas", cfg.Source().Service)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "log_format: xml\n")
		_, err := Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log_format")
	})
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ATLAS_TEST_PASSWORD", "s3cret")
	path := writeConfig(t, `conninfo: "postgres://atlas:${ATLAS_TEST_PASSWORD}@db/atlas"`+"\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://atlas:s3cret@db/atlas", cfg.ConnInfo)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")

	assert.Equal(t, "value_one", expandEnvVars("${TEST_VAR_ONE}"))
	assert.Equal(t, "a-value_one-b", expandEnvVars("a-${TEST_VAR_ONE}-b"))
	assert.Equal(t, "${TEST_VAR_UNSET}", expandEnvVars("${TEST_VAR_UNSET}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{DBSection: "atlasdb", LogLevel: "INFO", LogFormat: "json", Output: "table"}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel, "values are normalized")

	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "trace" }, substr: "log_level"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, substr: "log_format"},
		{name: "output", mutate: func(c *Config) { c.Output = "csv" }, substr: "output"},
		{name: "section", mutate: func(c *Config) { c.DBSection = "" }, substr: "db_section"},
		{name: "timeout", mutate: func(c *Config) { c.ShutdownTimeout = -time.Second }, substr: "shutdown_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestConfig_Source(t *testing.T) {
	cfg := Config{DBConfig: "/etc/atlas/dbconfig", DBSection: "prod", DBOptions: map[string]string{"sslmode": "disable"}}

	src := cfg.Source()
	assert.Equal(t, "/etc/atlas/dbconfig", src.ConfigFile)
	assert.Equal(t, "prod", src.Section)
	assert.Equal(t, "disable", src.Options["sslmode"])
	assert.True(t, cfg.HasSource())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "table", "asset")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
	assert.NotNil(t, GetLogger(context.Background()))
}

func TestConfigContext(t *testing.T) {
	def := FromContext(context.Background())
	require.NoError(t, def.Validate())
	assert.Equal(t, DefaultAddr, def.Addr)

	cfg := &Config{Addr: ":1234"}
	assert.Same(t, cfg, FromContext(WithConfig(context.Background(), cfg)))
}
