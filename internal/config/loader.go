package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// findConfigFile finds the config file to use.
// Priority: explicit path > atlas.yaml > atlas.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// flagKeys are the configuration keys a command-line flag may set. Flags
// are matched by name with dashes turned into underscores; other flags are
// command options, not configuration.
var flagKeys = map[string]bool{
	"addr":             true,
	"shutdown_timeout": true,
	"conninfo":         true,
	"service":          true,
	"db_config":        true,
	"db_section":       true,
	"staging_schema":   true,
	"log_level":        true,
	"log_format":       true,
	"output":           true,
}

// Load loads configuration from defaults, the config file, environment
// variables and flags, in increasing precedence. Only flags that were set
// explicitly override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment variables
	// Transform: ATLAS_DB_CONFIG -> db_config, ATLAS_DB_OPTIONS_SSLMODE -> db_options.sslmode
	if err := k.Load(env.Provider(DefaultEnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !f.Changed || !flagKeys[key] {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = used

	cfg.ConnInfo = expandEnvVars(cfg.ConnInfo)
	cfg.Service = expandEnvVars(cfg.Service)
	cfg.DBConfig = expandEnvVars(cfg.DBConfig)
	for key, v := range cfg.DBOptions {
		cfg.DBOptions[key] = expandEnvVars(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, DefaultEnvPrefix))
	if opt, ok := strings.CutPrefix(key, "db_options_"); ok {
		return "db_options." + opt
	}
	return key
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unknown variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}
