package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/hishell/internal/framework"
)

// DefaultSourceURL is the service index of nuget.org.
const DefaultSourceURL = "https://api.nuget.org/v3/index.json"

// Config is the resolved engine configuration.
type Config struct {
	CacheDir             string         `mapstructure:"cache_dir"`
	GlobalPackagesFolder string         `mapstructure:"global_packages_folder"`
	Framework            string         `mapstructure:"framework"`
	RuntimeIdentifier    string         `mapstructure:"runtime_identifier"`
	Culture              string         `mapstructure:"culture"`
	FetchTimeout         time.Duration  `mapstructure:"fetch_timeout"`
	MaxDepth             int            `mapstructure:"max_depth"`
	StrictGroups         bool           `mapstructure:"strict_groups"`
	UserAgent            string         `mapstructure:"user_agent"`
	LogLevel             string         `mapstructure:"log_level"`
	Sources              []SourceConfig `mapstructure:"sources"`
}

// SourceConfig names one package source. Kind is "nuget" or "local"; when
// empty it is inferred from the URL.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	Kind string `mapstructure:"kind"`
}

// DefaultSources is the source list used when nothing is configured.
func DefaultSources() []SourceConfig {
	return []SourceConfig{{Name: "nuget.org", URL: DefaultSourceURL, Kind: "nuget"}}
}

// DefaultConfig returns the defaults for a script run from workDir.
func DefaultConfig(workDir string) *Config {
	return &Config{
		CacheDir:             filepath.Join(workDir, "nuget_packages"),
		GlobalPackagesFolder: DefaultGlobalPackagesFolder(),
		Framework:            framework.DefaultTag,
		FetchTimeout:         30 * time.Second,
		MaxDepth:             64,
		UserAgent:            "hishell",
		LogLevel:             "info",
		Sources:              DefaultSources(),
	}
}

// DefaultGlobalPackagesFolder is $NUGET_PACKAGES or ~/.nuget/packages.
func DefaultGlobalPackagesFolder() string {
	if p := os.Getenv("NUGET_PACKAGES"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nuget", "packages")
}

// Env returns the asset selection environment described by the config.
func (c *Config) Env() framework.Env {
	return framework.DetectEnv(c.Framework, c.RuntimeIdentifier, c.Culture)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
