// Package config loads engine settings from defaults, an optional hishell
// config file, HISHELL_* environment variables and the nuget.config chain.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "hishell"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "hishell"
	// EnvPrefix prefixes environment overrides, e.g. HISHELL_CACHE_DIR.
	EnvPrefix = "HISHELL"
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFilePath is an explicit config file; it must exist.
	ConfigFilePath string
	// WorkDir is the script directory. It anchors the default cache, the
	// config file search and the nuget.config lookup. Defaults to the
	// current directory.
	WorkDir string
	// ConfigDirPath overrides the user config directory.
	ConfigDirPath string
}

// ConfigDir returns the user configuration directory for hishell.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// Load resolves the configuration. It returns the config and the path of
// the config file used, or "" when only defaults and the environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	// Set defaults
	defaults := DefaultConfig(workDir)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("framework", defaults.Framework)
	v.SetDefault("runtime_identifier", defaults.RuntimeIdentifier)
	v.SetDefault("culture", defaults.Culture)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("max_depth", defaults.MaxDepth)
	v.SetDefault("strict_groups", defaults.StrictGroups)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("log_level", defaults.LogLevel)
	// No default: an unset folder falls back to nuget.config, an empty one disables it.
	if err := v.BindEnv("global_packages_folder"); err != nil {
		return nil, "", err
	}

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if _, err := os.Stat(opts.ConfigFilePath); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		v.SetConfigFile(opts.ConfigFilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(workDir)
		cfgDir := opts.ConfigDirPath
		if cfgDir == "" {
			cfgDir, _ = ConfigDir()
		}
		if cfgDir != "" {
			v.AddConfigPath(cfgDir)
		}
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
			resolvedPath = v.ConfigFileUsed()
		case errors.As(err, &notFound):
			// If no config file found, use defaults (no error)
		default:
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(workDir, cfg.CacheDir)
	}

	nc, err := LoadNuGetConfig(workDir)
	if err != nil {
		return nil, "", err
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = nc.Sources
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	for i := range cfg.Sources {
		if err := normalizeSource(&cfg.Sources[i], i, workDir); err != nil {
			return nil, "", err
		}
	}

	switch {
	case v.IsSet("global_packages_folder"):
		cfg.GlobalPackagesFolder = v.GetString("global_packages_folder")
	case nc.GlobalPackagesFolder != "":
		cfg.GlobalPackagesFolder = nc.GlobalPackagesFolder
	default:
		cfg.GlobalPackagesFolder = defaults.GlobalPackagesFolder
	}

	if cfg.MaxDepth <= 0 {
		return nil, "", fmt.Errorf("max_depth must be positive, got %d", cfg.MaxDepth)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, "", fmt.Errorf("fetch_timeout must be positive, got %s", cfg.FetchTimeout)
	}

	return &cfg, resolvedPath, nil
}

func normalizeSource(s *SourceConfig, i int, workDir string) error {
	if s.URL == "" {
		return fmt.Errorf("source %d (%s) has no url", i, s.Name)
	}
	if s.Kind == "" {
		s.Kind = KindForURL(s.URL)
	}
	if s.Kind == "local" {
		s.URL = localPath(s.URL, workDir)
	}
	if s.Name == "" {
		s.Name = s.URL
	}
	return nil
}
