package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func load(t *testing.T, workDir string) (*Config, string) {
	t.Helper()
	cfg, path, err := Load(context.Background(), LoadOptions{WorkDir: workDir, ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg, path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NUGET_PACKAGES", "/opt/nuget")
	dir := t.TempDir()

	cfg, path := load(t, dir)
	if path != "" {
		t.Errorf("unexpected config file %q", path)
	}
	if cfg.CacheDir != filepath.Join(dir, "nuget_packages") {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.GlobalPackagesFolder != "/opt/nuget" {
		t.Errorf("GlobalPackagesFolder = %q", cfg.GlobalPackagesFolder)
	}
	if cfg.Framework != "net8.0" || cfg.MaxDepth != 64 || cfg.FetchTimeout != 30*time.Second || cfg.StrictGroups {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].URL != DefaultSourceURL || cfg.Sources[0].Kind != "nuget" {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if cfg.Level() != log.InfoLevel {
		t.Errorf("Level = %v", cfg.Level())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hishell.yaml"), `
cache_dir: .cache
framework: net472
fetch_timeout: 5s
max_depth: 8
strict_groups: true
log_level: debug
global_packages_folder: ""
sources:
  - name: corp
    url: https://pkgs.example.com/v3/index.json
  - name: drop
    url: ./packages
`)

	cfg, path := load(t, dir)
	if path != filepath.Join(dir, "hishell.yaml") {
		t.Errorf("config file = %q", path)
	}
	if cfg.CacheDir != filepath.Join(dir, ".cache") {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.Framework != "net472" || cfg.FetchTimeout != 5*time.Second || cfg.MaxDepth != 8 || !cfg.StrictGroups {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.GlobalPackagesFolder != "" {
		t.Errorf("empty global_packages_folder should disable it, got %q", cfg.GlobalPackagesFolder)
	}
	if cfg.Level() != log.DebugLevel {
		t.Errorf("Level = %v", cfg.Level())
	}

	want := []SourceConfig{
		{Name: "corp", URL: "https://pkgs.example.com/v3/index.json", Kind: "nuget"},
		{Name: "drop", URL: filepath.Join(dir, "packages"), Kind: "local"},
	}
	if len(cfg.Sources) != len(want) {
		t.Fatalf("Sources = %+v", cfg.Sources)
	}
	for i := range want {
		if cfg.Sources[i] != want[i] {
			t.Errorf("source %d = %+v, want %+v", i, cfg.Sources[i], want[i])
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HISHELL_FRAMEWORK", "netstandard2.0")
	t.Setenv("HISHELL_MAX_DEPTH", "3")
	t.Setenv("HISHELL_GLOBAL_PACKAGES_FOLDER", "/srv/packages")

	cfg, _ := load(t, t.TempDir())
	if cfg.Framework != "netstandard2.0" || cfg.MaxDepth != 3 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.GlobalPackagesFolder != "/srv/packages" {
		t.Errorf("GlobalPackagesFolder = %q", cfg.GlobalPackagesFolder)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	_, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "missing.toml")})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}

	path := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, path, "framework = \"net6.0\"\nmax_depth = 0\n")
	_, _, err = Load(context.Background(), LoadOptions{ConfigFilePath: path, WorkDir: t.TempDir()})
	if err == nil {
		t.Error("expected validation error for max_depth = 0")
	}
}

func TestLoadNuGetConfigSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "NuGet.Config"), `<?xml version="1.0" encoding="utf-8"?>
<configuration>
  <config>
    <add key="globalPackagesFolder" value="shared/packages" />
  </config>
  <packageSources>
    <add key="nuget.org" value="https://api.nuget.org/v3/index.json" protocolVersion="3" />
    <add key="team" value="\\server\share" />
  </packageSources>
</configuration>`)
	work := filepath.Join(root, "scripts")
	writeFile(t, filepath.Join(work, "nuget.config"), `<configuration>
  <packageSources>
    <add key="local" value="feed" />
  </packageSources>
  <disabledPackageSources>
    <add key="team" value="true" />
  </disabledPackageSources>
</configuration>`)

	cfg, _ := load(t, work)
	if len(cfg.Sources) != 2 {
		t.Fatalf("Sources = %+v", cfg.Sources)
	}
	if cfg.Sources[0].Name != "nuget.org" || cfg.Sources[1].Name != "local" {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if cfg.Sources[1].URL != filepath.Join(work, "feed") || cfg.Sources[1].Kind != "local" {
		t.Errorf("local source = %+v", cfg.Sources[1])
	}
	if cfg.GlobalPackagesFolder != filepath.Join(root, "shared", "packages") {
		t.Errorf("GlobalPackagesFolder = %q", cfg.GlobalPackagesFolder)
	}
}

func TestParseNuGetConfigClear(t *testing.T) {
	nc, err := ParseNuGetConfig([]byte(`<configuration>
  <packageSources>
    <add key="old" value="https://old.example.com/v3/index.json" />
    <clear />
    <add key="corp" value="https://corp.example.com/v3/index.json" />
    <add key="extra" value="https://extra.example.com/v3/index.json" />
    <remove key="extra" />
  </packageSources>
</configuration>`), "/base")
	if err != nil {
		t.Fatalf("ParseNuGetConfig failed: %v", err)
	}
	if len(nc.Sources) != 1 || nc.Sources[0].Name != "corp" {
		t.Errorf("Sources = %+v", nc.Sources)
	}

	if _, err := ParseNuGetConfig([]byte("<configuration><packageSources>"), ""); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestKindForURL(t *testing.T) {
	tests := map[string]string{
		"https://api.nuget.org/v3/index.json": "nuget",
		"HTTP://feed.local/v3":                "nuget",
		"/srv/feed":                           "local",
		"file:///srv/feed":                    "local",
		"C:\\feed":                            "local",
	}
	for in, want := range tests {
		if got := KindForURL(in); got != want {
			t.Errorf("KindForURL(%q) = %q, want %q", in, got, want)
		}
	}
}
