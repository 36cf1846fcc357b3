package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/nupkgtest"
)

// setupWorkDir creates a script directory with a local feed and a config
// file pointing at it.
func setupWorkDir(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := t.TempDir()
	nupkgtest.WriteFile(t, filepath.Join(dir, "feed", "foo.1.0.0.nupkg"),
		nupkgtest.Package(t, "Foo", "1.0.0", []string{"lib/netstandard2.0/Foo.dll"},
			core.DependencyGroup{TargetFramework: "netstandard2.0", Packages: []core.Dependency{{ID: "Gone", Range: "2.0.0"}}}))

	config := `global_packages_folder: ""
sources:
  - name: feed
    url: ./feed
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hishell.yaml"), []byte(config), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.csx"), []byte("#r \"nuget: Foo, 1.0.0\"\nreturn 1;\n"), 0o600))
	return dir
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunResolve(t *testing.T) {
	dir := setupWorkDir(t)

	code, stdout, stderr := execute("resolve", filepath.Join(dir, "greet.csx"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, filepath.Join("foo.1.0.0", "lib", "netstandard2.0", "Foo.dll"))
	assert.Contains(t, stderr, "skipped Gone@2.0.0 (required by Foo@1.0.0)")

	code, stdout, _ = execute("resolve", "--script", filepath.Join(dir, "greet.csx"))
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "return 1;")
	assert.NotContains(t, stdout, "#r")
}

func TestRunResolveErrors(t *testing.T) {
	dir := setupWorkDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csx"), []byte("#r \"nuget: Foo\"\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"missing script", []string{"resolve", filepath.Join(dir, "absent.csx")}},
		{"malformed directive", []string{"resolve", filepath.Join(dir, "bad.csx")}},
		{"no arguments", []string{"resolve"}},
		{"missing config file", []string{"resolve", "--config", filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "greet.csx")}},
		{"unknown command", []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := execute(tt.args...)
			assert.Equal(t, 1, code)
		})
	}
}

func TestRunNuGetListAndRemove(t *testing.T) {
	dir := setupWorkDir(t)

	code, stdout, _ := execute("nuget", "ls", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Equal(t, "no cached packages\n", stdout)

	code, _, stderr := execute("resolve", filepath.Join(dir, "greet.csx"))
	require.Equal(t, 0, code, stderr)

	code, stdout, _ = execute("nuget", "ls", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "foo.1.0.0\n")
	assert.Contains(t, stdout, "foo.1.0.0.nupkg")

	code, stdout, _ = execute("nuget", "rm", "bar", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Equal(t, "deleted 0 files and 0 directories\n", stdout)

	code, stdout, _ = execute("nuget", "del", "all", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Equal(t, "deleted 1 files and 1 directories\n", stdout)

	items, err := os.ReadDir(filepath.Join(dir, "nuget_packages"))
	require.NoError(t, err)
	assert.Empty(t, items)

	code, _, _ = execute("nuget", "rm", "--dir", dir)
	assert.Equal(t, 1, code)
}

func TestRunGlobalFlags(t *testing.T) {
	dir := setupWorkDir(t)

	code, stdout, stderr := execute("--verbose", "--dir", dir, "nuget", "ls")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "no cached packages\n", stdout)
	assert.Contains(t, stderr, "loaded config")

	code, stdout, _ = execute("-v")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "hishell version")
}
