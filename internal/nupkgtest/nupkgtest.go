// Package nupkgtest builds in-memory package archives for tests.
package nupkgtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/git-pkgs/hishell/internal/core"
)

// Nuspec renders a minimal manifest with the given dependency groups.
func Nuspec(id, version string, groups ...core.DependencyGroup) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">` + "\n")
	b.WriteString("  <metadata>\n")
	fmt.Fprintf(&b, "    <id>%s</id>\n    <version>%s</version>\n", id, version)
	b.WriteString("    <authors>test</authors>\n    <description>test package</description>\n")
	if len(groups) > 0 {
		b.WriteString("    <dependencies>\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "      <group targetFramework=%q>\n", g.TargetFramework)
			for _, d := range g.Packages {
				fmt.Fprintf(&b, "        <dependency id=%q version=%q />\n", d.ID, d.Range)
			}
			b.WriteString("      </group>\n")
		}
		b.WriteString("    </dependencies>\n")
	}
	b.WriteString("  </metadata>\n</package>\n")
	return b.String()
}

// Archive zips files (archive path to content) in sorted order.
func Archive(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	return buf.Bytes()
}

// Package zips a manifest for id/version together with the given library files.
func Package(t testing.TB, id, version string, libs []string, groups ...core.DependencyGroup) []byte {
	t.Helper()

	files := map[string]string{
		strings.ToLower(id) + ".nuspec": Nuspec(id, version, groups...),
	}
	for _, lib := range libs {
		files[lib] = "binary:" + lib
	}
	return Archive(t, files)
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
