package nuspec

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/nupkgtest"
)

func TestParse(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2012/06/nuspec.xsd">
  <metadata>
    <id>Serilog.Sinks.Console</id>
    <version>5.0.1</version>
    <authors>Serilog Contributors</authors>
    <description>A Serilog sink that writes log events to the console.</description>
    <projectUrl>https://github.com/serilog/serilog-sinks-console</projectUrl>
    <license type="expression">Apache-2.0</license>
    <dependencies>
      <group targetFramework=".NETFramework4.6.2">
        <dependency id="Serilog" version="3.1.1" exclude="Build,Analyzers" />
      </group>
      <group targetFramework="net8.0">
        <dependency id="Serilog" version="[3.1.1, )" />
      </group>
      <group targetFramework=".NETStandard2.0" />
    </dependencies>
  </metadata>
</package>`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.ID != "Serilog.Sinks.Console" {
		t.Errorf("ID = %q", m.ID)
	}
	if m.Version != "5.0.1" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.License != "Apache-2.0" {
		t.Errorf("License = %q", m.License)
	}
	if len(m.Groups) != 3 {
		t.Fatalf("len(Groups) = %d, want 3", len(m.Groups))
	}
	if m.Groups[0].TargetFramework != ".NETFramework4.6.2" {
		t.Errorf("Groups[0].TargetFramework = %q", m.Groups[0].TargetFramework)
	}
	dep := m.Groups[1].Packages[0]
	if dep.ID != "Serilog" || dep.Range != "[3.1.1, )" {
		t.Errorf("Groups[1].Packages[0] = %+v", dep)
	}
	if len(m.Groups[2].Packages) != 0 {
		t.Errorf("empty group has %d packages", len(m.Groups[2].Packages))
	}

	pkg := m.Package()
	if pkg.Name != m.ID || !pkg.Listed || len(pkg.DependencyGroups) != 3 {
		t.Errorf("Package() = %+v", pkg)
	}
}

func TestParseUngroupedDependencies(t *testing.T) {
	data := []byte(`<package><metadata>
  <id>Legacy</id><version>1.0.0</version>
  <dependencies>
    <dependency id="Foo" version="1.0" />
    <dependency id="" version="2.0" />
  </dependencies>
</metadata></package>`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(m.Groups))
	}
	g := m.Groups[0]
	if g.TargetFramework != "" || len(g.Packages) != 1 || g.Packages[0].ID != "Foo" {
		t.Errorf("group = %+v", g)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("<package><metadata>")); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestRead(t *testing.T) {
	data := nupkgtest.Package(t, "Foo", "1.2.0", []string{"lib/net8.0/Foo.dll"},
		core.DependencyGroup{TargetFramework: "net8.0", Packages: []core.Dependency{{ID: "Bar", Range: "2.0.0"}}},
	)

	m, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if m.ID != "Foo" || m.Version != "1.2.0" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Groups) != 1 || m.Groups[0].Packages[0].ID != "Bar" {
		t.Errorf("Groups = %+v", m.Groups)
	}
}

func TestReadNoManifest(t *testing.T) {
	data := nupkgtest.Archive(t, map[string]string{
		"lib/net8.0/Foo.dll":   "x",
		"nested/other.nuspec": "<package/>",
	})
	_, err := Read(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrNoManifest) {
		t.Errorf("Read = %v, want ErrNoManifest", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := nupkgtest.WriteFile(t, filepath.Join(dir, "foo.1.0.0.nupkg"), nupkgtest.Package(t, "Foo", "1.0.0", nil))

	m, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if m.ID != "Foo" {
		t.Errorf("ID = %q", m.ID)
	}

	corrupt := nupkgtest.WriteFile(t, filepath.Join(dir, "bad.1.0.0.nupkg"), []byte("not a zip"))
	_, err = ReadFile(corrupt)
	var extractErr *core.ExtractionError
	if !errors.As(err, &extractErr) || !errors.Is(err, core.ErrExtraction) {
		t.Errorf("ReadFile(corrupt) = %v, want ExtractionError", err)
	}
}
