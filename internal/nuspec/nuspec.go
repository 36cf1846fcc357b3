// Package nuspec reads the package manifest embedded in a .nupkg archive.
package nuspec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/git-pkgs/hishell/internal/core"
)

// ErrNoManifest is returned when an archive has no .nuspec at its root.
var ErrNoManifest = errors.New("archive has no nuspec manifest")

// Manifest is the subset of a nuspec needed for resolution.
type Manifest struct {
	ID          string
	Version     string
	Authors     string
	Description string
	ProjectURL  string
	License     string
	Groups      []core.DependencyGroup
}

// Package converts the manifest into source metadata.
func (m *Manifest) Package() *core.Package {
	return &core.Package{
		Name:             m.ID,
		Version:          m.Version,
		Description:      m.Description,
		Authors:          m.Authors,
		Homepage:         m.ProjectURL,
		Licenses:         m.License,
		Listed:           true,
		DependencyGroups: m.Groups,
	}
}

type packageXML struct {
	Metadata metadataXML `xml:"metadata"`
}

type metadataXML struct {
	ID           string          `xml:"id"`
	Version      string          `xml:"version"`
	Authors      string          `xml:"authors"`
	Description  string          `xml:"description"`
	ProjectURL   string          `xml:"projectUrl"`
	License      string          `xml:"license"`
	Dependencies dependenciesXML `xml:"dependencies"`
}

type dependenciesXML struct {
	Groups       []groupXML      `xml:"group"`
	Dependencies []dependencyXML `xml:"dependency"`
}

type groupXML struct {
	TargetFramework string          `xml:"targetFramework,attr"`
	Dependencies    []dependencyXML `xml:"dependency"`
}

type dependencyXML struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// Parse decodes a nuspec document. Element namespaces are ignored, so every
// schema revision decodes the same way.
func Parse(data []byte) (*Manifest, error) {
	var doc packageXML
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing nuspec: %w", err)
	}

	md := doc.Metadata
	m := &Manifest{
		ID:          strings.TrimSpace(md.ID),
		Version:     strings.TrimSpace(md.Version),
		Authors:     strings.TrimSpace(md.Authors),
		Description: strings.TrimSpace(md.Description),
		ProjectURL:  strings.TrimSpace(md.ProjectURL),
		License:     strings.TrimSpace(md.License),
	}

	for _, g := range md.Dependencies.Groups {
		m.Groups = append(m.Groups, core.DependencyGroup{
			TargetFramework: strings.TrimSpace(g.TargetFramework),
			Packages:        convert(g.Dependencies),
		})
	}
	if len(md.Dependencies.Dependencies) > 0 {
		m.Groups = append(m.Groups, core.DependencyGroup{
			Packages: convert(md.Dependencies.Dependencies),
		})
	}

	return m, nil
}

func convert(deps []dependencyXML) []core.Dependency {
	out := make([]core.Dependency, 0, len(deps))
	for _, d := range deps {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		out = append(out, core.Dependency{ID: id, Range: strings.TrimSpace(d.Version)})
	}
	return out
}

// Read finds and parses the root-level .nuspec inside a zip archive.
func Read(r io.ReaderAt, size int64) (*Manifest, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return fromZip(zr)
}

// ReadFile parses the manifest of the archive at path.
func ReadFile(archive string) (*Manifest, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, &core.ExtractionError{Archive: archive, Err: err}
	}
	defer func() { _ = zr.Close() }()

	m, err := fromZip(&zr.Reader)
	if err != nil {
		return nil, &core.ExtractionError{Archive: archive, Err: err}
	}
	return m, nil
}

func fromZip(zr *zip.Reader) (*Manifest, error) {
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if strings.Contains(name, "/") || !strings.EqualFold(path.Ext(name), ".nuspec") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		return Parse(data)
	}
	return nil, ErrNoManifest
}
