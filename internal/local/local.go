// Package local provides a package source for folder feeds: a directory of
// .nupkg files, either flat or in the {id}/{version}/ layout.
package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/nuspec"
)

const (
	kind = "local"

	archiveExt = ".nupkg"
)

func init() {
	core.Register(kind, "", func(name, baseURL string, _ *core.Client) core.Source {
		return New(name, baseURL)
	})
}

// Source reads packages from a directory on disk.
type Source struct {
	name string
	dir  string
	urls *core.BaseURLs
}

// New creates a folder source. A "file://" prefix on dir is removed.
func New(name, dir string) *Source {
	if name == "" {
		name = kind
	}
	dir = filepath.FromSlash(strings.TrimPrefix(dir, "file://"))
	s := &Source{name: name, dir: dir}
	s.urls = &core.BaseURLs{
		DownloadFn: func(name, version string) string {
			v, err := core.ParseVersion(version)
			if err != nil {
				return ""
			}
			p, _ := s.find(core.NewIdentity(name, v))
			return p
		},
	}
	return s
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Kind() string {
	return kind
}

func (s *Source) URLs() core.URLBuilder {
	return s.urls
}

// Dir returns the feed directory.
func (s *Source) Dir() string {
	return s.dir
}

// archiveVersion returns the version encoded in an archive file name for
// the lower-case package prefix "name.".
func archiveVersion(file, prefix string) (core.Version, bool) {
	lower := strings.ToLower(file)
	if !strings.HasSuffix(lower, archiveExt) || !strings.HasPrefix(lower, prefix) {
		return core.Version{}, false
	}
	v, err := core.ParseVersion(strings.TrimSuffix(lower[len(prefix):], archiveExt))
	if err != nil {
		return core.Version{}, false
	}
	return v, true
}

// matchDir returns the entry of dir whose name equals name ignoring case.
func matchDir(dir, name string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// find locates the archive of id, trying the flat layout first.
func (s *Source) find(id core.Identity) (string, bool) {
	prefix := strings.ToLower(id.Name) + "."

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if v, ok := archiveVersion(e.Name(), prefix); ok && v.Equal(id.Version) {
			return filepath.Join(s.dir, e.Name()), true
		}
	}

	pkgDir, ok := matchDir(s.dir, id.Name)
	if !ok {
		return "", false
	}
	versions, err := os.ReadDir(pkgDir)
	if err != nil {
		return "", false
	}
	for _, vd := range versions {
		v, err := core.ParseVersion(vd.Name())
		if !vd.IsDir() || err != nil || !v.Equal(id.Version) {
			continue
		}
		files, _ := os.ReadDir(filepath.Join(pkgDir, vd.Name()))
		for _, f := range files {
			if fv, ok := archiveVersion(f.Name(), prefix); ok && fv.Equal(id.Version) {
				return filepath.Join(pkgDir, vd.Name(), f.Name()), true
			}
		}
	}
	return "", false
}

func (s *Source) Exists(_ context.Context, id core.Identity) (bool, error) {
	_, ok := s.find(id)
	return ok, nil
}

func (s *Source) FetchArchive(_ context.Context, id core.Identity) (io.ReadCloser, error) {
	p, ok := s.find(id)
	if !ok {
		return nil, &core.NotFoundError{Source: s.name, Name: id.Name, Version: id.Version.String()}
	}
	return os.Open(p)
}

// FetchMetadata reads the manifest inside the archive.
func (s *Source) FetchMetadata(_ context.Context, id core.Identity) (*core.Package, error) {
	p, ok := s.find(id)
	if !ok {
		return nil, &core.NotFoundError{Source: s.name, Name: id.Name, Version: id.Version.String()}
	}
	m, err := nuspec.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return m.Package(), nil
}

// FetchReleases lists the versions of name present in the folder.
func (s *Source) FetchReleases(_ context.Context, name string) ([]core.Release, error) {
	prefix := strings.ToLower(name) + "."
	seen := make(map[string]bool)
	var releases []core.Release

	add := func(v core.Version, path string) {
		key := v.String()
		if seen[key] {
			return
		}
		seen[key] = true
		releases = append(releases, core.Release{Number: key, DownloadURL: path})
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &core.NotFoundError{Source: s.name, Name: name}
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if v, ok := archiveVersion(e.Name(), prefix); ok {
			add(v, filepath.Join(s.dir, e.Name()))
		}
	}

	if pkgDir, ok := matchDir(s.dir, name); ok {
		versions, _ := os.ReadDir(pkgDir)
		for _, vd := range versions {
			if !vd.IsDir() {
				continue
			}
			v, err := core.ParseVersion(vd.Name())
			if err != nil {
				continue
			}
			if p, ok := s.find(core.NewIdentity(name, v)); ok {
				add(v, p)
			}
		}
	}

	if len(releases) == 0 {
		return nil, &core.NotFoundError{Source: s.name, Name: name}
	}
	return releases, nil
}
