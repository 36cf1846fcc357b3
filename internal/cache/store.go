// Package cache stores downloaded package archives and their extracted
// assets in a flat directory, and lists or cleans its contents.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/git-pkgs/hishell/internal/core"
)

// ArchiveExt is the file extension of package archives.
const ArchiveExt = ".nupkg"

// Store maps package identities to paths in the cache root. Lookups also
// consult the shared global packages folder when one is configured.
type Store struct {
	root   string
	global string
}

// NewStore creates a store rooted at root. global may be empty.
func NewStore(root, global string) *Store {
	return &Store{root: root, global: global}
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// Global returns the global packages folder, or "" when disabled.
func (s *Store) Global() string {
	return s.global
}

// BaseName is the lower-case "name.version" used for the archive and its directory.
func BaseName(id core.Identity) string {
	return id.Key()
}

// ArchivePath returns where the archive of id is stored in the cache root.
func (s *Store) ArchivePath(id core.Identity) string {
	return filepath.Join(s.root, BaseName(id)+ArchiveExt)
}

// Dir returns the extraction directory of id.
func (s *Store) Dir(id core.Identity) string {
	return filepath.Join(s.root, BaseName(id))
}

// GlobalArchivePath returns the location of id in the global packages
// folder layout, {id}/{version}/{id}.{version}.nupkg.
func (s *Store) GlobalArchivePath(id core.Identity) string {
	if s.global == "" {
		return ""
	}
	name := strings.ToLower(id.Name)
	ver := strings.ToLower(id.Version.String())
	return filepath.Join(s.global, name, ver, name+"."+ver+ArchiveExt)
}

// Lookup returns the path of a cached archive for id, checking the cache
// root before the global packages folder.
func (s *Store) Lookup(id core.Identity) (string, bool) {
	for _, p := range []string{s.ArchivePath(id), s.GlobalArchivePath(id)} {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// Write stores the archive read from r at ArchivePath(id). The data is
// written to a temporary file and renamed into place; an archive that
// already exists is left untouched and counts as success.
func (s *Store) Write(id core.Identity, r io.Reader) (string, error) {
	dest := s.ArchivePath(id)
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		return dest, nil
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", &core.CacheWriteError{Path: s.root, Err: err}
	}

	tmp, err := os.CreateTemp(s.root, "."+BaseName(id)+".*.tmp")
	if err != nil {
		return "", &core.CacheWriteError{Path: dest, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", &core.CacheWriteError{Path: dest, Err: fmt.Errorf("writing archive: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return "", &core.CacheWriteError{Path: dest, Err: err}
	}

	if err := os.Rename(tmpName, dest); err != nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			return dest, nil
		}
		return "", &core.CacheWriteError{Path: dest, Err: err}
	}
	return dest, nil
}

// Versions lists the versions of name present in the cache root and the
// global packages folder, lowest first.
func (s *Store) Versions(name string) ([]core.Version, error) {
	prefix := strings.ToLower(name) + "."
	seen := make(map[string]core.Version)

	entries, err := os.ReadDir(s.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		base := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasSuffix(base, ArchiveExt) || !strings.HasPrefix(base, prefix) {
			continue
		}
		if v, err := core.ParseVersion(strings.TrimSuffix(base[len(prefix):], ArchiveExt)); err == nil {
			seen[v.String()] = v
		}
	}

	if s.global != "" {
		dirs, err := os.ReadDir(filepath.Join(s.global, strings.ToLower(name)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		for _, d := range dirs {
			if !d.IsDir() {
				continue
			}
			v, err := core.ParseVersion(d.Name())
			if err != nil {
				continue
			}
			if _, ok := s.Lookup(core.NewIdentity(name, v)); ok {
				seen[v.String()] = v
			}
		}
	}

	out := make([]core.Version, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}
