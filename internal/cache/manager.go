package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/hishell/internal/core"
)

// Entry groups the top-level cache items that share a base name.
type Entry struct {
	Name  string   // lower-case "name.version"
	Files []string // archives and loose binaries
	Dir   string   // extraction directory, "" when absent
}

// Result counts what a Clean removed.
type Result struct {
	DeletedFiles int
	DeletedDirs  int
}

// Manager lists and cleans a cache root.
type Manager struct {
	root   string
	logger *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger deletions are reported to.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager for the cache at root.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root:   root,
		logger: log.NewWithOptions(io.Discard, log.Options{Prefix: "cache"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the managed directory.
func (m *Manager) Root() string {
	return m.root
}

// baseName strips the archive or binary extension and lower-cases name.
func baseName(name string, isDir bool) string {
	lower := strings.ToLower(name)
	if isDir {
		return lower
	}
	for _, ext := range []string{ArchiveExt, ".dll"} {
		if strings.HasSuffix(lower, ext) {
			return strings.TrimSuffix(lower, ext)
		}
	}
	return lower
}

func transient(name string) bool {
	return strings.HasPrefix(name, ".") || strings.Contains(name, ".tmp-")
}

// List returns the cached packages sorted by name. Temporary items left by
// interrupted writes are not listed. A missing root yields no entries.
func (m *Manager) List() ([]Entry, error) {
	items, err := os.ReadDir(m.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}

	byName := make(map[string]*Entry)
	for _, item := range items {
		if transient(item.Name()) {
			continue
		}
		name := baseName(item.Name(), item.IsDir())
		e, ok := byName[name]
		if !ok {
			e = &Entry{Name: name}
			byName[name] = e
		}
		full := filepath.Join(m.root, item.Name())
		if item.IsDir() {
			e.Dir = full
		} else {
			e.Files = append(e.Files, full)
		}
	}

	out := make([]Entry, 0, len(byName))
	for _, e := range byName {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IsAll reports whether filter selects the whole cache.
func IsAll(filter string) bool {
	f := strings.TrimSpace(filter)
	return f == "" || f == "*" || strings.EqualFold(f, "all")
}

// Matches reports whether a top-level cache item is selected by filter.
// A filter is a case-insensitive glob or exact name compared against the
// item name without its extension; a bare package name also selects every
// cached version of that package.
func Matches(filter, name string, isDir bool) bool {
	if IsAll(filter) {
		return true
	}
	f := strings.ToLower(strings.TrimSpace(filter))
	base := baseName(name, isDir)

	if base == f || strings.ToLower(name) == f {
		return true
	}
	if ok, err := path.Match(f, base); err == nil && ok {
		return true
	}
	if rest, ok := strings.CutPrefix(base, f+"."); ok {
		if _, err := core.ParseVersion(rest); err == nil {
			return true
		}
	}
	return false
}

// Clean deletes the top-level items selected by filter. It stops at the
// first failure and returns the counts reached so far with the error. The
// root itself is never removed and a missing root is not an error.
func (m *Manager) Clean(filter string) (Result, error) {
	var res Result

	items, err := os.ReadDir(m.root)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("listing cache: %w", err)
	}

	for _, item := range items {
		if !Matches(filter, item.Name(), item.IsDir()) {
			continue
		}
		full := filepath.Join(m.root, item.Name())
		if item.IsDir() {
			if err := os.RemoveAll(full); err != nil {
				return res, fmt.Errorf("removing %s: %w", full, err)
			}
			res.DeletedDirs++
		} else {
			if err := os.Remove(full); err != nil {
				return res, fmt.Errorf("removing %s: %w", full, err)
			}
			res.DeletedFiles++
		}
		m.logger.Info("deleted", "path", full)
	}
	return res, nil
}
