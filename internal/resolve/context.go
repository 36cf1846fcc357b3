package resolve

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/hishell/internal/core"
)

// Resolved records one package whose assets were materialized.
type Resolved struct {
	ID         core.Identity
	Source     string // source name, or "cache" for a cache hit
	Archive    string
	Dir        string
	References []string
}

// Skip records a package that could not be resolved. Skips never abort a
// resolution.
type Skip struct {
	Name    string
	Version string // "" when no version could be determined
	Parent  string // dependent package, "" for a top-level reference
	Err     error
}

func (s Skip) Error() string {
	id := s.Name
	if s.Version != "" {
		id += "@" + s.Version
	}
	if s.Parent != "" {
		return fmt.Sprintf("%s (required by %s): %v", id, s.Parent, s.Err)
	}
	return fmt.Sprintf("%s: %v", id, s.Err)
}

func (s Skip) Unwrap() error {
	return s.Err
}

// Context carries the state of one top-level resolution.
type Context struct {
	References []string
	Packages   []Resolved
	Skips      []Skip

	visited map[string]bool
	order   []string
}

// NewContext returns an empty resolution context.
func NewContext() *Context {
	return &Context{visited: make(map[string]bool)}
}

// Visited returns the visited package names in first-seen order.
func (c *Context) Visited() []string {
	return append([]string(nil), c.order...)
}

// HasVisited reports whether name was visited, ignoring case.
func (c *Context) HasVisited(name string) bool {
	return c.visited[strings.ToLower(name)]
}

// visit marks name as visited. It returns false if it already was.
func (c *Context) visit(name string) bool {
	key := strings.ToLower(name)
	if c.visited[key] {
		return false
	}
	c.visited[key] = true
	c.order = append(c.order, name)
	return true
}
