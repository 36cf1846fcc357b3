// Package resolve walks the dependency graph of package references, fetching
// archives into the cache and collecting the binaries a script should load.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/hishell/internal/assets"
	"github.com/git-pkgs/hishell/internal/cache"
	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/framework"
	"github.com/git-pkgs/hishell/internal/nuspec"
	"github.com/git-pkgs/hishell/internal/scan"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxDepth     = 64

	cacheSource = "cache"
)

// Resolver resolves packages against an ordered list of sources.
type Resolver struct {
	sources      []core.Source
	store        *cache.Store
	env          framework.Env
	logger       *log.Logger
	fetchTimeout time.Duration
	maxDepth     int
	strictGroups bool

	downloads singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for skips and warnings.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithFetchTimeout bounds the work done against a single source for one package.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithMaxDepth limits how deep dependency chains are followed.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithStrictGroups makes packages without a compatible dependency group a
// skip instead of following their first group.
func WithStrictGroups(strict bool) Option {
	return func(r *Resolver) {
		r.strictGroups = strict
	}
}

// New creates a resolver. Sources are tried in the given order.
func New(sources []core.Source, store *cache.Store, env framework.Env, opts ...Option) *Resolver {
	r := &Resolver{
		sources:      sources,
		store:        store,
		env:          env,
		logger:       log.NewWithOptions(os.Stderr, log.Options{Prefix: "resolve"}),
		fetchTimeout: DefaultFetchTimeout,
		maxDepth:     DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Env returns the environment assets are selected for.
func (r *Resolver) Env() framework.Env {
	return r.env
}

// node is a pending package on the worklist. version is nil until the
// package is popped and its range is pinned.
type node struct {
	name    string
	rng     core.VersionRange
	version *core.Version
	parent  string
	depth   int
}

// Resolve resolves id and its dependencies into rc. Per-package failures
// are recorded as skips; only cancellation of ctx is returned.
func (r *Resolver) Resolve(ctx context.Context, id core.Identity, rc *Context) error {
	v := id.Version
	return r.walk(ctx, node{name: id.Name, version: &v}, rc)
}

// walk runs a pre-order depth-first traversal from root, in the same order
// a recursive walk would visit packages.
func (r *Resolver) walk(ctx context.Context, root node, rc *Context) error {
	stack := []node{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.depth > r.maxDepth {
			r.skip(rc, n, fmt.Errorf("%w: more than %d levels", core.ErrTooDeep, r.maxDepth))
			continue
		}
		if !rc.visit(n.name) {
			continue
		}

		if n.version == nil {
			v, err := r.pickVersion(ctx, n.name, n.rng)
			if err != nil {
				r.skip(rc, n, err)
				continue
			}
			n.version = v
		}

		children, err := r.resolveNode(ctx, n, rc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.skip(rc, n, err)
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

func (r *Resolver) skip(rc *Context, n node, err error) {
	s := Skip{Name: n.name, Parent: n.parent, Err: err}
	if n.version != nil {
		s.Version = n.version.String()
	}
	rc.Skips = append(rc.Skips, s)

	if errors.Is(err, core.ErrCacheWrite) || errors.Is(err, core.ErrExtraction) {
		r.logger.Warn("skipping package", "package", n.name, "version", s.Version, "parent", n.parent, "err", err)
		return
	}
	r.logger.Info("skipping package", "package", n.name, "version", s.Version, "parent", n.parent, "err", err)
}

// resolveNode materializes one package and returns its dependencies.
func (r *Resolver) resolveNode(ctx context.Context, n node, rc *Context) ([]node, error) {
	id := core.NewIdentity(n.name, *n.version)

	archive, source, err := r.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	var groups []core.DependencyGroup
	manifest, err := nuspec.ReadFile(archive)
	switch {
	case err == nil:
		groups = manifest.Groups
	case errors.Is(err, nuspec.ErrNoManifest):
		r.logger.Debug("archive has no manifest", "package", id)
	default:
		return nil, err
	}

	group, ok, err := framework.SelectGroup(r.env, groups, r.strictGroups)
	if err != nil {
		return nil, &core.IncompatibleError{ID: id, Framework: r.env.Framework.String(), Targets: framework.Targets(groups)}
	}

	sel, err := assets.Select(archive, r.store.Dir(id), r.env)
	if err != nil {
		return nil, err
	}
	refs := sel.References()
	rc.References = append(rc.References, refs...)
	rc.Packages = append(rc.Packages, Resolved{
		ID:         id,
		Source:     source,
		Archive:    archive,
		Dir:        sel.Dir,
		References: refs,
	})
	r.logger.Debug("resolved package", "package", id, "source", source, "references", len(refs))

	if !ok {
		return nil, nil
	}
	if g := group.TargetFramework; g != "" {
		r.logger.Debug("following dependency group", "package", id, "group", g)
	}

	children := make([]node, 0, len(group.Packages))
	for _, dep := range group.Packages {
		rng, err := dep.VersionRange()
		if err != nil {
			r.skip(rc, node{name: dep.ID, parent: id.String()}, fmt.Errorf("invalid version range %q: %w", dep.Range, err))
			continue
		}
		children = append(children, node{name: dep.ID, rng: rng, parent: id.String(), depth: n.depth + 1})
	}
	return children, nil
}

// locate returns the cached archive of id, downloading it from the first
// source that has it.
func (r *Resolver) locate(ctx context.Context, id core.Identity) (string, string, error) {
	if p, ok := r.store.Lookup(id); ok {
		return p, cacheSource, nil
	}

	for _, src := range r.sources {
		p, err := r.fetchFrom(ctx, src, id)
		if err == nil {
			return p, src.Name(), nil
		}
		if errors.Is(err, core.ErrIncompatibleFramework) || errors.Is(err, core.ErrCacheWrite) {
			return "", "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		r.logger.Debug("source failed", "source", src.Name(), "package", id, "err", err)
	}
	return "", "", &core.NotFoundError{Name: id.Name, Version: id.Version.String()}
}

func (r *Resolver) fetchFrom(ctx context.Context, src core.Source, id core.Identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	if pkg, err := src.FetchMetadata(ctx, id); err == nil && !framework.PackageCompatible(r.env, pkg.DependencyGroups) {
		return "", &core.IncompatibleError{
			ID:        id,
			Framework: r.env.Framework.String(),
			Targets:   framework.Targets(pkg.DependencyGroups),
		}
	}

	ok, err := src.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &core.NotFoundError{Source: src.Name(), Name: id.Name, Version: id.Version.String()}
	}

	p, err, _ := r.downloads.Do(id.Key(), func() (any, error) {
		body, err := src.FetchArchive(ctx, id)
		if err != nil {
			return "", err
		}
		defer func() { _ = body.Close() }()
		return r.store.Write(id, body)
	})
	if err != nil {
		return "", err
	}
	return p.(string), nil
}

// pickVersion pins a version for a range: its lower bound, else the lowest
// version available in the cache or from a source, else its upper bound.
func (r *Resolver) pickVersion(ctx context.Context, name string, rng core.VersionRange) (*core.Version, error) {
	if v := rng.MinVersion(); v != nil {
		return v, nil
	}

	if cached, err := r.store.Versions(name); err == nil {
		for _, v := range cached {
			if rng.Satisfies(v) {
				return &v, nil
			}
		}
	}

	for _, src := range r.sources {
		v, err := r.lowestFrom(ctx, src, name, rng)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Debug("no matching version", "source", src.Name(), "package", name, "range", rng, "err", err)
	}

	if v := rng.MaxVersion(); v != nil {
		return v, nil
	}
	return nil, &core.NotFoundError{Name: name, Version: rng.String()}
}

func (r *Resolver) lowestFrom(ctx context.Context, src core.Source, name string, rng core.VersionRange) (*core.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	return core.FetchLowestMatching(ctx, src, name, rng)
}

// Result is the outcome of resolving the references of one script.
type Result struct {
	References []string
	Packages   []Resolved
	Skips      []Skip
	Visited    []string
}

// ResolveReferences resolves a script's references in a fresh context.
// Package references come first in the result, followed by binary
// references that exist inside scriptDir. Missing or escaping binary paths
// are dropped with a warning.
func (r *Resolver) ResolveReferences(ctx context.Context, refs []scan.Reference, scriptDir string) (*Result, error) {
	rc := NewContext()

	for _, ref := range refs {
		if ref.Kind != scan.Package {
			continue
		}
		if err := r.walk(ctx, node{name: ref.Name, rng: ref.Range}, rc); err != nil {
			return nil, err
		}
	}

	for _, ref := range refs {
		if ref.Kind != scan.Binary {
			continue
		}
		p, err := localBinary(scriptDir, ref.Path)
		if err != nil {
			r.logger.Warn("dropping binary reference", "path", ref.Path, "line", ref.Line, "err", err)
			continue
		}
		rc.References = append(rc.References, p)
	}

	return &Result{
		References: rc.References,
		Packages:   rc.Packages,
		Skips:      rc.Skips,
		Visited:    rc.Visited(),
	}, nil
}

// localBinary resolves a binary reference against scriptDir.
func localBinary(scriptDir, ref string) (string, error) {
	base, err := filepath.Abs(scriptDir)
	if err != nil {
		return "", err
	}
	p := filepath.FromSlash(ref)
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", ref, base)
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", ref)
	}
	return p, nil
}
