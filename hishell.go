// Package hishell resolves the NuGet packages a script references and
// selects the binaries the script should load on the current platform.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/hishell"
//		_ "github.com/git-pkgs/hishell/all"
//	)
//
//	cfg, _, err := hishell.LoadConfig(ctx, hishell.LoadOptions{WorkDir: scriptDir})
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine, err := hishell.NewEngine(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	text, res, err := engine.ResolveScript(ctx, script, scriptDir)
//	if err != nil {
//		log.Fatal(err) // malformed reference directive
//	}
//	fmt.Println(res.References)
//
// Source kinds register themselves on import; the all subpackage imports
// every kind.
package hishell

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/hishell/client"
	"github.com/git-pkgs/hishell/internal/cache"
	"github.com/git-pkgs/hishell/internal/config"
	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/framework"
	"github.com/git-pkgs/hishell/internal/resolve"
	"github.com/git-pkgs/hishell/internal/scan"
)

// Re-export types from internal packages
type (
	// Source is the interface implemented by every package source.
	Source = core.Source

	// Identity names one package release.
	Identity = core.Identity

	// Version is a NuGet package version.
	Version = core.Version

	// VersionRange is a NuGet version range.
	VersionRange = core.VersionRange

	// Package is the metadata of one release.
	Package = core.Package

	// Reference is a directive found in a script.
	Reference = scan.Reference

	// Result is the outcome of resolving a script's references.
	Result = resolve.Result

	// Skip records a package that could not be resolved.
	Skip = resolve.Skip

	// Env is the environment assets are selected for.
	Env = framework.Env

	// Config is the engine configuration.
	Config = config.Config

	// LoadOptions controls where configuration is read from.
	LoadOptions = config.LoadOptions

	// CacheEntry is one cached package.
	CacheEntry = cache.Entry

	// CleanResult counts what a cache clean removed.
	CleanResult = cache.Result
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for feed APIs.
	Client = client.Client

	// Option configures a Client.
	Option = client.Option

	// URLBuilder constructs the URLs of a source.
	URLBuilder = client.URLBuilder
)

// URLs returns the URL builder of src, or nil when it has none.
func URLs(src Source) URLBuilder {
	if u, ok := src.(interface{ URLs() URLBuilder }); ok {
		return u.URLs()
	}
	return nil
}

// Re-export errors
var (
	ErrNotFound                  = core.ErrNotFound
	ErrInvalidReferenceDirective = core.ErrInvalidReferenceDirective
	ErrIncompatibleFramework     = core.ErrIncompatibleFramework
	ErrCacheWrite                = core.ErrCacheWrite
	ErrExtraction                = core.ErrExtraction
	ErrTooDeep                   = core.ErrTooDeep
)

// Error types
type (
	NotFoundError     = core.NotFoundError
	DirectiveError    = core.DirectiveError
	IncompatibleError = core.IncompatibleError
	HTTPError         = client.HTTPError
)

// ParseVersion parses a NuGet version string.
func ParseVersion(s string) (Version, error) {
	return core.ParseVersion(s)
}

// ParseVersionRange parses a NuGet version range.
func ParseVersionRange(s string) (VersionRange, error) {
	return core.ParseVersionRange(s)
}

// Scan strips reference directives from a script.
func Scan(text string) (string, []Reference, error) {
	return scan.Scan(text)
}

// LoadConfig resolves configuration from defaults, config files, the
// environment and nuget.config.
func LoadConfig(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return config.Load(ctx, opts)
}

// New creates a package source of the given kind.
// If url is empty, the default URL of the kind is used.
// If c is nil, DefaultClient() is used.
func New(kind, name, url string, c *Client) (Source, error) {
	return core.New(kind, name, url, c)
}

// SupportedKinds returns the registered source kinds.
func SupportedKinds() []string {
	return core.SupportedKinds()
}

// DefaultURL returns the default URL of a source kind.
func DefaultURL(kind string) string {
	return core.DefaultURL(kind)
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 3 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// Engine wires sources, the cache and the resolver from a Config.
type Engine struct {
	cfg      *Config
	sources  []Source
	store    *cache.Store
	resolver *resolve.Resolver
	logger   *log.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger  *log.Logger
	client  *Client
	sources []Source
}

// WithLogger sets the logger shared by the engine's components.
func WithLogger(l *log.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// WithClient sets the HTTP client used by remote sources.
func WithClient(c *Client) EngineOption {
	return func(o *engineOptions) {
		o.client = c
	}
}

// WithSources replaces the configured sources.
func WithSources(sources ...Source) EngineOption {
	return func(o *engineOptions) {
		o.sources = sources
	}
}

// NewEngine creates an engine. The source kinds named in cfg must be
// registered, for example by importing the all subpackage.
func NewEngine(cfg *Config, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "hishell", Level: cfg.Level()})
	}
	if o.client == nil {
		o.client = client.NewClient(client.WithTimeout(cfg.FetchTimeout)).WithUserAgent(cfg.UserAgent)
	}

	sources := o.sources
	if sources == nil {
		for _, sc := range cfg.Sources {
			src, err := core.New(sc.Kind, sc.Name, sc.URL, o.client)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", sc.Name, err)
			}
			sources = append(sources, src)
		}
	}

	store := cache.NewStore(cfg.CacheDir, cfg.GlobalPackagesFolder)
	r := resolve.New(sources, store, cfg.Env(),
		resolve.WithLogger(o.logger.WithPrefix("resolve")),
		resolve.WithFetchTimeout(cfg.FetchTimeout),
		resolve.WithMaxDepth(cfg.MaxDepth),
		resolve.WithStrictGroups(cfg.StrictGroups),
	)

	return &Engine{cfg: cfg, sources: sources, store: store, resolver: r, logger: o.logger}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Sources returns the sources in priority order.
func (e *Engine) Sources() []Source {
	return e.sources
}

// Env returns the environment assets are selected for.
func (e *Engine) Env() Env {
	return e.resolver.Env()
}

// Resolver returns the underlying resolver.
func (e *Engine) Resolver() *resolve.Resolver {
	return e.resolver
}

// ResolveScript strips the directives of text and resolves them. It fails
// only on malformed directives and cancellation.
func (e *Engine) ResolveScript(ctx context.Context, text, scriptDir string) (string, *Result, error) {
	stripped, refs, err := scan.Scan(text)
	if err != nil {
		return "", nil, err
	}
	res, err := e.resolver.ResolveReferences(ctx, refs, scriptDir)
	if err != nil {
		return "", nil, err
	}
	return stripped, res, nil
}

// ResolvePackage resolves one package reference, such as "Serilog@3.1.0".
// The version may be a range; its lowest matching version is used.
func (e *Engine) ResolvePackage(ctx context.Context, name, versionRange string) (*Result, error) {
	rng, err := core.ParseVersionRange(versionRange)
	if err != nil {
		return nil, err
	}
	ref := scan.Reference{Kind: scan.Package, Name: name, Range: rng}
	return e.resolver.ResolveReferences(ctx, []scan.Reference{ref}, ".")
}

// Cache returns a manager for the engine's cache root.
func (e *Engine) Cache() *cache.Manager {
	return cache.NewManager(e.cfg.CacheDir, cache.WithLogger(e.logger.WithPrefix("cache")))
}
