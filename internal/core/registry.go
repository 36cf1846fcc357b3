package core

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Source is the interface implemented by every package source (a remote
// registry or a local folder feed). Sources are tried in configured order.
type Source interface {
	// Name returns the configured name of this source (e.g., "nuget.org").
	Name() string

	// Kind returns the registered kind of this source ("nuget", "local").
	Kind() string

	// Exists reports whether the source has the given release.
	Exists(ctx context.Context, id Identity) (bool, error)

	// FetchArchive streams the package archive. The caller closes it.
	FetchArchive(ctx context.Context, id Identity) (io.ReadCloser, error)

	// FetchMetadata retrieves the release metadata, including dependency groups.
	FetchMetadata(ctx context.Context, id Identity) (*Package, error)

	// FetchReleases lists every published version of a package.
	FetchReleases(ctx context.Context, name string) ([]Release, error)
}

// Factory creates a source with the given name for a base URL or path.
type Factory func(name, baseURL string, client *Client) Source

var (
	factories = make(map[string]Factory)
	defaults  = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a source factory for kind. defaultURL is used when a
// source of that kind is configured without a URL.
func Register(kind string, defaultURL string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = factory
	defaults[kind] = defaultURL
}

// New creates a source of the given kind.
// If baseURL is empty, the default URL of the kind is used.
// If name is empty, the kind is used as the name.
func New(kind, name, baseURL string, client *Client) (Source, error) {
	mu.RLock()
	factory, ok := factories[kind]
	defaultURL := defaults[kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown source kind: %s", kind)
	}

	if baseURL == "" {
		baseURL = defaultURL
	}
	if name == "" {
		name = kind
	}

	if client == nil {
		client = DefaultClient()
	}

	return factory(name, baseURL, client), nil
}

// SupportedKinds returns all registered source kinds, sorted.
func SupportedKinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultURL returns the default URL for a source kind.
func DefaultURL(kind string) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[kind]
}
