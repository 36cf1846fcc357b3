package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/hishell/client"
	"github.com/git-pkgs/hishell/internal/core"
)

var (
	ErrUnknownFeed   = errors.New("unknown feed")
	ErrNoDownloadURL = errors.New("no download URL available")
)

// defaultFlatContainer is the nuget.org package content base.
const defaultFlatContainer = "https://api.nuget.org/v3-flatcontainer"

// Feed provides release metadata and URL construction for archive resolution.
// Remote package sources satisfy this interface.
type Feed interface {
	Name() string
	URLs() client.URLBuilder
	FetchReleases(ctx context.Context, name string) ([]core.Release, error)
}

// Resolver determines download URLs for package archives.
type Resolver struct {
	feeds map[string]Feed
}

// NewResolver creates a new URL resolver.
func NewResolver() *Resolver {
	return &Resolver{
		feeds: make(map[string]Feed),
	}
}

// RegisterFeed adds a feed for URL resolution, keyed by its name.
func (r *Resolver) RegisterFeed(feed Feed) {
	r.feeds[strings.ToLower(feed.Name())] = feed
}

// ArchiveInfo describes a downloadable package archive.
type ArchiveInfo struct {
	URL      string
	Filename string
}

// Resolve returns the download URL and filename of a package archive on the named feed.
func (r *Resolver) Resolve(ctx context.Context, feedName, name, version string) (*ArchiveInfo, error) {
	feed, ok := r.feeds[strings.ToLower(feedName)]
	if !ok {
		return r.resolveWithoutFeed(feedName, name, version)
	}

	if url := feed.URLs().Download(name, version); url != "" {
		return &ArchiveInfo{
			URL:      url,
			Filename: filenameFromURL(url),
		}, nil
	}

	return r.resolveFromMetadata(ctx, feed, name, version)
}

// resolveWithoutFeed handles the public gallery, whose archive URLs are predictable.
func (r *Resolver) resolveWithoutFeed(feedName, name, version string) (*ArchiveInfo, error) {
	switch strings.ToLower(feedName) {
	case "nuget", "nuget.org":
		id := strings.ToLower(name)
		ver := strings.ToLower(version)
		return &ArchiveInfo{
			URL:      fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", defaultFlatContainer, id, ver, id, ver),
			Filename: fmt.Sprintf("%s.%s.nupkg", id, ver),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, feedName)
	}
}

// resolveFromMetadata looks up the release's advertised archive URL.
func (r *Resolver) resolveFromMetadata(ctx context.Context, feed Feed, name, version string) (*ArchiveInfo, error) {
	releases, err := feed.FetchReleases(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching releases: %w", err)
	}

	want, err := core.ParseVersion(version)
	if err != nil {
		return nil, err
	}

	for _, rel := range releases {
		v, err := core.ParseVersion(rel.Number)
		if err != nil || !v.Equal(want) {
			continue
		}
		if rel.DownloadURL == "" {
			return nil, ErrNoDownloadURL
		}
		return &ArchiveInfo{
			URL:      rel.DownloadURL,
			Filename: filenameFromURL(rel.DownloadURL),
		}, nil
	}

	return nil, ErrNotFound
}

func filenameFromURL(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
