// Package nuget provides a package source for NuGet v3 feeds such as nuget.org.
package nuget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/git-pkgs/hishell/fetch"
	"github.com/git-pkgs/hishell/internal/core"
)

const (
	DefaultURL = "https://api.nuget.org/v3"
	kind       = "nuget"
)

func init() {
	core.Register(kind, DefaultURL, func(name, baseURL string, client *core.Client) core.Source {
		return New(name, baseURL, client)
	})
}

// Source reads package metadata from the registration API and archives
// from the flat container of a NuGet v3 feed.
type Source struct {
	name     string
	baseURL  string
	client   *core.Client
	fetcher  fetch.Downloader
	resolver *fetch.Resolver
	urls     *URLs
}

// Option configures a Source.
type Option func(*Source)

// WithFetcher sets the downloader used for archives and existence checks.
func WithFetcher(d fetch.Downloader) Option {
	return func(s *Source) {
		s.fetcher = d
	}
}

// New creates a source for the feed at baseURL. A trailing "/index.json" is
// ignored, so service index URLs from nuget.config work as-is.
func New(name, baseURL string, client *core.Client, opts ...Option) *Source {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if name == "" {
		name = kind
	}
	if client == nil {
		client = core.DefaultClient()
	}
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/index.json")

	s := &Source{
		name:    name,
		baseURL: base,
		client:  client,
		urls:    newURLs(base),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithUserAgent(client.UserAgent())))
	}
	s.resolver = fetch.NewResolver()
	s.resolver.RegisterFeed(s)
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

type registrationResponse struct {
	Count int                `json:"count"`
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Lower string             `json:"lower"`
	Upper string             `json:"upper"`
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	ID             string       `json:"@id"`
	PackageContent string       `json:"packageContent"`
	CatalogEntry   catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	ID                string            `json:"id"`
	Version           string            `json:"version"`
	Description       string            `json:"description"`
	Authors           flexString        `json:"authors"`
	ProjectURL        string            `json:"projectUrl"`
	LicenseExpression string            `json:"licenseExpression"`
	Listed            *bool             `json:"listed"`
	Published         string            `json:"published"`
	Deprecation       *deprecationInfo  `json:"deprecation"`
	DependencyGroups  []dependencyGroup `json:"dependencyGroups"`

	// ref is set when the feed links the entry instead of inlining it.
	ref string
}

func (c *catalogEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.ref)
	}
	type plain catalogEntry
	return json.Unmarshal(data, (*plain)(c))
}

type deprecationInfo struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons"`
}

type dependencyGroup struct {
	TargetFramework string       `json:"targetFramework"`
	Dependencies    []dependency `json:"dependencies"`
}

type dependency struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

// flexString accepts either a string or a list of strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = flexString(strings.Join(list, ", "))
	return nil
}

func (e catalogEntry) listed() bool {
	return e.Listed == nil || *e.Listed
}

func notFound(err error) bool {
	var httpErr *core.HTTPError
	return errors.As(err, &httpErr) && httpErr.IsNotFound()
}

// leaves returns every registration leaf of a package, fetching pages that
// the index links without inlining.
func (s *Source) leaves(ctx context.Context, name string) ([]registrationLeaf, error) {
	var resp registrationResponse
	if err := s.client.GetJSON(ctx, s.urls.Metadata(name), &resp); err != nil {
		if notFound(err) {
			return nil, &core.NotFoundError{Source: s.name, Name: name}
		}
		return nil, err
	}

	var out []registrationLeaf
	for _, page := range resp.Items {
		items := page.Items
		if len(items) == 0 && page.ID != "" {
			var full registrationPage
			if err := s.client.GetJSON(ctx, page.ID, &full); err != nil {
				return nil, fmt.Errorf("fetching registration page %s: %w", page.ID, err)
			}
			items = full.Items
		}
		out = append(out, items...)
	}
	return out, nil
}

// FetchMetadata returns the registration metadata of one release.
func (s *Source) FetchMetadata(ctx context.Context, id core.Identity) (*core.Package, error) {
	leaves, err := s.leaves(ctx, id.Name)
	if err != nil {
		return nil, err
	}

	for _, leaf := range leaves {
		v, err := core.ParseVersion(leaf.CatalogEntry.Version)
		if leaf.CatalogEntry.ref == "" && (err != nil || !v.Equal(id.Version)) {
			continue
		}
		entry := leaf.CatalogEntry
		if entry.ref != "" {
			var linked catalogEntry
			if err := s.client.GetJSON(ctx, entry.ref, &linked); err != nil {
				return nil, fmt.Errorf("fetching catalog entry: %w", err)
			}
			if lv, err := core.ParseVersion(linked.Version); err != nil || !lv.Equal(id.Version) {
				continue
			}
			entry = linked
		}
		return toPackage(entry), nil
	}

	return nil, &core.NotFoundError{Source: s.name, Name: id.Name, Version: id.Version.String()}
}

func toPackage(e catalogEntry) *core.Package {
	pkg := &core.Package{
		Name:        e.ID,
		Version:     e.Version,
		Description: e.Description,
		Authors:     string(e.Authors),
		Homepage:    e.ProjectURL,
		Licenses:    e.LicenseExpression,
		Listed:      e.listed(),
	}
	for _, g := range e.DependencyGroups {
		group := core.DependencyGroup{TargetFramework: g.TargetFramework}
		for _, d := range g.Dependencies {
			group.Packages = append(group.Packages, core.Dependency{ID: d.ID, Range: d.Range})
		}
		pkg.DependencyGroups = append(pkg.DependencyGroups, group)
	}
	return pkg
}

type versionsResponse struct {
	Versions []string `json:"versions"`
}

// FetchReleases lists the published versions of a package from the
// registration API, falling back to the flat container listing.
func (s *Source) FetchReleases(ctx context.Context, name string) ([]core.Release, error) {
	leaves, err := s.leaves(ctx, name)
	if errors.Is(err, core.ErrNotFound) {
		return s.flatReleases(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	releases := make([]core.Release, 0, len(leaves))
	for _, leaf := range leaves {
		e := leaf.CatalogEntry
		if e.Version == "" {
			continue
		}
		var publishedAt time.Time
		if e.Published != "" {
			publishedAt, _ = time.Parse(time.RFC3339, e.Published)
		}

		status := core.StatusNone
		switch {
		case !e.listed():
			status = core.StatusUnlisted
		case e.Deprecation != nil:
			status = core.StatusDeprecated
		}

		releases = append(releases, core.Release{
			Number:      e.Version,
			PublishedAt: publishedAt,
			Status:      status,
			DownloadURL: leaf.PackageContent,
		})
	}
	return releases, nil
}

func (s *Source) flatReleases(ctx context.Context, name string) ([]core.Release, error) {
	var resp versionsResponse
	if err := s.client.GetJSON(ctx, s.urls.versionsURL(name), &resp); err != nil {
		if notFound(err) {
			return nil, &core.NotFoundError{Source: s.name, Name: name}
		}
		return nil, err
	}
	releases := make([]core.Release, 0, len(resp.Versions))
	for _, v := range resp.Versions {
		releases = append(releases, core.Release{Number: v, DownloadURL: s.urls.Download(name, v)})
	}
	return releases, nil
}

// Exists probes the flat container for the release archive.
func (s *Source) Exists(ctx context.Context, id core.Identity) (bool, error) {
	_, _, err := s.fetcher.Head(ctx, s.urls.Download(id.Name, id.Version.String()))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fetch.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// FetchArchive opens a download of the release archive.
func (s *Source) FetchArchive(ctx context.Context, id core.Identity) (io.ReadCloser, error) {
	info, err := s.resolver.Resolve(ctx, s.name, id.Name, id.Version.String())
	if err != nil {
		return nil, err
	}
	archive, err := s.fetcher.Fetch(ctx, info.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			return nil, &core.NotFoundError{Source: s.name, Name: id.Name, Version: id.Version.String()}
		}
		return nil, err
	}
	return archive.Body, nil
}

// URLs builds registration and flat container addresses for a feed.
type URLs struct {
	baseURL string
	flatURL string
}

func newURLs(base string) *URLs {
	flat := base + "/v3-flatcontainer"
	if strings.HasSuffix(base, "/v3") {
		flat = base + "-flatcontainer"
	}
	return &URLs{baseURL: base, flatURL: flat}
}

func (u *URLs) Gallery(name, version string) string {
	if u.baseURL != DefaultURL {
		return ""
	}
	if version != "" {
		return fmt.Sprintf("https://www.nuget.org/packages/%s/%s", name, version)
	}
	return fmt.Sprintf("https://www.nuget.org/packages/%s", name)
}

func (u *URLs) Metadata(name string) string {
	return fmt.Sprintf("%s/registration5-semver1/%s/index.json", u.baseURL, strings.ToLower(name))
}

func (u *URLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	lower := strings.ToLower(name)
	v := strings.ToLower(version)
	return fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", u.flatURL, lower, v, lower, v)
}

func (u *URLs) versionsURL(name string) string {
	return fmt.Sprintf("%s/%s/index.json", u.flatURL, strings.ToLower(name))
}

func (u *URLs) PURL(name, version string) string {
	v, err := core.ParseVersion(version)
	if err != nil {
		return fmt.Sprintf("pkg:nuget/%s", name)
	}
	return core.NewIdentity(name, v).ToPURL()
}
