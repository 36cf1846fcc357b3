package resolve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/hishell/fetch"
	"github.com/git-pkgs/hishell/internal/cache"
	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/framework"
	"github.com/git-pkgs/hishell/internal/nuget"
	"github.com/git-pkgs/hishell/internal/nupkgtest"
	"github.com/git-pkgs/hishell/internal/scan"
)

type fakePackage struct {
	archive []byte
	groups  []core.DependencyGroup
}

// fakeSource serves packages from memory and counts archive downloads.
type fakeSource struct {
	name     string
	packages map[string]fakePackage
	err      error

	mu        sync.Mutex
	downloads []string
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{name: name, packages: make(map[string]fakePackage)}
}

func (f *fakeSource) add(t *testing.T, name, version string, libs []string, groups ...core.DependencyGroup) {
	t.Helper()
	id := core.NewIdentity(name, core.MustParseVersion(version))
	f.packages[id.Key()] = fakePackage{
		archive: nupkgtest.Package(t, name, version, libs, groups...),
		groups:  groups,
	}
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Kind() string { return "fake" }

func (f *fakeSource) Exists(_ context.Context, id core.Identity) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.packages[id.Key()]
	return ok, nil
}

func (f *fakeSource) FetchArchive(_ context.Context, id core.Identity) (io.ReadCloser, error) {
	p, ok := f.packages[id.Key()]
	if !ok {
		return nil, &core.NotFoundError{Source: f.name, Name: id.Name}
	}
	f.mu.Lock()
	f.downloads = append(f.downloads, id.Key())
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(p.archive)), nil
}

func (f *fakeSource) FetchMetadata(_ context.Context, id core.Identity) (*core.Package, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.packages[id.Key()]
	if !ok {
		return nil, &core.NotFoundError{Source: f.name, Name: id.Name}
	}
	return &core.Package{Name: id.Name, Version: id.Version.String(), Listed: true, DependencyGroups: p.groups}, nil
}

func (f *fakeSource) FetchReleases(_ context.Context, name string) ([]core.Release, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Release
	prefix := strings.ToLower(name) + "."
	for key := range f.packages {
		if v, ok := strings.CutPrefix(key, prefix); ok {
			out = append(out, core.Release{Number: v})
		}
	}
	if len(out) == 0 {
		return nil, &core.NotFoundError{Source: f.name, Name: name}
	}
	return out, nil
}

func deps(tfm string, ds ...string) core.DependencyGroup {
	g := core.DependencyGroup{TargetFramework: tfm}
	for _, d := range ds {
		id, rng, _ := strings.Cut(d, "@")
		g.Packages = append(g.Packages, core.Dependency{ID: id, Range: rng})
	}
	return g
}

func env(tfm string) framework.Env {
	return framework.DetectEnv(tfm, "linux-x64", "en-US")
}

func quiet() Option {
	return WithLogger(log.New(io.Discard))
}

func id(name, version string) core.Identity {
	return core.NewIdentity(name, core.MustParseVersion(version))
}

func baseNames(paths []string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ",")
}

func TestResolveVisitsOnceInFirstSeenOrder(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "A", "1.0.0", []string{"lib/net8.0/A.dll"}, deps("net8.0", "B@1.0.0", "C@[1.0.0, )"))
	src.add(t, "B", "1.0.0", []string{"lib/net8.0/B.dll"}, deps("net8.0", "C@1.0.0", "D@1.0.0"))
	src.add(t, "C", "1.0.0", []string{"lib/net8.0/C.dll"}, deps("net8.0", "A@1.0.0"))
	src.add(t, "D", "1.0.0", []string{"lib/netstandard2.0/D.dll"})

	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet())
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("A", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got := strings.Join(rc.Visited(), ","); got != "A,B,C,D" {
		t.Errorf("Visited = %s, want A,B,C,D", got)
	}
	if got := baseNames(rc.References); got != "A.dll,B.dll,C.dll,D.dll" {
		t.Errorf("References = %s", got)
	}
	if len(rc.Skips) != 0 {
		t.Errorf("unexpected skips: %v", rc.Skips)
	}
	if len(src.downloads) != 4 {
		t.Errorf("downloads = %v, want one per package", src.downloads)
	}
	if !rc.HasVisited("c") {
		t.Error("HasVisited should ignore case")
	}
}

func TestResolveIncompatibleDependency(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "Foo", "1.0.0", []string{"lib/net472/Foo.dll"}, deps("net472", "Bar@[1.0.0, )"))
	src.add(t, "Bar", "1.0.0", []string{"lib/net8.0/Bar.dll"}, deps("net8.0"))

	var logs bytes.Buffer
	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net472"), WithLogger(log.New(&logs)))
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("Foo", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got := baseNames(rc.References); got != "Foo.dll" {
		t.Errorf("References = %s, want Foo.dll", got)
	}
	if len(rc.Skips) != 1 {
		t.Fatalf("Skips = %v, want exactly one", rc.Skips)
	}
	skip := rc.Skips[0]
	if skip.Name != "Bar" || skip.Version != "1.0.0" || !errors.Is(skip, core.ErrIncompatibleFramework) {
		t.Errorf("unexpected skip: %v", skip)
	}
	var incompatible *core.IncompatibleError
	if !errors.As(skip.Err, &incompatible) || len(incompatible.Targets) != 1 {
		t.Errorf("skip error = %v, want IncompatibleError", skip.Err)
	}
	for _, d := range src.downloads {
		if strings.HasPrefix(d, "bar.") {
			t.Error("incompatible package was downloaded")
		}
	}
	if !strings.Contains(logs.String(), "skipping package") {
		t.Errorf("skip not logged: %q", logs.String())
	}
}

func TestResolveNotFound(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "Foo", "1.0.0", []string{"lib/net8.0/Foo.dll"}, deps("net8.0", "Missing@2.0.0"))

	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet())
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("Foo", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(rc.Skips) != 1 || !errors.Is(rc.Skips[0], core.ErrNotFound) || rc.Skips[0].Parent != "Foo@1.0.0" {
		t.Errorf("Skips = %v", rc.Skips)
	}
	if len(rc.References) != 1 {
		t.Errorf("References = %v", rc.References)
	}
}

func TestResolveSourceOrder(t *testing.T) {
	broken := newFakeSource("broken")
	broken.err = errors.New("connection refused")
	good := newFakeSource("good")
	good.add(t, "Foo", "1.0.0", []string{"lib/net8.0/Foo.dll"})

	r := New([]core.Source{broken, good}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet())
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("Foo", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(rc.Packages) != 1 || rc.Packages[0].Source != "good" {
		t.Errorf("Packages = %+v, want Foo from good", rc.Packages)
	}
}

// hangSource never answers before the caller gives up.
type hangSource struct {
	*fakeSource
}

func (h hangSource) Exists(ctx context.Context, _ core.Identity) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (h hangSource) FetchMetadata(ctx context.Context, _ core.Identity) (*core.Package, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveSlowSourceTimesOut(t *testing.T) {
	slow := hangSource{newFakeSource("slow")}
	good := newFakeSource("good")
	good.add(t, "A", "1.0.0", []string{"lib/net8.0/A.dll"})

	r := New([]core.Source{slow, good}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet(),
		WithFetchTimeout(100*time.Millisecond))
	res, err := r.ResolveReferences(context.Background(), []scan.Reference{pkgRef(t, "A", "1.0.0")}, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveReferences failed: %v", err)
	}
	if got := baseNames(res.References); got != "A.dll" {
		t.Errorf("References = %s, want A.dll", got)
	}
	if len(res.Skips) != 0 {
		t.Errorf("Skips = %v", res.Skips)
	}
	if len(res.Packages) != 1 || res.Packages[0].Source != "good" {
		t.Errorf("Packages = %+v, want A from good", res.Packages)
	}

	r = New([]core.Source{slow}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet(),
		WithFetchTimeout(50*time.Millisecond))
	start := time.Now()
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("A", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(rc.Skips) != 1 || !errors.Is(rc.Skips[0].Err, core.ErrNotFound) {
		t.Errorf("Skips = %v, want one not-found skip", rc.Skips)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timed-out source took %s", elapsed)
	}
}

func TestResolveLowestAvailableVersion(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "Foo", "1.0.0", nil, deps("net8.0", "Bar@(, 2.0.0]"))
	src.add(t, "Bar", "1.5.0", []string{"lib/net8.0/Bar.dll"})
	src.add(t, "Bar", "1.2.0", []string{"lib/net8.0/Bar.dll"})
	src.add(t, "Bar", "3.0.0", []string{"lib/net8.0/Bar.dll"})

	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet())
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("Foo", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(rc.Packages) != 2 || rc.Packages[1].ID.Version.String() != "1.2.0" {
		t.Errorf("Packages = %+v, want Bar 1.2.0", rc.Packages)
	}
}

func TestResolveMaxDepth(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "A", "1.0.0", nil, deps("net8.0", "B@1.0.0"))
	src.add(t, "B", "1.0.0", nil, deps("net8.0", "C@1.0.0"))
	src.add(t, "C", "1.0.0", nil)

	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet(), WithMaxDepth(1))
	rc := NewContext()
	if err := r.Resolve(context.Background(), id("A", "1.0.0"), rc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(rc.Skips) != 1 || rc.Skips[0].Name != "C" || !errors.Is(rc.Skips[0], core.ErrTooDeep) {
		t.Errorf("Skips = %v, want C too deep", rc.Skips)
	}
}

func TestResolveStrictGroups(t *testing.T) {
	root := t.TempDir()
	store := cache.NewStore(root, "")
	// A cached archive is not pre-checked against source metadata.
	nupkgtest.WriteFile(t, store.ArchivePath(id("Foo", "1.0.0")),
		nupkgtest.Package(t, "Foo", "1.0.0", []string{"lib/net472/Foo.dll"}, deps("net8.0")))

	tests := []struct {
		strict bool
		refs   int
		skips  int
	}{
		{false, 1, 0},
		{true, 0, 1},
	}
	for _, tt := range tests {
		r := New(nil, store, env("net472"), quiet(), WithStrictGroups(tt.strict))
		rc := NewContext()
		if err := r.Resolve(context.Background(), id("Foo", "1.0.0"), rc); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(rc.References) != tt.refs || len(rc.Skips) != tt.skips {
			t.Errorf("strict=%v: references %v, skips %v", tt.strict, rc.References, rc.Skips)
		}
		if tt.strict && !errors.Is(rc.Skips[0], core.ErrIncompatibleFramework) {
			t.Errorf("strict skip = %v", rc.Skips[0])
		}
	}
}

func TestResolveCancelled(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "Foo", "1.0.0", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), quiet())
	if err := r.Resolve(ctx, id("Foo", "1.0.0"), NewContext()); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve = %v, want context.Canceled", err)
	}
}

func TestResolveReferences(t *testing.T) {
	src := newFakeSource("fake")
	src.add(t, "Foo", "1.0.0", []string{"lib/net8.0/Foo.dll"})

	scriptDir := t.TempDir()
	helper := nupkgtest.WriteFile(t, filepath.Join(scriptDir, "bin", "Helper.dll"), []byte("x"))
	if err := os.MkdirAll(filepath.Join(scriptDir, "bin", "dir.dll"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, refs, err := scan.Scan(strings.Join([]string{
		`#r "bin/Helper.dll"`,
		`#r "nuget: Foo, 1.0.0"`,
		`#r "../outside.dll"`,
		`#r "missing.dll"`,
		`#r "bin/dir.dll"`,
		`#r "nuget: Absent, 1.0.0"`,
		"",
	}, "\n"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var logs bytes.Buffer
	r := New([]core.Source{src}, cache.NewStore(t.TempDir(), ""), env("net8.0"), WithLogger(log.New(&logs)))
	res, err := r.ResolveReferences(context.Background(), refs, scriptDir)
	if err != nil {
		t.Fatalf("ResolveReferences failed: %v", err)
	}

	if len(res.References) != 2 || filepath.Base(res.References[0]) != "Foo.dll" || res.References[1] != helper {
		t.Errorf("References = %v", res.References)
	}
	if len(res.Skips) != 1 || res.Skips[0].Name != "Absent" {
		t.Errorf("Skips = %v", res.Skips)
	}
	if strings.Join(res.Visited, ",") != "Foo,Absent" {
		t.Errorf("Visited = %v", res.Visited)
	}
	if n := strings.Count(logs.String(), "dropping binary reference"); n != 3 {
		t.Errorf("expected 3 dropped binaries, got %d in %q", n, logs.String())
	}
}

func TestSecondRunMakesNoRequests(t *testing.T) {
	archives := map[string][]byte{
		"/v3-flatcontainer/foo/1.0.0/foo.1.0.0.nupkg": nupkgtest.Package(t, "Foo", "1.0.0",
			[]string{"lib/net8.0/Foo.dll"}, deps("net8.0", "Bar@[2.0.0, )")),
		"/v3-flatcontainer/bar/2.0.0/bar.2.0.0.nupkg": nupkgtest.Package(t, "Bar", "2.0.0",
			[]string{"lib/netstandard2.0/Bar.dll", "lib/netstandard2.0/de/Bar.resources.dll"}),
	}
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, ok := archives[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	defer server.Close()

	src := nuget.New("test", server.URL, core.DefaultClient(), nuget.WithFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0))))
	root := t.TempDir()

	run := func() *Result {
		r := New([]core.Source{src}, cache.NewStore(root, ""), env("net8.0"), quiet())
		_, refs, err := scan.Scan(`#r "nuget: Foo, 1.0.0"` + "\n")
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		res, err := r.ResolveReferences(context.Background(), refs, t.TempDir())
		if err != nil {
			t.Fatalf("ResolveReferences failed: %v", err)
		}
		return res
	}

	first := run()
	if hits.Load() == 0 {
		t.Fatal("first run made no requests")
	}
	if got := baseNames(first.References); got != "Foo.dll,Bar.dll" {
		t.Fatalf("References = %s", got)
	}

	before := hits.Load()
	second := run()
	if hits.Load() != before {
		t.Errorf("second run made %d requests", hits.Load()-before)
	}
	if strings.Join(first.References, "|") != strings.Join(second.References, "|") {
		t.Errorf("second run references differ:\n%v\n%v", first.References, second.References)
	}
	for _, p := range second.Packages {
		if p.Source != "cache" {
			t.Errorf("%s resolved from %s, want cache", p.ID, p.Source)
		}
	}
}

func pkgRef(t *testing.T, name, rng string) scan.Reference {
	t.Helper()
	r, err := core.ParseVersionRange(rng)
	if err != nil {
		t.Fatal(err)
	}
	return scan.Reference{Kind: scan.Package, Name: name, Range: r}
}
