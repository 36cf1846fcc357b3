package assets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zip"

	"github.com/git-pkgs/hishell/internal/core"
	"github.com/git-pkgs/hishell/internal/framework"
)

// ErrUnsafeEntry marks an archive entry that would be written outside the
// extraction directory.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// Asset is a selected candidate and its location on disk.
type Asset struct {
	Candidate
	Path string
}

// Selection is the materialized asset set of one archive.
type Selection struct {
	Dir    string
	Assets []Asset
	family string
}

// Files returns the absolute paths of every selected asset.
func (s *Selection) Files() []string {
	out := make([]string, 0, len(s.Assets))
	for _, a := range s.Assets {
		out = append(out, a.Path)
	}
	return out
}

// References returns the assemblies to compile against: the best selected
// asset per file name, skipping satellite resources and runtime-specific
// assets built for another OS family.
func (s *Selection) References() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range s.Assets {
		if a.IsSatellite() {
			continue
		}
		if a.Kind == RuntimeSpecific && !framework.PlatformMatches(a.PlatformTag, s.family) {
			continue
		}
		name := strings.ToLower(a.FileName)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, a.Path)
	}
	return out
}

// Select materializes the assets of archivePath that suit env into destDir.
// An existing destDir is treated as a previous successful extraction and its
// listing is used without opening the archive.
func Select(archivePath, destDir string, env framework.Env) (*Selection, error) {
	if info, err := os.Stat(destDir); err == nil && info.IsDir() {
		return fromDir(archivePath, destDir, env)
	}
	return extract(archivePath, destDir, env)
}

func fromDir(archivePath, destDir string, env framework.Env) (*Selection, error) {
	var candidates []Candidate
	err := filepath.WalkDir(destDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(destDir, p)
		if err != nil {
			return err
		}
		if c, ok := ParseEntry(archivePath, filepath.ToSlash(rel)); ok {
			candidates = append(candidates, c)
		}
		return nil
	})
	if err != nil {
		return nil, &core.ExtractionError{Archive: archivePath, Err: fmt.Errorf("listing %s: %w", destDir, err)}
	}
	return newSelection(destDir, Winners(candidates, env), env), nil
}

func newSelection(destDir string, winners []Candidate, env framework.Env) *Selection {
	s := &Selection{Dir: destDir, family: env.OSFamily()}
	for _, c := range winners {
		s.Assets = append(s.Assets, Asset{
			Candidate: c,
			Path:      filepath.Join(destDir, filepath.FromSlash(c.RelativePath)),
		})
	}
	return s
}

func extract(archivePath, destDir string, env framework.Env) (*Selection, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &core.ExtractionError{Archive: archivePath, Err: err}
	}
	defer func() { _ = zr.Close() }()

	entries := make(map[string]*zip.File)
	var candidates []Candidate
	for _, f := range zr.File {
		name := NormalizeEntry(f.Name)
		c, ok := ParseEntry(archivePath, name)
		if !ok {
			continue
		}
		if Unsafe(name) {
			return nil, &core.ExtractionError{Archive: archivePath, Err: fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)}
		}
		entries[name] = f
		candidates = append(candidates, c)
	}
	winners := Winners(candidates, env)

	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, &core.CacheWriteError{Path: parent, Err: err}
	}

	tmp := tempName(destDir, archivePath)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, &core.CacheWriteError{Path: tmp, Err: err}
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	for _, c := range winners {
		if err := writeEntry(entries[c.RelativePath], filepath.Join(tmp, filepath.FromSlash(c.RelativePath))); err != nil {
			return nil, &core.ExtractionError{Archive: archivePath, Err: err}
		}
	}

	if err := os.Rename(tmp, destDir); err != nil {
		if info, statErr := os.Stat(destDir); statErr != nil || !info.IsDir() {
			return nil, &core.CacheWriteError{Path: destDir, Err: err}
		}
	}
	return newSelection(destDir, winners, env), nil
}

var tempSeq atomic.Uint64

// tempName returns a sibling of destDir unique to this process and call.
func tempName(destDir, archivePath string) string {
	seed := archivePath + "|" + strconv.Itoa(os.Getpid()) + "|" + strconv.FormatInt(time.Now().UnixNano(), 10) +
		"|" + strconv.FormatUint(tempSeq.Add(1), 10)
	return fmt.Sprintf("%s.tmp-%016x", destDir, xxhash.Sum64String(seed))
}

func writeEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return out.Close()
}
