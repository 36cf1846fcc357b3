// Package assets picks the binary files of a package archive that suit the
// current environment and materializes them on disk.
package assets

import (
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/git-pkgs/hishell/internal/framework"
)

// Kind distinguishes assets under lib/ from assets under runtimes/{rid}/lib/.
type Kind int

const (
	Generic Kind = iota
	RuntimeSpecific
)

func (k Kind) String() string {
	if k == RuntimeSpecific {
		return "runtime-specific"
	}
	return "generic"
}

// Candidate is one binary entry of an archive.
type Candidate struct {
	ArchivePath  string
	RelativePath string // slash separated path inside the archive
	FileName     string
	Kind         Kind
	FrameworkTag string // lower-case tfm folder, "" for files directly under lib/
	PlatformTag  string // rid folder of runtime-specific assets
	CultureTag   string // culture folder of satellite resource assemblies
}

// IsSatellite reports whether the candidate is a localized resource assembly.
func (c Candidate) IsSatellite() bool {
	return c.CultureTag != ""
}

// NormalizeEntry converts an archive entry name to a clean slash path.
// Archives written on Windows use backslashes and some tools percent-encode names.
func NormalizeEntry(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.TrimPrefix(name, "./")
}

// Unsafe reports whether an entry would escape the extraction directory.
func Unsafe(entry string) bool {
	if strings.HasPrefix(entry, "/") || filepath.IsAbs(entry) || filepath.VolumeName(entry) != "" {
		return true
	}
	if len(entry) >= 2 && entry[1] == ':' {
		return true
	}
	for _, part := range strings.Split(entry, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// ParseEntry classifies a normalized archive entry. ok is false for entries
// that are not binaries under lib/ or runtimes/{rid}/lib/.
func ParseEntry(archivePath, entry string) (Candidate, bool) {
	if !strings.EqualFold(path.Ext(entry), ".dll") {
		return Candidate{}, false
	}
	parts := strings.Split(entry, "/")

	c := Candidate{ArchivePath: archivePath, RelativePath: entry, FileName: parts[len(parts)-1]}
	var rest []string

	switch {
	case strings.EqualFold(parts[0], "lib") && len(parts) == 2:
		c.Kind = Generic
		rest = parts[1:]
	case strings.EqualFold(parts[0], "lib") && len(parts) >= 3:
		c.Kind = Generic
		c.FrameworkTag = strings.ToLower(parts[1])
		rest = parts[2:]
	case strings.EqualFold(parts[0], "runtimes") && len(parts) >= 5 && strings.EqualFold(parts[2], "lib"):
		c.Kind = RuntimeSpecific
		c.PlatformTag = strings.ToLower(parts[1])
		c.FrameworkTag = strings.ToLower(parts[3])
		rest = parts[4:]
	default:
		return Candidate{}, false
	}

	if len(rest) == 2 && strings.HasSuffix(strings.ToLower(c.FileName), ".resources.dll") {
		if _, err := language.Parse(rest[0]); err == nil {
			c.CultureTag = rest[0]
		}
	}
	return c, true
}

// tier orders runtime-specific assets for the current OS before generic
// assets, and generic assets before runtime-specific assets for other systems.
func tier(c Candidate, osFamily string) int {
	switch {
	case c.Kind == Generic:
		return 1
	case framework.PlatformMatches(c.PlatformTag, osFamily):
		return 0
	default:
		return 2
	}
}

// Compare is the total preference order of candidates; negative means a is
// preferred. Ties on platform, framework family, framework version and
// framework tag are broken by relative path.
func Compare(a, b Candidate, env framework.Env) int {
	family := env.OSFamily()
	if ta, tb := tier(a, family), tier(b, family); ta != tb {
		return ta - tb
	}

	fa, fb := framework.Parse(a.FrameworkTag), framework.Parse(b.FrameworkTag)
	if fa.Family() != fb.Family() {
		return int(fb.Family()) - int(fa.Family())
	}
	if c := fa.CompareVersion(fb); c != 0 {
		return -c
	}
	if c := strings.Compare(a.FrameworkTag, b.FrameworkTag); c != 0 {
		return -c
	}
	return strings.Compare(a.RelativePath, b.RelativePath)
}

// Rank returns the candidates sorted by preference. The input is not modified.
func Rank(candidates []Candidate, env framework.Env) []Candidate {
	ranked := append([]Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Compare(ranked[i], ranked[j], env) < 0
	})
	return ranked
}

type groupKey struct {
	file    string
	kind    Kind
	culture string
}

// Winners drops candidates built for incompatible frameworks and keeps the
// best candidate per file name and kind. Satellite resources keep one
// winner per culture: only the best framework variant of de/X.resources.dll
// survives, not every variant of that culture. The result is in preference
// order.
func Winners(candidates []Candidate, env framework.Env) []Candidate {
	var compatible []Candidate
	for _, c := range candidates {
		if framework.IsCompatible(env, c.FrameworkTag) {
			compatible = append(compatible, c)
		}
	}

	seen := make(map[groupKey]bool)
	var winners []Candidate
	for _, c := range Rank(compatible, env) {
		key := groupKey{file: strings.ToLower(c.FileName), kind: c.Kind, culture: strings.ToLower(c.CultureTag)}
		if seen[key] {
			continue
		}
		seen[key] = true
		winners = append(winners, c)
	}
	return winners
}
