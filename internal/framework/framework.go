// Package framework models target framework monikers and decides which
// package assets and dependency groups the running environment can consume.
package framework

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Framework identifiers.
const (
	NetFramework = ".NETFramework"
	NetCoreApp   = ".NETCoreApp"
	NetStandard  = ".NETStandard"
	NetPortable  = ".NETPortable"
	Any          = "Any"
	Agnostic     = "Agnostic"
	Unsupported  = "Unsupported"
)

// DefaultTag is the framework assumed when none is configured.
const DefaultTag = "net8.0"

// Family groups frameworks by compatibility tier. Higher families are
// preferred when several assets are usable.
type Family int

const (
	FamilyLegacy Family = iota
	FamilyUnspecified
	FamilyPortableStandard
	FamilyModern
)

func (f Family) String() string {
	switch f {
	case FamilyLegacy:
		return "legacy-interop"
	case FamilyUnspecified:
		return "unspecified"
	case FamilyPortableStandard:
		return "portable-standard"
	case FamilyModern:
		return "modern"
	default:
		return "unknown"
	}
}

// Framework is a parsed target framework moniker.
type Framework struct {
	Identifier string
	Major      int
	Minor      int
	Build      int
	Platform   string // os suffix of net5+ monikers, e.g. "windows"
	Profile    string // portable profile members, e.g. "net45+win8"
	tag        string
}

var (
	shortPattern = regexp.MustCompile(`^([a-z]+)(\d[\d.]*)?(?:-([a-z]+)[\d.]*)?$`)
	longPattern  = regexp.MustCompile(`^\.(netframework|netcoreapp|netstandard|netportable)(?:,version=v)?(\d[\d.]*)?(?:,profile=(.+))?$`)
)

var longIdentifiers = map[string]string{
	"netframework": NetFramework,
	"netcoreapp":   NetCoreApp,
	"netstandard":  NetStandard,
	"netportable":  NetPortable,
}

// Parse reads a short folder name ("net472", "net8.0-windows", "netstandard2.0",
// "portable-net45+win8") or a long nuspec form (".NETFramework4.7.2",
// ".NETStandard,Version=v2.0"). The empty tag is unspecified and unknown
// spellings yield the Unsupported identifier.
func Parse(tag string) Framework {
	raw := strings.TrimSpace(tag)
	lower := strings.ToLower(raw)
	f := Framework{tag: raw}

	switch lower {
	case "":
		return f
	case "any":
		f.Identifier = Any
		return f
	case "agnostic":
		f.Identifier = Agnostic
		return f
	}

	if rest, ok := strings.CutPrefix(lower, "portable-"); ok {
		f.Identifier = NetPortable
		f.Profile = rest
		return f
	}

	if m := longPattern.FindStringSubmatch(lower); m != nil {
		f.Identifier = longIdentifiers[m[1]]
		f.Major, f.Minor, f.Build = parseDotted(m[2])
		f.Profile = m[3]
		return f
	}

	m := shortPattern.FindStringSubmatch(lower)
	if m == nil {
		f.Identifier = Unsupported
		return f
	}

	ident, ver, platform := m[1], m[2], m[3]
	switch ident {
	case "net":
		if strings.Contains(ver, ".") {
			f.Major, f.Minor, f.Build = parseDotted(ver)
		} else {
			f.Major, f.Minor, f.Build = parseCompact(ver)
		}
		if f.Major >= 5 {
			f.Identifier = NetCoreApp
			f.Platform = platform
		} else {
			f.Identifier = NetFramework
		}
	case "netcoreapp":
		f.Identifier = NetCoreApp
		f.Major, f.Minor, f.Build = parseVersion(ver)
	case "netstandard":
		f.Identifier = NetStandard
		f.Major, f.Minor, f.Build = parseVersion(ver)
	default:
		f.Identifier = ident
		f.Major, f.Minor, f.Build = parseVersion(ver)
	}

	if platform != "" && f.Platform == "" {
		f.Identifier = Unsupported
	}
	return f
}

func parseVersion(s string) (int, int, int) {
	if strings.Contains(s, ".") {
		return parseDotted(s)
	}
	return parseCompact(s)
}

// parseDotted reads "4.7.2" style versions.
func parseDotted(s string) (int, int, int) {
	var parts [3]int
	for i, p := range strings.SplitN(s, ".", 4) {
		if i >= len(parts) {
			break
		}
		parts[i], _ = strconv.Atoi(p)
	}
	return parts[0], parts[1], parts[2]
}

// parseCompact reads "472" style versions, one digit per component.
func parseCompact(s string) (int, int, int) {
	var parts [3]int
	for i, r := range s {
		if i >= len(parts) {
			break
		}
		parts[i] = int(r - '0')
	}
	return parts[0], parts[1], parts[2]
}

// Tag returns the moniker as it was given to Parse.
func (f Framework) Tag() string {
	return f.tag
}

// IsUnspecified reports whether the framework is empty, any or agnostic.
func (f Framework) IsUnspecified() bool {
	return f.Identifier == "" || f.Identifier == Any || f.Identifier == Agnostic
}

// Family returns the compatibility tier of the framework.
func (f Framework) Family() Family {
	switch {
	case f.IsUnspecified():
		return FamilyUnspecified
	case f.Identifier == NetCoreApp:
		return FamilyModern
	case f.Identifier == NetStandard:
		return FamilyPortableStandard
	default:
		return FamilyLegacy
	}
}

// CompareVersion orders two frameworks by version only.
func (f Framework) CompareVersion(o Framework) int {
	switch {
	case f.Major != o.Major:
		return cmpInt(f.Major, o.Major)
	case f.Minor != o.Minor:
		return cmpInt(f.Minor, o.Minor)
	default:
		return cmpInt(f.Build, o.Build)
	}
}

func (f Framework) atMost(major, minor, build int) bool {
	return f.CompareVersion(Framework{Major: major, Minor: minor, Build: build}) <= 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String returns the short folder name.
func (f Framework) String() string {
	switch f.Identifier {
	case "":
		return ""
	case Any:
		return "any"
	case Agnostic:
		return "agnostic"
	case Unsupported:
		return "unsupported"
	case NetPortable:
		return "portable-" + f.Profile
	case NetFramework:
		s := fmt.Sprintf("net%d%d", f.Major, f.Minor)
		if f.Build > 0 {
			s += strconv.Itoa(f.Build)
		}
		return s
	case NetCoreApp:
		prefix := "netcoreapp"
		if f.Major >= 5 {
			prefix = "net"
		}
		s := fmt.Sprintf("%s%d.%d", prefix, f.Major, f.Minor)
		if f.Platform != "" {
			s += "-" + f.Platform
		}
		return s
	case NetStandard:
		return fmt.Sprintf("netstandard%d.%d", f.Major, f.Minor)
	default:
		if f.Major == 0 && f.Minor == 0 {
			return f.Identifier
		}
		return fmt.Sprintf("%s%d.%d", f.Identifier, f.Major, f.Minor)
	}
}
