package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is wrapped by version and range parse failures.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a NuGet package version: Major.Minor.Patch[.Revision][-Prerelease][+Metadata].
// Metadata is kept but never takes part in comparison or the normalized form.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Revision   int
	Prerelease []string
	Metadata   string
}

// ParseVersion parses a version string. One to four numeric parts are accepted,
// so "1.0" and "1.0.0.0" are both valid.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}

	var v Version
	rest := raw
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		v.Metadata = rest[i+1:]
		rest = rest[:i]
		if v.Metadata == "" {
			return Version{}, fmt.Errorf("%w: %q has empty metadata", ErrInvalidVersion, raw)
		}
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		pre := rest[i+1:]
		rest = rest[:i]
		if pre == "" {
			return Version{}, fmt.Errorf("%w: %q has empty prerelease", ErrInvalidVersion, raw)
		}
		for _, label := range strings.Split(pre, ".") {
			if !validLabel(label) {
				return Version{}, fmt.Errorf("%w: %q has bad prerelease label %q", ErrInvalidVersion, raw, label)
			}
			v.Prerelease = append(v.Prerelease, label)
		}
	}

	parts := strings.Split(rest, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("%w: %q has more than four parts", ErrInvalidVersion, raw)
	}
	nums := [4]int{}
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, raw, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch, v.Revision = nums[0], nums[1], nums[2], nums[3]
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func validLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
		default:
			return false
		}
	}
	return true
}

// String returns the normalized form: a zero revision and the metadata are dropped.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Revision > 0 {
		fmt.Fprintf(&b, ".%d", v.Revision)
	}
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Prerelease, "."))
	}
	return b.String()
}

// IsPrerelease reports whether v carries prerelease labels.
func (v Version) IsPrerelease() bool {
	return len(v.Prerelease) > 0
}

// Compare returns -1, 0 or 1 following SemVer 2 precedence. Labels compare
// case-insensitively.
func (v Version) Compare(o Version) int {
	for _, d := range [4][2]int{
		{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}, {v.Revision, o.Revision},
	} {
		if c := cmpInt(d[0], d[1]); c != 0 {
			return c
		}
	}

	switch {
	case len(v.Prerelease) == 0 && len(o.Prerelease) == 0:
		return 0
	case len(v.Prerelease) == 0:
		return 1
	case len(o.Prerelease) == 0:
		return -1
	}

	for i := 0; i < len(v.Prerelease) && i < len(o.Prerelease); i++ {
		if c := compareLabel(v.Prerelease[i], o.Prerelease[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(v.Prerelease), len(o.Prerelease))
}

// Equal reports whether v and o have the same precedence.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func compareLabel(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return cmpInt(an, bn)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// VersionRange is a NuGet version range in interval notation. The zero value
// accepts every version.
type VersionRange struct {
	Min          *Version
	MinInclusive bool
	Max          *Version
	MaxInclusive bool
	original     string
}

// ParseVersionRange parses a range. A bare version means "at least":
//
//	1.0        >= 1.0
//	[1.0]      == 1.0
//	[1.0,2.0)  >= 1.0 and < 2.0
//	(,2.0]     <= 2.0
//	[2.0.0,)   >= 2.0.0
func ParseVersionRange(s string) (VersionRange, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return VersionRange{}, fmt.Errorf("%w: empty range", ErrInvalidVersion)
	}

	first, last := raw[0], raw[len(raw)-1]
	if first != '[' && first != '(' {
		v, err := ParseVersion(raw)
		if err != nil {
			return VersionRange{}, err
		}
		return VersionRange{Min: &v, MinInclusive: true, original: raw}, nil
	}
	if last != ']' && last != ')' {
		return VersionRange{}, fmt.Errorf("%w: range %q is not closed", ErrInvalidVersion, raw)
	}

	r := VersionRange{MinInclusive: first == '[', MaxInclusive: last == ']', original: raw}
	inner := raw[1 : len(raw)-1]
	lower, upper, hasComma := strings.Cut(inner, ",")
	if !hasComma {
		if !r.MinInclusive || !r.MaxInclusive {
			return VersionRange{}, fmt.Errorf("%w: exact range %q must use brackets", ErrInvalidVersion, raw)
		}
		v, err := ParseVersion(inner)
		if err != nil {
			return VersionRange{}, err
		}
		r.Min, r.Max = &v, &v
		return r, nil
	}
	if strings.Contains(upper, ",") {
		return VersionRange{}, fmt.Errorf("%w: range %q has too many bounds", ErrInvalidVersion, raw)
	}

	if lower = strings.TrimSpace(lower); lower != "" {
		v, err := ParseVersion(lower)
		if err != nil {
			return VersionRange{}, err
		}
		r.Min = &v
	}
	if upper = strings.TrimSpace(upper); upper != "" {
		v, err := ParseVersion(upper)
		if err != nil {
			return VersionRange{}, err
		}
		r.Max = &v
	}
	if r.Min == nil && r.Max == nil {
		return VersionRange{}, fmt.Errorf("%w: range %q has no bounds", ErrInvalidVersion, raw)
	}
	if r.Min != nil && r.Max != nil {
		c := r.Min.Compare(*r.Max)
		if c > 0 || (c == 0 && !(r.MinInclusive && r.MaxInclusive)) {
			return VersionRange{}, fmt.Errorf("%w: range %q is empty", ErrInvalidVersion, raw)
		}
	}
	return r, nil
}

// MinVersion returns the lower bound, or nil when the range is unbounded below.
func (r VersionRange) MinVersion() *Version {
	return r.Min
}

// MaxVersion returns the upper bound, or nil when the range is unbounded above.
func (r VersionRange) MaxVersion() *Version {
	return r.Max
}

// Satisfies reports whether v is inside the range.
func (r VersionRange) Satisfies(v Version) bool {
	if r.Min != nil {
		c := v.Compare(*r.Min)
		if c < 0 || (c == 0 && !r.MinInclusive) {
			return false
		}
	}
	if r.Max != nil {
		c := v.Compare(*r.Max)
		if c > 0 || (c == 0 && !r.MaxInclusive) {
			return false
		}
	}
	return true
}

func (r VersionRange) String() string {
	if r.original != "" {
		return r.original
	}
	if r.Min == nil && r.Max == nil {
		return "(,)"
	}
	var b strings.Builder
	if r.MinInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.Min != nil {
		b.WriteString(r.Min.String())
	}
	b.WriteByte(',')
	if r.Max != nil {
		b.WriteString(r.Max.String())
	}
	if r.MaxInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
