// Package scan extracts package and binary reference directives from script text.
package scan

import (
	"regexp"
	"strings"

	"github.com/git-pkgs/hishell/internal/core"
)

// Kind distinguishes registry package references from local binaries.
type Kind int

const (
	Package Kind = iota
	Binary
)

func (k Kind) String() string {
	if k == Binary {
		return "binary"
	}
	return "package"
}

// Reference is one recognized directive.
type Reference struct {
	Kind  Kind
	Name  string            // package ID, for Package references
	Range core.VersionRange // requested versions, for Package references
	Path  string            // path as written, for Binary references
	Line  int               // 1-based line of the directive
}

func (r Reference) String() string {
	if r.Kind == Binary {
		return r.Path
	}
	return r.Name + "@" + r.Range.String()
}

var (
	directivePattern = regexp.MustCompile(`^\s*#r\s+"([^"]*)"\s*(?://.*)?$`)
	namePattern      = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
)

// Scan removes every recognized reference directive from text and returns
// the remaining text along with the references in order. Directive lines are
// dropped together with their terminator and every other byte is kept.
// Text without directives is returned unchanged with a nil list.
func Scan(text string) (string, []Reference, error) {
	var (
		out     strings.Builder
		refs    []Reference
		lineNo  int
		dropped bool
	)

	for rest := text; rest != ""; {
		lineNo++
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			rest = ""
		}

		ref, ok, err := parseLine(strings.TrimRight(line, "\r\n"), lineNo)
		if err != nil {
			return "", nil, err
		}
		if ok {
			refs = append(refs, ref)
			dropped = true
			continue
		}
		out.WriteString(line)
	}

	if !dropped {
		return text, nil, nil
	}
	return out.String(), refs, nil
}

func parseLine(line string, lineNo int) (Reference, bool, error) {
	m := directivePattern.FindStringSubmatch(line)
	if m == nil {
		return Reference{}, false, nil
	}
	arg := strings.TrimSpace(m[1])
	fail := func(reason string) (Reference, bool, error) {
		return Reference{}, false, &core.DirectiveError{Line: lineNo, Directive: line, Reason: reason}
	}

	lower := strings.ToLower(arg)
	switch {
	case strings.HasPrefix(lower, "nuget:"):
		name, rng, reason := parseNuGet(arg[len("nuget:"):])
		if reason != "" {
			return fail(reason)
		}
		return Reference{Kind: Package, Name: name, Range: rng, Line: lineNo}, true, nil

	case strings.HasPrefix(lower, "pkg:"):
		name, rng, err := core.IdentityFromPURL(arg)
		if err != nil {
			return fail(err.Error())
		}
		if !namePattern.MatchString(name) {
			return fail("invalid package name " + name)
		}
		return Reference{Kind: Package, Name: name, Range: rng, Line: lineNo}, true, nil

	case strings.HasSuffix(lower, ".dll"):
		return Reference{Kind: Binary, Path: strings.ReplaceAll(arg, "\\", "/"), Line: lineNo}, true, nil
	}

	return Reference{}, false, nil
}

// parseNuGet reads "Name, Range" or "Name/Range". A non-empty reason
// reports why the argument is invalid.
func parseNuGet(arg string) (string, core.VersionRange, string) {
	arg = strings.TrimSpace(arg)

	name, version, found := arg, "", false
	if i := strings.IndexAny(arg, ",/"); i >= 0 {
		name, version, found = arg[:i], arg[i+1:], true
	}
	name, version = strings.TrimSpace(name), strings.TrimSpace(version)

	switch {
	case name == "":
		return "", core.VersionRange{}, "empty package name"
	case !namePattern.MatchString(name):
		return "", core.VersionRange{}, "invalid package name " + name
	case !found || version == "":
		return "", core.VersionRange{}, "missing version"
	}

	rng, err := core.ParseVersionRange(version)
	if err != nil {
		return "", core.VersionRange{}, err.Error()
	}
	return name, rng, ""
}
