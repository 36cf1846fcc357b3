package framework

import (
	"fmt"
	"sort"
	"strings"

	"github.com/git-pkgs/hishell/internal/core"
)

// CanConsume reports whether code built for current can load assets built
// for target.
func CanConsume(current, target Framework) bool {
	if target.IsUnspecified() {
		return true
	}
	if target.Identifier == Unsupported || current.Identifier == Unsupported {
		return false
	}
	if target.Platform != "" && !strings.EqualFold(target.Platform, current.Platform) {
		return false
	}

	switch current.Identifier {
	case NetCoreApp:
		switch target.Identifier {
		case NetCoreApp:
			return target.CompareVersion(current) <= 0
		case NetStandard:
			return standardSupported(current, target)
		}
		return false

	case NetFramework:
		switch target.Identifier {
		case NetFramework:
			return target.CompareVersion(current) <= 0
		case NetStandard:
			return standardSupported(current, target)
		case NetPortable:
			return portableSupported(current, target)
		}
		return false

	case NetStandard:
		return target.Identifier == NetStandard && target.CompareVersion(current) <= 0

	default:
		return strings.EqualFold(target.Identifier, current.Identifier) && target.CompareVersion(current) <= 0
	}
}

// standardSupported reports whether current implements the netstandard
// version of target.
func standardSupported(current, target Framework) bool {
	max, ok := highestStandard(current)
	if !ok {
		return false
	}
	return target.CompareVersion(max) <= 0
}

// highestStandard returns the newest netstandard current implements.
func highestStandard(current Framework) (Framework, bool) {
	std := func(major, minor int) (Framework, bool) {
		return Framework{Identifier: NetStandard, Major: major, Minor: minor}, true
	}

	switch current.Identifier {
	case NetCoreApp:
		switch {
		case current.Major >= 3:
			return std(2, 1)
		case current.Major == 2:
			return std(2, 0)
		case current.Major == 1:
			return std(1, 6)
		}
	case NetFramework:
		switch {
		case !current.atMost(4, 6, 0):
			return std(2, 0)
		case !current.atMost(4, 5, 2) && current.atMost(4, 6, 0):
			return std(1, 3)
		case !current.atMost(4, 5, 0) && current.atMost(4, 5, 2):
			return std(1, 2)
		case current.CompareVersion(Framework{Major: 4, Minor: 5}) == 0:
			return std(1, 1)
		}
	}
	return Framework{}, false
}

// portableSupported reports whether one of the portable profile's members
// is a .NET Framework version current can consume.
func portableSupported(current, target Framework) bool {
	for _, member := range strings.Split(target.Profile, "+") {
		m := Parse(member)
		if m.Identifier == NetFramework && m.CompareVersion(current) <= 0 {
			return true
		}
	}
	return false
}

// IsCompatible reports whether the environment can consume assets built for tag.
func IsCompatible(env Env, tag string) bool {
	return CanConsume(env.Framework, Parse(tag))
}

// PackageCompatible reports whether a package with the given dependency
// groups is usable at all. Packages without groups are always usable.
func PackageCompatible(env Env, groups []core.DependencyGroup) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if IsCompatible(env, g.TargetFramework) {
			return true
		}
	}
	return false
}

// Targets lists the declared target frameworks of groups.
func Targets(groups []core.DependencyGroup) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		tag := g.TargetFramework
		if tag == "" {
			tag = "(any)"
		}
		out = append(out, tag)
	}
	return out
}

// preference orders compatible groups: same identifier, then netstandard,
// then unspecified, then anything else the current framework consumes.
func preference(current, target Framework) int {
	switch {
	case target.IsUnspecified():
		return 2
	case strings.EqualFold(target.Identifier, current.Identifier):
		return 0
	case target.Identifier == NetStandard:
		return 1
	default:
		return 3
	}
}

// NearestCompatibleGroup returns the compatible dependency group closest to
// the environment's framework.
func NearestCompatibleGroup(env Env, groups []core.DependencyGroup) (core.DependencyGroup, bool) {
	type candidate struct {
		group core.DependencyGroup
		fw    Framework
	}

	var compatible []candidate
	for _, g := range groups {
		fw := Parse(g.TargetFramework)
		if CanConsume(env.Framework, fw) {
			compatible = append(compatible, candidate{group: g, fw: fw})
		}
	}
	if len(compatible) == 0 {
		return core.DependencyGroup{}, false
	}

	sort.SliceStable(compatible, func(i, j int) bool {
		a, b := compatible[i], compatible[j]
		if pa, pb := preference(env.Framework, a.fw), preference(env.Framework, b.fw); pa != pb {
			return pa < pb
		}
		if c := a.fw.CompareVersion(b.fw); c != 0 {
			return c > 0
		}
		return strings.ToLower(a.group.TargetFramework) > strings.ToLower(b.group.TargetFramework)
	})
	return compatible[0].group, true
}

// SelectGroup picks the dependency group to follow. Without a compatible
// group it falls back to the first declared one, unless strict is set, in
// which case it fails with core.ErrIncompatibleFramework. ok is false only
// when groups is empty or strict selection failed.
func SelectGroup(env Env, groups []core.DependencyGroup, strict bool) (core.DependencyGroup, bool, error) {
	if len(groups) == 0 {
		return core.DependencyGroup{}, false, nil
	}
	if g, ok := NearestCompatibleGroup(env, groups); ok {
		return g, true, nil
	}
	if strict {
		return core.DependencyGroup{}, false, fmt.Errorf("%w: no group of [%s] is usable on %s",
			core.ErrIncompatibleFramework, strings.Join(Targets(groups), ", "), env.Framework)
	}
	return groups[0], true, nil
}
