// Package core provides shared types and the source registry.
package core

import (
	"strings"
	"time"
)

// Identity names one release of a package. Names compare case-insensitively.
type Identity struct {
	Name    string
	Version Version
}

// NewIdentity returns the identity for name at version v.
func NewIdentity(name string, v Version) Identity {
	return Identity{Name: strings.TrimSpace(name), Version: v}
}

// Key is the case-insensitive cache key, "name.version".
func (id Identity) Key() string {
	return strings.ToLower(id.Name + "." + id.Version.String())
}

func (id Identity) String() string {
	return id.Name + "@" + id.Version.String()
}

// Package represents the registry metadata of one package release.
type Package struct {
	Name             string
	Version          string
	Description      string
	Authors          string
	Homepage         string
	Licenses         string
	Listed           bool
	DependencyGroups []DependencyGroup
}

// DependencyGroup is the set of dependencies declared for one target framework.
// An empty TargetFramework applies to every framework.
type DependencyGroup struct {
	TargetFramework string
	Packages        []Dependency
}

// Dependency is one entry of a dependency group. Range is kept in its
// declared form and parsed on use.
type Dependency struct {
	ID    string
	Range string
}

// VersionRange parses the declared range. An empty range accepts every version.
func (d Dependency) VersionRange() (VersionRange, error) {
	if strings.TrimSpace(d.Range) == "" {
		return VersionRange{}, nil
	}
	return ParseVersionRange(d.Range)
}

// Release is one published version of a package as listed by a source.
type Release struct {
	Number      string
	PublishedAt time.Time
	Status      VersionStatus
	DownloadURL string
}

// VersionStatus represents the status of a release.
type VersionStatus string

const (
	StatusNone       VersionStatus = ""
	StatusUnlisted   VersionStatus = "unlisted"
	StatusDeprecated VersionStatus = "deprecated"
)
