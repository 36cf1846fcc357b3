package core

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PURLType is the package URL type of NuGet packages.
const PURLType = "nuget"

// PURL wraps packageurl.PackageURL with identity helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package ID. NuGet IDs have no namespace, but a
// namespace is joined with "." if present.
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "." + p.Name
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:nuget/Serilog) and version PURLs (pkg:nuget/Serilog@3.1.0).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// IdentityFromPURL returns the identity and version range named by a
// versioned pkg:nuget URL. The version may be a range.
func IdentityFromPURL(purl string) (string, VersionRange, error) {
	p, err := ParsePURL(purl)
	if err != nil {
		return "", VersionRange{}, err
	}
	if !strings.EqualFold(p.Type, PURLType) {
		return "", VersionRange{}, fmt.Errorf("unsupported package type %q", p.Type)
	}
	if p.Version == "" {
		return "", VersionRange{}, fmt.Errorf("PURL has no version: %s", purl)
	}
	rng, err := ParseVersionRange(p.Version)
	if err != nil {
		return "", VersionRange{}, err
	}
	return p.FullName(), rng, nil
}

// ToPURL returns the package URL of id.
func (id Identity) ToPURL() string {
	return packageurl.NewPackageURL(PURLType, "", id.Name, id.Version.String(), nil, "").ToString()
}
