package client

import "fmt"

// URLBuilder constructs URLs for a package source.
type URLBuilder interface {
	Gallery(name, version string) string
	Metadata(name string) string
	Download(name, version string) string
	PURL(name, version string) string
}

// BaseURLs provides a default URLBuilder implementation.
type BaseURLs struct {
	GalleryFn  func(name, version string) string
	MetadataFn func(name string) string
	DownloadFn func(name, version string) string
	PURLFn     func(name, version string) string
}

func (b *BaseURLs) Gallery(name, version string) string {
	if b.GalleryFn != nil {
		return b.GalleryFn(name, version)
	}
	return ""
}

func (b *BaseURLs) Metadata(name string) string {
	if b.MetadataFn != nil {
		return b.MetadataFn(name)
	}
	return ""
}

func (b *BaseURLs) Download(name, version string) string {
	if b.DownloadFn != nil {
		return b.DownloadFn(name, version)
	}
	return ""
}

func (b *BaseURLs) PURL(name, version string) string {
	if b.PURLFn != nil {
		return b.PURLFn(name, version)
	}
	if version != "" {
		return fmt.Sprintf("pkg:nuget/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:nuget/%s", name)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "gallery", "metadata", "download", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Gallery(name, version); v != "" {
		result["gallery"] = v
	}
	if v := urls.Metadata(name); v != "" {
		result["metadata"] = v
	}
	if v := urls.Download(name, version); v != "" {
		result["download"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}
