package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NuGetConfigName is the file NuGet tools read source settings from.
const NuGetConfigName = "nuget.config"

// NuGetConfig holds the settings read from a nuget.config chain.
type NuGetConfig struct {
	Sources              []SourceConfig
	GlobalPackagesFolder string
	Files                []string // files applied, nearest last
}

type nugetConfigXML struct {
	Config   sectionXML `xml:"config"`
	Sources  sectionXML `xml:"packageSources"`
	Disabled sectionXML `xml:"disabledPackageSources"`
}

type sectionXML struct {
	Items []itemXML `xml:",any"`
}

type itemXML struct {
	XMLName xml.Name
	Key     string `xml:"key,attr"`
	Value   string `xml:"value,attr"`
}

// findConfigFile returns the nuget.config in dir, matching the name
// case-insensitively.
func findConfigFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), NuGetConfigName) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// FindNuGetConfigs returns the nuget.config files from dir up to the file
// system root, farthest first.
func FindNuGetConfigs(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil
	}
	var found []string
	for {
		if p, ok := findConfigFile(abs); ok {
			found = append([]string{p}, found...)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return found
		}
		abs = parent
	}
}

// LoadNuGetConfig applies the nuget.config chain above dir. Nearer files
// override farther ones; <clear/> drops the sources collected so far.
func LoadNuGetConfig(dir string) (*NuGetConfig, error) {
	nc := &NuGetConfig{}
	disabled := make(map[string]bool)

	for _, p := range FindNuGetConfigs(dir) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		d, err := nc.apply(data, filepath.Dir(p))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		for k, v := range d {
			disabled[k] = v
		}
		nc.Files = append(nc.Files, p)
	}

	nc.dropDisabled(disabled)
	return nc, nil
}

// ParseNuGetConfig reads a single nuget.config. Relative local paths are
// resolved against baseDir.
func ParseNuGetConfig(data []byte, baseDir string) (*NuGetConfig, error) {
	nc := &NuGetConfig{}
	disabled, err := nc.apply(data, baseDir)
	if err != nil {
		return nil, err
	}
	nc.dropDisabled(disabled)
	return nc, nil
}

func (nc *NuGetConfig) dropDisabled(disabled map[string]bool) {
	enabled := nc.Sources[:0]
	for _, s := range nc.Sources {
		if !disabled[strings.ToLower(s.Name)] {
			enabled = append(enabled, s)
		}
	}
	nc.Sources = enabled
}

func (nc *NuGetConfig) apply(data []byte, baseDir string) (map[string]bool, error) {
	var doc nugetConfigXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	for _, item := range doc.Config.Items {
		if strings.EqualFold(item.Key, "globalPackagesFolder") && item.Value != "" {
			nc.GlobalPackagesFolder = localPath(item.Value, baseDir)
		}
	}

	for _, item := range doc.Sources.Items {
		switch strings.ToLower(item.XMLName.Local) {
		case "clear":
			nc.Sources = nil
		case "add":
			if item.Key == "" || item.Value == "" {
				continue
			}
			nc.upsert(sourceFor(item.Key, item.Value, baseDir))
		case "remove":
			nc.remove(item.Key)
		}
	}

	disabled := make(map[string]bool)
	for _, item := range doc.Disabled.Items {
		if strings.EqualFold(item.XMLName.Local, "add") {
			disabled[strings.ToLower(item.Key)] = strings.EqualFold(item.Value, "true")
		}
	}
	return disabled, nil
}

func (nc *NuGetConfig) upsert(s SourceConfig) {
	for i, existing := range nc.Sources {
		if strings.EqualFold(existing.Name, s.Name) {
			nc.Sources[i] = s
			return
		}
	}
	nc.Sources = append(nc.Sources, s)
}

func (nc *NuGetConfig) remove(name string) {
	for i, existing := range nc.Sources {
		if strings.EqualFold(existing.Name, name) {
			nc.Sources = append(nc.Sources[:i], nc.Sources[i+1:]...)
			return
		}
	}
}

// sourceFor infers the kind of a source from its value.
func sourceFor(name, value, baseDir string) SourceConfig {
	if KindForURL(value) == "nuget" {
		return SourceConfig{Name: name, URL: value, Kind: "nuget"}
	}
	return SourceConfig{Name: name, URL: localPath(value, baseDir), Kind: "local"}
}

// KindForURL returns "nuget" for http(s) URLs and "local" for anything else.
func KindForURL(u string) string {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "nuget"
	}
	return "local"
}

func localPath(p, baseDir string) string {
	p = strings.TrimPrefix(p, "file://")
	p = filepath.FromSlash(strings.ReplaceAll(p, "\\", "/"))
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return p
}
