package framework

import (
	"os"
	"runtime"
	"strings"

	"golang.org/x/text/language"
)

// Env describes the running environment that assets are selected for.
type Env struct {
	Framework Framework
	RuntimeID string
	Culture   string
}

// DetectEnv builds an environment from explicit settings, filling gaps from
// the host. Empty frameworkTag means DefaultTag, empty rid is derived from
// GOOS/GOARCH and empty culture is read from the locale variables.
func DetectEnv(frameworkTag, rid, culture string) Env {
	if strings.TrimSpace(frameworkTag) == "" {
		frameworkTag = DefaultTag
	}
	if strings.TrimSpace(rid) == "" {
		rid = HostRuntimeID()
	}
	if strings.TrimSpace(culture) == "" {
		culture = HostCulture()
	} else {
		culture = NormalizeCulture(culture)
	}
	return Env{
		Framework: Parse(frameworkTag),
		RuntimeID: strings.ToLower(strings.TrimSpace(rid)),
		Culture:   culture,
	}
}

// DefaultEnv is the host environment with the default framework.
func DefaultEnv() Env {
	return DetectEnv("", "", "")
}

// OSFamily returns the OS family of the environment's runtime identifier.
func (e Env) OSFamily() string {
	return OSFamily(e.RuntimeID)
}

// HostRuntimeID returns the runtime identifier of the current process.
func HostRuntimeID() string {
	return ridFor(runtime.GOOS, runtime.GOARCH)
}

func ridFor(goos, goarch string) string {
	osName := goos
	switch goos {
	case "windows":
		osName = "win"
	case "darwin":
		osName = "osx"
	}

	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}
	return osName + "-" + arch
}

// HostCulture reads the UI culture from LC_ALL, LC_MESSAGES or LANG.
func HostCulture() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return NormalizeCulture(v)
		}
	}
	return ""
}

// NormalizeCulture turns a POSIX locale ("de_DE.UTF-8") or a culture name
// into a BCP 47 tag ("de-DE"). The C and POSIX locales and unparsable
// values produce the invariant culture "".
func NormalizeCulture(locale string) string {
	s := strings.TrimSpace(locale)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || strings.EqualFold(s, "C") || strings.EqualFold(s, "POSIX") {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return ""
	}
	return tag.String()
}

var architectures = map[string]bool{
	"x64": true, "x86": true, "arm": true, "arm64": true, "armel": true, "armv6": true,
	"s390x": true, "ppc64le": true, "loongarch64": true, "riscv64": true, "mips64": true, "wasm": true,
}

var linuxDistros = map[string]bool{
	"ubuntu": true, "debian": true, "rhel": true, "centos": true, "fedora": true, "ol": true,
	"opensuse": true, "sles": true, "linuxmint": true, "tizen": true, "gentoo": true, "arch": true,
}

// OSFamily reduces a runtime identifier to its OS family: "win10-x64" is
// "win", "osx.10.12-x64" is "osx", "ubuntu.20.04-x64" is "linux" and
// "alpine-x64" is "linux-musl".
func OSFamily(rid string) string {
	rid = strings.ToLower(strings.TrimSpace(rid))
	if rid == "" {
		return ""
	}

	parts := strings.Split(rid, "-")
	if len(parts) > 1 && architectures[parts[len(parts)-1]] {
		parts = parts[:len(parts)-1]
	}

	base := parts[0]
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "0123456789")

	switch {
	case base == "alpine":
		return "linux-musl"
	case linuxDistros[base]:
		return "linux"
	case base == "linux" && len(parts) > 1 && parts[1] == "musl":
		return "linux-musl"
	case base == "linux" && len(parts) > 1 && parts[1] == "bionic":
		return "linux-bionic"
	}
	return base
}

// PlatformMatches reports whether an asset built for assetRID runs on an
// environment whose OS family is envFamily.
func PlatformMatches(assetRID, envFamily string) bool {
	asset := OSFamily(assetRID)
	switch {
	case asset == "" || asset == "any":
		return true
	case asset == envFamily:
		return true
	case asset == "unix":
		return envFamily != "" && envFamily != "win"
	case asset == "linux":
		return strings.HasPrefix(envFamily, "linux-")
	}
	return false
}
