package framework

import "testing"

func TestOSFamily(t *testing.T) {
	tests := []struct {
		rid  string
		want string
	}{
		{"win-x64", "win"},
		{"win10-arm64", "win"},
		{"win", "win"},
		{"linux-x64", "linux"},
		{"linux-musl-x64", "linux-musl"},
		{"linux-bionic-arm64", "linux-bionic"},
		{"alpine.3.18-x64", "linux-musl"},
		{"ubuntu.20.04-x64", "linux"},
		{"rhel.8-x64", "linux"},
		{"osx-arm64", "osx"},
		{"osx.10.12-x64", "osx"},
		{"freebsd-x64", "freebsd"},
		{"unix", "unix"},
		{"any", "any"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.rid, func(t *testing.T) {
			if got := OSFamily(tt.rid); got != tt.want {
				t.Errorf("OSFamily(%q) = %q, want %q", tt.rid, got, tt.want)
			}
		})
	}
}

func TestPlatformMatches(t *testing.T) {
	tests := []struct {
		asset  string
		family string
		want   bool
	}{
		{"win-x64", "win", true},
		{"win", "win", true},
		{"win-x64", "linux", false},
		{"linux-x64", "linux", true},
		{"linux-x64", "linux-musl", true},
		{"linux-musl-x64", "linux", false},
		{"unix", "osx", true},
		{"unix", "win", false},
		{"any", "win", true},
	}

	for _, tt := range tests {
		if got := PlatformMatches(tt.asset, tt.family); got != tt.want {
			t.Errorf("PlatformMatches(%q, %q) = %v, want %v", tt.asset, tt.family, got, tt.want)
		}
	}
}

func TestRIDFor(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"windows", "amd64", "win-x64"},
		{"darwin", "arm64", "osx-arm64"},
		{"linux", "386", "linux-x86"},
		{"linux", "arm", "linux-arm"},
		{"freebsd", "amd64", "freebsd-x64"},
	}
	for _, tt := range tests {
		if got := ridFor(tt.goos, tt.goarch); got != tt.want {
			t.Errorf("ridFor(%s, %s) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestNormalizeCulture(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"de_DE.UTF-8", "de-DE"},
		{"en_US", "en-US"},
		{"fr", "fr"},
		{"zh-Hans", "zh-Hans"},
		{"C", ""},
		{"POSIX", ""},
		{"C.UTF-8", ""},
		{"", ""},
		{"!!", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCulture(tt.in); got != tt.want {
			t.Errorf("NormalizeCulture(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "ja_JP.UTF-8")

	env := DetectEnv("", "", "")
	if env.Framework.String() != DefaultTag {
		t.Errorf("Framework = %s, want %s", env.Framework, DefaultTag)
	}
	if env.RuntimeID != HostRuntimeID() {
		t.Errorf("RuntimeID = %q, want %q", env.RuntimeID, HostRuntimeID())
	}
	if env.Culture != "ja-JP" {
		t.Errorf("Culture = %q, want ja-JP", env.Culture)
	}

	env = DetectEnv("net472", "Win10-X64", "en_GB")
	if env.Framework.Identifier != NetFramework || env.OSFamily() != "win" || env.Culture != "en-GB" {
		t.Errorf("DetectEnv = %+v", env)
	}
}
