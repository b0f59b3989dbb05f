package docker

import (
	"fmt"
	"strings"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

var osAliases = map[string]string{
	"linux":   "linux",
	"darwin":  "darwin",
	"macos":   "darwin",
	"windows": "windows",
	"freebsd": "freebsd",
}

var archAliases = map[string]v1.Platform{
	"x86_64":  {Architecture: "amd64"},
	"amd64":   {Architecture: "amd64"},
	"x64":     {Architecture: "amd64"},
	"aarch64": {Architecture: "arm64"},
	"arm64":   {Architecture: "arm64"},
	"i686":    {Architecture: "386"},
	"x86":     {Architecture: "386"},
	"386":     {Architecture: "386"},
	"armv7l":  {Architecture: "arm", Variant: "v7"},
	"armv6l":  {Architecture: "arm", Variant: "v6"},
	"riscv64": {Architecture: "riscv64"},
}

// ParsePlatform maps a platform id to an OCI platform. It accepts OCI form
// ("linux/arm64/v8") as well as "arch-os" ("x86_64-linux") and "os-arch"
// ("macos-arm64") identifiers.
func ParsePlatform(id ir.PlatformID) (v1.Platform, error) {
	s := strings.ToLower(string(id))

	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return v1.Platform{}, fmt.Errorf("invalid OCI platform %q", id)
		}
		p := v1.Platform{OS: parts[0], Architecture: parts[1]}
		if len(parts) == 3 {
			p.Variant = parts[2]
		}
		return p, nil
	}

	first, second, ok := strings.Cut(s, "-")
	if !ok {
		return v1.Platform{}, fmt.Errorf("platform %q is not of the form arch-os or os-arch", id)
	}

	archPart, osPart := first, second
	if _, isOS := osAliases[first]; isOS {
		archPart, osPart = second, first
	}

	osName, ok := osAliases[osPart]
	if !ok {
		return v1.Platform{}, fmt.Errorf("platform %q has unknown operating system %q", id, osPart)
	}
	arch, ok := archAliases[archPart]
	if !ok {
		return v1.Platform{}, fmt.Errorf("platform %q has unknown architecture %q", id, archPart)
	}
	arch.OS = osName
	return arch, nil
}

// FormatPlatform renders p in the "os/arch[/variant]" form the Engine API expects.
func FormatPlatform(p v1.Platform) string {
	s := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		s += "/" + p.Variant
	}
	return s
}
