package ir

// Project is the evaluated project manifest.
type Project struct {
	Package    *PackageSpec              `pkl:"package" yaml:"package"`
	Sources    []*SourceRef              `pkl:"sources" yaml:"sources"`
	Platforms  []string                  `pkl:"platforms" yaml:"platforms"`
	Primary    string                    `pkl:"primary" yaml:"primary,omitempty"`
	Builder    *BuilderSpec              `pkl:"builder" yaml:"builder,omitempty"`
	Toolchains map[string][]string       `pkl:"toolchains" yaml:"toolchains,omitempty"`
	DevShells  map[string]*EnvDescriptor `pkl:"devShells" yaml:"devShells,omitempty"`
	Matrix     *MatrixSpec               `pkl:"matrix" yaml:"matrix,omitempty"`
	Lock       *LockSpec                 `pkl:"lock" yaml:"lock,omitempty"`
}

// PackageSpec names the package built on every platform.
type PackageSpec struct {
	Name       string `pkl:"name" yaml:"name"`
	SourcePath string `pkl:"sourcePath" yaml:"sourcePath"`
}

// BuilderSpec selects the external builder and its settings.
type BuilderSpec struct {
	Name   string            `pkl:"name" yaml:"name"`
	Config map[string]string `pkl:"config" yaml:"config,omitempty"`
}

// MatrixSpec configures evaluation of the platform matrix.
type MatrixSpec struct {
	FailFast     bool   `pkl:"failFast" yaml:"failFast,omitempty"`
	Parallelism  int    `pkl:"parallelism" yaml:"parallelism,omitempty"`
	BuildTimeout string `pkl:"buildTimeout" yaml:"buildTimeout,omitempty"` // e.g. "30m"
}

// LockSpec selects where the lockfile is kept.
type LockSpec struct {
	Backend string            `pkl:"backend" yaml:"backend,omitempty"` // "local", "s3"
	Path    string            `pkl:"path" yaml:"path,omitempty"`
	Config  map[string]string `pkl:"config" yaml:"config,omitempty"`
}

// PlatformIDs returns the configured platforms in manifest order.
func (p *Project) PlatformIDs() []PlatformID {
	ids := make([]PlatformID, 0, len(p.Platforms))
	for _, s := range p.Platforms {
		ids = append(ids, PlatformID(s))
	}
	return ids
}

// PrimaryPlatform returns the platform the default output aliases.
func (p *Project) PrimaryPlatform() PlatformID {
	if p.Primary != "" {
		return PlatformID(p.Primary)
	}
	if len(p.Platforms) > 0 {
		return PlatformID(p.Platforms[0])
	}
	return ""
}

// ToolchainFor merges the wildcard and platform-specific toolchain packages,
// keeping first occurrence order.
func (p *Project) ToolchainFor(platform PlatformID) []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range []string{"*", string(platform)} {
		for _, pkg := range p.Toolchains[key] {
			if !seen[pkg] {
				seen[pkg] = true
				out = append(out, pkg)
			}
		}
	}
	return out
}
