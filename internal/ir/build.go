package ir

// PlatformID identifies a target build platform, e.g. "x86_64-linux".
type PlatformID string

// BuildRequest describes one build invocation. It is constructed by the
// builder package and never mutated afterwards.
type BuildRequest struct {
	PackageName string
	SourcePath  string
	Platform    PlatformID
	ExtraInputs map[string]*ResolvedSource
	Toolchain   []string
}

// BuildArtifact is the opaque handle an external builder returns.
type BuildArtifact struct {
	Platform PlatformID `json:"platform"`
	Builder  string     `json:"builder"`
	ID       string     `json:"id"`
	Location string     `json:"location,omitempty"`
	Digest   string     `json:"digest,omitempty"`
}

// EnvDescriptor describes a development environment.
type EnvDescriptor struct {
	Name      string            `pkl:"name" yaml:"name,omitempty" json:"name"`
	Packages  []string          `pkl:"packages" yaml:"packages,omitempty" json:"packages,omitempty"`
	Env       map[string]string `pkl:"env" yaml:"env,omitempty" json:"env,omitempty"`
	ShellHook string            `pkl:"shellHook" yaml:"shellHook,omitempty" json:"shellHook,omitempty"`
	Shell     string            `pkl:"shell" yaml:"shell,omitempty" json:"shell,omitempty"`
}
