package eval

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

// hclProject is the top-level structure of a pinmatrix.hcl file.
type hclProject struct {
	Package    *hclPackage         `hcl:"package,block"`
	Sources    []*hclSource        `hcl:"source,block"`
	Platforms  []string            `hcl:"platforms,optional"`
	Primary    string              `hcl:"primary,optional"`
	Builder    *hclBuilder         `hcl:"builder,block"`
	Toolchains map[string][]string `hcl:"toolchains,optional"`
	DevShells  []*hclDevShell      `hcl:"dev_shell,block"`
	Matrix     *hclMatrix          `hcl:"matrix,block"`
	Lock       *hclLock            `hcl:"lock,block"`
}

type hclPackage struct {
	Name       string `hcl:"name,label"`
	SourcePath string `hcl:"source_path,optional"`
}

type hclSource struct {
	Name     string `hcl:"name,label"`
	Locator  string `hcl:"locator,optional"`
	Revision string `hcl:"revision,optional"`
	Follows  string `hcl:"follows,optional"`
}

type hclBuilder struct {
	Name   string            `hcl:"name,label"`
	Config map[string]string `hcl:"config,optional"`
}

type hclDevShell struct {
	Name      string            `hcl:"name,label"`
	Packages  []string          `hcl:"packages,optional"`
	Env       map[string]string `hcl:"env,optional"`
	ShellHook string            `hcl:"shell_hook,optional"`
	Shell     string            `hcl:"shell,optional"`
}

type hclMatrix struct {
	FailFast     bool   `hcl:"fail_fast,optional"`
	Parallelism  int    `hcl:"parallelism,optional"`
	BuildTimeout string `hcl:"build_timeout,optional"`
}

type hclLock struct {
	Backend string            `hcl:"backend,optional"`
	Path    string            `hcl:"path,optional"`
	Config  map[string]string `hcl:"config,optional"`
}

func loadHCL(path string) (*ir.Project, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclProject
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	return parsed.project()
}

func (p *hclProject) project() (*ir.Project, error) {
	project := &ir.Project{
		Platforms:  p.Platforms,
		Primary:    p.Primary,
		Toolchains: p.Toolchains,
	}
	if p.Package != nil {
		project.Package = &ir.PackageSpec{Name: p.Package.Name, SourcePath: p.Package.SourcePath}
	}
	for _, s := range p.Sources {
		project.Sources = append(project.Sources, &ir.SourceRef{
			Name:             s.Name,
			Locator:          s.Locator,
			ResolvedRevision: s.Revision,
			Follows:          s.Follows,
		})
	}
	if p.Builder != nil {
		project.Builder = &ir.BuilderSpec{Name: p.Builder.Name, Config: p.Builder.Config}
	}
	if len(p.DevShells) > 0 {
		project.DevShells = make(map[string]*ir.EnvDescriptor, len(p.DevShells))
		for _, s := range p.DevShells {
			if _, dup := project.DevShells[s.Name]; dup {
				return nil, &ir.DuplicateNameError{Scope: "dev_shell", Name: s.Name}
			}
			project.DevShells[s.Name] = &ir.EnvDescriptor{
				Name:      s.Name,
				Packages:  s.Packages,
				Env:       s.Env,
				ShellHook: s.ShellHook,
				Shell:     s.Shell,
			}
		}
	}
	if p.Matrix != nil {
		project.Matrix = &ir.MatrixSpec{
			FailFast:     p.Matrix.FailFast,
			Parallelism:  p.Matrix.Parallelism,
			BuildTimeout: p.Matrix.BuildTimeout,
		}
	}
	if p.Lock != nil {
		project.Lock = &ir.LockSpec{Backend: p.Lock.Backend, Path: p.Lock.Path, Config: p.Lock.Config}
	}
	return project, nil
}
