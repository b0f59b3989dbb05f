package eval

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

func applyDefaults(p *ir.Project) {
	if p.Package != nil && p.Package.SourcePath == "" {
		p.Package.SourcePath = "."
	}
	if p.Builder == nil {
		p.Builder = &ir.BuilderSpec{}
	}
	if p.Builder.Name == "" {
		p.Builder.Name = "null"
	}
	if p.Matrix == nil {
		p.Matrix = &ir.MatrixSpec{}
	}
	for name, shell := range p.DevShells {
		if shell != nil && shell.Name == "" {
			shell.Name = name
		}
	}
}

// Validate checks a manifest after defaults have been applied.
func Validate(p *ir.Project) error {
	var errs []error

	if p.Package == nil || p.Package.Name == "" {
		errs = append(errs, errors.New("package name is required"))
	}

	seen := make(map[string]bool, len(p.Platforms))
	for _, platform := range p.Platforms {
		if platform == "" {
			errs = append(errs, errors.New("platform ids must not be empty"))
			continue
		}
		if seen[platform] {
			errs = append(errs, &ir.DuplicateNameError{Scope: "platform", Name: platform})
		}
		seen[platform] = true
	}
	if p.Primary != "" && !slices.Contains(p.Platforms, p.Primary) {
		errs = append(errs, fmt.Errorf("primary platform %q is not one of the platforms", p.Primary))
	}

	for key := range p.Toolchains {
		if key != "*" && !seen[key] {
			errs = append(errs, fmt.Errorf("toolchains declared for unknown platform %q", key))
		}
	}

	for name, shell := range p.DevShells {
		if shell == nil {
			errs = append(errs, fmt.Errorf("dev shell %q is empty", name))
			continue
		}
		if shell.Name != name {
			errs = append(errs, fmt.Errorf("dev shell %q declares mismatched name %q", name, shell.Name))
		}
	}

	if p.Matrix != nil {
		if p.Matrix.Parallelism < 0 {
			errs = append(errs, fmt.Errorf("matrix parallelism must not be negative, got %d", p.Matrix.Parallelism))
		}
		if s := p.Matrix.BuildTimeout; s != "" {
			if d, err := time.ParseDuration(s); err != nil || d <= 0 {
				errs = append(errs, fmt.Errorf("invalid matrix buildTimeout %q", s))
			}
		}
	}

	return errors.Join(errs...)
}
