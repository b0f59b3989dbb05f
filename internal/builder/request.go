package builder

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// NewRequest constructs the immutable request for one platform build. The
// resolved sources and toolchain list are copied so later changes by the
// caller are not observed by the builder.
func NewRequest(pkg *ir.PackageSpec, platform ir.PlatformID, sources map[string]*ir.ResolvedSource, toolchain []string) (*ir.BuildRequest, error) {
	if pkg == nil {
		return nil, errors.New("build request requires a package")
	}
	if pkg.Name == "" {
		return nil, errors.New("build request requires a package name")
	}
	if pkg.SourcePath == "" {
		return nil, fmt.Errorf("package %q has no source path", pkg.Name)
	}
	if platform == "" {
		return nil, fmt.Errorf("package %q: build request requires a platform", pkg.Name)
	}

	inputs := make(map[string]*ir.ResolvedSource, len(sources))
	for name, src := range sources {
		c := *src
		inputs[name] = &c
	}

	return &ir.BuildRequest{
		PackageName: pkg.Name,
		SourcePath:  pkg.SourcePath,
		Platform:    platform,
		ExtraInputs: inputs,
		Toolchain:   slices.Clone(toolchain),
	}, nil
}

// InputNames returns the request's input names, sorted.
func InputNames(req *ir.BuildRequest) []string {
	return slices.Sorted(maps.Keys(req.ExtraInputs))
}
