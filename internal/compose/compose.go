package compose

import (
	"fmt"
	"sort"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// EnvOutputName returns the output name a development environment is
// exposed under: "devShell" for the default shell, "devShell.<name>" otherwise.
func EnvOutputName(name string) string {
	if name == "" || name == ir.DefaultOutput {
		return "devShell"
	}
	return "devShell." + name
}

// Compose merges per-platform artifacts and auxiliary environment descriptors
// into one output set. Artifacts are named by platform. The "default" alias
// points at primary's artifact and is omitted when primary has none. Any
// name claimed twice fails with a DuplicateNameError.
func Compose(perPlatform map[ir.PlatformID]*ir.BuildArtifact, auxiliary map[string]*ir.EnvDescriptor, primary ir.PlatformID) (*ir.OutputSet, error) {
	out := ir.NewOutputSet()
	origin := make(map[string]string)

	claim := func(name, what string, entry *ir.OutputEntry) error {
		if name == ir.DefaultOutput {
			return &ir.DuplicateNameError{Scope: "output", Name: name, First: "default alias", Other: what}
		}
		if prev, ok := origin[name]; ok {
			return &ir.DuplicateNameError{Scope: "output", Name: name, First: prev, Other: what}
		}
		origin[name] = what
		out.Entries[name] = entry
		return nil
	}

	platforms := make([]string, 0, len(perPlatform))
	for p := range perPlatform {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		artifact := perPlatform[ir.PlatformID(p)]
		if artifact == nil {
			continue
		}
		if err := claim(p, "artifact for "+p, &ir.OutputEntry{Artifact: artifact}); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(auxiliary))
	for n := range auxiliary {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		env := auxiliary[n]
		if env == nil {
			continue
		}
		if err := claim(EnvOutputName(n), fmt.Sprintf("dev shell %q", n), &ir.OutputEntry{Env: env}); err != nil {
			return nil, err
		}
	}

	if entry, ok := out.Entries[string(primary)]; ok && entry.Artifact != nil {
		out.Aliases[ir.DefaultOutput] = string(primary)
	}
	return out, nil
}
