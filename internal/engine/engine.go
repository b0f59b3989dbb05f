package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/picklr-io/pinmatrix/internal/builder"
	"github.com/picklr-io/pinmatrix/internal/compose"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/lockfile"
	"github.com/picklr-io/pinmatrix/internal/logging"
	"github.com/picklr-io/pinmatrix/internal/matrix"
	"github.com/picklr-io/pinmatrix/internal/source"
)

// Engine evaluates a project: it resolves sources, builds the package on
// every platform and composes the outputs.
type Engine struct {
	sources  *source.Registry
	builders *builder.Registry
}

func NewEngine(sources *source.Registry, builders *builder.Registry) *Engine {
	return &Engine{
		sources:  sources,
		builders: builders,
	}
}

// Options adjust a single evaluation.
type Options struct {
	// Systems restricts the matrix to these platforms. Empty means all.
	Systems []ir.PlatformID
	// FailFast cancels remaining builds after the first failure. It is
	// combined with the manifest setting.
	FailFast bool
	// Parallelism overrides the manifest's matrix parallelism when positive.
	Parallelism int
	OnEvent     func(matrix.Event)
}

// Resolve pins the project's sources and returns them together with the
// lock that records them.
func (e *Engine) Resolve(ctx context.Context, project *ir.Project, lock *ir.Lock) (map[string]*ir.ResolvedSource, *ir.Lock, error) {
	logging.Debug("resolving sources", "sources", len(project.Sources))
	resolved, err := e.sources.Resolve(ctx, project.Sources, lock)
	if err != nil {
		return nil, nil, err
	}
	return resolved, lockfile.Update(lock, project.Sources, resolved), nil
}

// Evaluate runs a full evaluation. Resolution, duplicate-name and cancellation
// errors abort it; build failures are collected per platform in the result.
func (e *Engine) Evaluate(ctx context.Context, project *ir.Project, lock *ir.Lock, opts Options) (*Evaluation, error) {
	spec := project.Builder
	if spec == nil {
		spec = &ir.BuilderSpec{}
	}
	if err := e.builders.LoadBuilder(spec.Name, spec.Config); err != nil {
		return nil, fmt.Errorf("failed to load builder %s: %w", spec.Name, err)
	}
	b, err := e.builders.Get(spec.Name)
	if err != nil {
		return nil, err
	}

	mspec := project.Matrix
	if mspec == nil {
		mspec = &ir.MatrixSpec{}
	}
	timeout, err := builder.ParseTimeout(mspec.BuildTimeout)
	if err != nil {
		return nil, err
	}

	platforms, err := selectPlatforms(project.PlatformIDs(), opts.Systems)
	if err != nil {
		return nil, err
	}
	primary := project.PrimaryPlatform()
	if len(platforms) > 0 && !slices.Contains(platforms, primary) {
		primary = platforms[0]
	}

	resolved, nextLock, err := e.Resolve(ctx, project, lock)
	if err != nil {
		return nil, err
	}

	body := func(ctx context.Context, platform ir.PlatformID) (*ir.OutputSet, error) {
		req, err := builder.NewRequest(project.Package, platform, resolved, project.ToolchainFor(platform))
		if err != nil {
			return nil, &ir.BuildFailedError{Platform: platform, Cause: err}
		}
		artifact, err := builder.Invoke(ctx, req, b, timeout)
		if err != nil {
			return nil, err
		}
		out := ir.NewOutputSet()
		out.Entries[string(platform)] = &ir.OutputEntry{Artifact: artifact}
		return out, nil
	}

	parallelism := mspec.Parallelism
	if opts.Parallelism > 0 {
		parallelism = opts.Parallelism
	}

	start := time.Now()
	result, err := matrix.Expand(ctx, platforms, body, matrix.Options{
		FailFast:    mspec.FailFast || opts.FailFast,
		Parallelism: parallelism,
		OnEvent:     opts.OnEvent,
	})
	if err != nil {
		return nil, err
	}

	artifacts := make(map[ir.PlatformID]*ir.BuildArtifact, len(platforms))
	failures := make(map[ir.PlatformID]error)
	for _, p := range result.Platforms() {
		outcome := result.Outcomes[p]
		if outcome.Err != nil {
			failures[p] = asBuildFailed(p, outcome.Err)
			continue
		}
		if entry, ok := outcome.Outputs.Get(string(p)); ok && entry.Artifact != nil {
			artifacts[p] = entry.Artifact
		}
	}

	outputs, err := compose.Compose(artifacts, project.DevShells, primary)
	if err != nil {
		return nil, err
	}

	logging.Info("evaluation finished",
		"platforms", len(platforms),
		"built", len(artifacts),
		"failed", len(failures),
		"duration", time.Since(start),
	)

	return &Evaluation{
		Sources:  resolved,
		Lock:     nextLock,
		Outputs:  outputs,
		Failures: failures,
		Primary:  primary,
	}, nil
}

// selectPlatforms keeps the manifest order of all, restricted to systems.
func selectPlatforms(all, systems []ir.PlatformID) ([]ir.PlatformID, error) {
	if len(systems) == 0 {
		return all, nil
	}
	var out []ir.PlatformID
	for _, s := range systems {
		if !slices.Contains(all, s) {
			available := make([]string, 0, len(all))
			for _, p := range all {
				available = append(available, string(p))
			}
			return nil, &ir.UnknownOutputError{Name: string(s), Available: available, Filter: true}
		}
	}
	for _, p := range all {
		if slices.Contains(systems, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func asBuildFailed(p ir.PlatformID, err error) error {
	var bf *ir.BuildFailedError
	if errors.As(err, &bf) {
		return err
	}
	return &ir.BuildFailedError{Platform: p, Cause: err}
}

// Evaluation is the result of one Evaluate call.
type Evaluation struct {
	Sources  map[string]*ir.ResolvedSource
	Lock     *ir.Lock
	Outputs  *ir.OutputSet
	Failures map[ir.PlatformID]error
	Primary  ir.PlatformID
}

// FailedPlatforms returns the failed platforms in sorted order.
func (ev *Evaluation) FailedPlatforms() []ir.PlatformID {
	out := make([]ir.PlatformID, 0, len(ev.Failures))
	for p := range ev.Failures {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Err joins every platform failure, or returns nil when all builds succeeded.
func (ev *Evaluation) Err() error {
	var errs []error
	for _, p := range ev.FailedPlatforms() {
		errs = append(errs, ev.Failures[p])
	}
	return errors.Join(errs...)
}

// Select returns the output called name. A name belonging to a failed
// platform, including "default" when the primary failed, returns that
// platform's build failure; any other unknown name is an UnknownOutputError.
func (ev *Evaluation) Select(name string) (*ir.OutputEntry, error) {
	if entry, ok := ev.Outputs.Get(name); ok {
		return entry, nil
	}
	if name == ir.DefaultOutput {
		if err, failed := ev.Failures[ev.Primary]; failed {
			return nil, err
		}
	}
	if err, failed := ev.Failures[ir.PlatformID(name)]; failed {
		return nil, err
	}
	return nil, &ir.UnknownOutputError{Name: name, Available: ev.Outputs.Names()}
}
