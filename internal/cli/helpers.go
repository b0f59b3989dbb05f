package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/picklr-io/pinmatrix/internal/builder"
	"github.com/picklr-io/pinmatrix/internal/engine"
	"github.com/picklr-io/pinmatrix/internal/eval"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/lockfile"
	"github.com/picklr-io/pinmatrix/internal/logging"
	"github.com/picklr-io/pinmatrix/internal/source"
)

// workspace is a loaded project together with the directory it lives in.
type workspace struct {
	dir      string
	manifest string
	project  *ir.Project
}

// loadWorkspace evaluates the manifest named by --file, or the one
// discovered in the current directory.
func loadWorkspace(ctx context.Context, opts *globalOptions) (*workspace, error) {
	manifest := opts.manifest
	if manifest == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		manifest, err = eval.Discover(wd)
		if err != nil {
			return nil, err
		}
	}

	abs, err := filepath.Abs(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", manifest, err)
	}
	dir := filepath.Dir(abs)

	project, err := eval.NewEvaluator(dir).LoadProject(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	return &workspace{dir: dir, manifest: abs, project: project}, nil
}

// newEngine wires the built-in source backends and builders.
func (w *workspace) newEngine(refresh bool) *engine.Engine {
	sources := source.NewRegistry(source.DefaultBackends(w.dir))
	sources.Refresh = refresh
	return engine.NewEngine(sources, builder.NewRegistry())
}

// withLock runs fn with the lockfile held, passing the currently stored lock.
// When fn returns a lock that pins anything differently it is written back.
func (w *workspace) withLock(ctx context.Context, fn func(*ir.Lock) (*ir.Lock, error)) error {
	backend, err := lockfile.NewBackend(w.project.Lock, w.dir)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := backend.Unlock(); err != nil {
			logging.Warn("failed to release lockfile", "error", err)
		}
	}()

	current, err := backend.Read(ctx)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if next != nil && lockfile.Changed(current, next) {
		if werr := backend.Write(ctx, next); werr != nil {
			return werr
		}
		logging.Info("lockfile updated", "sources", len(next.Sources))
	}
	return err
}
