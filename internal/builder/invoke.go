package builder

import (
	"context"
	"errors"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
)

// Builder is an external build backend. It receives a complete request and
// returns an opaque artifact handle.
type Builder interface {
	Name() string
	Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error)
}

// Invoke delegates req to b exactly once. Any failure is reported as a
// BuildFailedError carrying the builder's error unchanged; builds are
// deterministic, so nothing is retried.
func Invoke(ctx context.Context, req *ir.BuildRequest, b Builder, timeout time.Duration) (*ir.BuildArtifact, error) {
	if b == nil {
		return nil, &ir.BuildFailedError{Platform: req.Platform, Cause: errors.New("no builder configured")}
	}

	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	log := logging.With("platform", req.Platform, "package", req.PackageName, "builder", b.Name())
	log.Debug("invoking builder", "inputs", InputNames(req), "toolchain", req.Toolchain)

	start := time.Now()
	artifact, err := b.Build(ctx, req)
	if err != nil {
		log.Warn("build failed", "error", err, "duration", time.Since(start))
		return nil, &ir.BuildFailedError{Platform: req.Platform, Cause: err}
	}
	if artifact == nil {
		return nil, &ir.BuildFailedError{Platform: req.Platform, Cause: errors.New("builder returned no artifact")}
	}

	// The builder's handle is left untouched; defaults go on a copy.
	a := *artifact
	if a.Platform == "" {
		a.Platform = req.Platform
	}
	if a.Builder == "" {
		a.Builder = b.Name()
	}
	log.Info("build completed", "artifact", a.ID, "duration", time.Since(start))
	return &a, nil
}
