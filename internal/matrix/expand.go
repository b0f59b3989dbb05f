package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds how many platforms are evaluated at once.
const DefaultParallelism = 4

// ErrSkipped marks platforms never evaluated because fail-fast stopped the matrix.
var ErrSkipped = errors.New("skipped after another platform failed")

// Body evaluates one platform.
type Body func(ctx context.Context, platform ir.PlatformID) (*ir.OutputSet, error)

// Event is a progress notification for one platform.
type Event struct {
	Platform ir.PlatformID
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Err      error
}

// Options configures Expand.
type Options struct {
	// FailFast stops the remaining platforms after the first failure.
	// The default isolates failures per platform.
	FailFast    bool
	Parallelism int
	OnEvent     func(Event)
}

// Outcome is the result of evaluating one platform: Outputs on success, Err otherwise.
type Outcome struct {
	Platform ir.PlatformID
	Outputs  *ir.OutputSet
	Err      error
	Duration time.Duration
}

// Result holds exactly one outcome per requested platform.
type Result struct {
	Outcomes map[ir.PlatformID]*Outcome
	order    []ir.PlatformID
}

// Platforms returns the evaluated platforms in request order.
func (r *Result) Platforms() []ir.PlatformID {
	return r.order
}

// Failures returns the failed outcomes in request order.
func (r *Result) Failures() []*Outcome {
	var out []*Outcome
	for _, p := range r.order {
		if o := r.Outcomes[p]; o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins every platform failure, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Expand applies body once per platform, in parallel up to opts.Parallelism.
// An empty platform list yields an empty result. Duplicate platforms fail
// before any evaluation. If ctx is cancelled the partial result is discarded.
func Expand(ctx context.Context, platforms []ir.PlatformID, body Body, opts Options) (*Result, error) {
	seen := make(map[ir.PlatformID]bool, len(platforms))
	for _, p := range platforms {
		if p == "" {
			return nil, fmt.Errorf("empty platform identifier in matrix")
		}
		if seen[p] {
			return nil, &ir.DuplicateNameError{Scope: "platform", Name: string(p)}
		}
		seen[p] = true
	}

	res := &Result{
		Outcomes: make(map[ir.PlatformID]*Outcome, len(platforms)),
		order:    append([]ir.PlatformID(nil), platforms...),
	}
	if len(platforms) == 0 {
		return res, nil
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	emit := func(e Event) {
		if opts.OnEvent != nil {
			opts.OnEvent(e)
		}
	}

	var mu sync.Mutex
	record := func(o *Outcome) {
		mu.Lock()
		res.Outcomes[o.Platform] = o
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, platform := range platforms {
		g.Go(func() error {
			if gctx.Err() != nil {
				record(&Outcome{Platform: platform, Err: ErrSkipped})
				emit(Event{Platform: platform, Status: "skipped", Err: ErrSkipped})
				return nil
			}

			start := time.Now()
			emit(Event{Platform: platform, Status: "started"})
			logging.Debug("evaluating platform", "platform", platform)

			outputs, err := body(gctx, platform)
			o := &Outcome{Platform: platform, Outputs: outputs, Err: err, Duration: time.Since(start)}
			record(o)

			if err != nil {
				emit(Event{Platform: platform, Status: "failed", Duration: o.Duration, Err: err})
				if opts.FailFast {
					return err
				}
				return nil
			}
			emit(Event{Platform: platform, Status: "completed", Duration: o.Duration})
			return nil
		})
	}

	// Failures are kept per platform in the outcomes, not returned here.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("matrix evaluation interrupted: %w", err)
	}
	return res, nil
}
