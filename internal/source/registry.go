package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Backend pins a locator target to concrete content. Implementations may
// block on network or disk I/O.
type Backend interface {
	Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, target string) (*ir.ResolvedSource, error)

func (f BackendFunc) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	return f(ctx, target)
}

// Registry resolves named source references. A Registry is scoped to one
// evaluation: every locator is fetched at most once for its lifetime.
type Registry struct {
	// Refresh ignores locked revisions and fetches every unpinned source.
	Refresh bool

	mu       sync.RWMutex
	backends map[string]Backend
	cache    map[string]*ir.ResolvedSource // keyed by locator
	group    singleflight.Group
}

func NewRegistry(backends map[string]Backend) *Registry {
	r := &Registry{
		backends: make(map[string]Backend),
		cache:    make(map[string]*ir.ResolvedSource),
	}
	for scheme, b := range backends {
		r.backends[scheme] = b
	}
	return r
}

// Register installs or replaces the backend for scheme.
func (r *Registry) Register(scheme string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = b
}

// Resolve pins every reference. The result has exactly one entry per unique
// reference name. Any failure aborts the whole resolution.
func (r *Registry) Resolve(ctx context.Context, refs []*ir.SourceRef, lock *ir.Lock) (map[string]*ir.ResolvedSource, error) {
	unique, err := dedupeRefs(refs)
	if err != nil {
		return nil, err
	}

	graph, err := BuildFollowGraph(unique)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*ir.SourceRef, len(unique))
	for _, ref := range unique {
		byName[ref.Name] = ref
	}

	var mu sync.Mutex
	resolved := make(map[string]*ir.ResolvedSource, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range unique {
		if ref.Follows != "" {
			continue
		}
		g.Go(func() error {
			src, err := r.resolveOne(gctx, ref, lock)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[ref.Name] = src
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, name := range graph.Order() {
		target := graph.Follows(name)
		if target == "" {
			continue
		}
		resolved[name] = resolved[target].Renamed(name)
		logging.Debug("source follows", "source", name, "follows", target)
	}

	return resolved, nil
}

func (r *Registry) resolveOne(ctx context.Context, ref *ir.SourceRef, lock *ir.Lock) (*ir.ResolvedSource, error) {
	loc, err := ParseLocator(ref.Locator)
	if err != nil {
		return nil, &ir.UnresolvableSourceError{Name: ref.Name, Locator: ref.Locator, Cause: err}
	}

	if ref.Pinned() {
		logging.Debug("source pinned in manifest", "source", ref.Name, "revision", ref.ResolvedRevision)
		return &ir.ResolvedSource{Name: ref.Name, Locator: ref.Locator, Revision: ref.ResolvedRevision}, nil
	}

	if !r.Refresh {
		if e, ok := lock.Lookup(ref.Name, ref.Locator); ok {
			logging.Debug("source locked", "source", ref.Name, "revision", e.Revision)
			src := &ir.ResolvedSource{
				Name:     ref.Name,
				Locator:  ref.Locator,
				Revision: e.Revision,
				Digest:   e.Digest,
			}
			if e.LastModified > 0 {
				src.LastModified = time.Unix(e.LastModified, 0).UTC()
			}
			return src, nil
		}
	}

	src, err := r.fetch(ctx, loc, ref.Locator)
	if err != nil {
		return nil, &ir.UnresolvableSourceError{Name: ref.Name, Locator: ref.Locator, Cause: err}
	}
	return src.Renamed(ref.Name), nil
}

// fetch returns the memoized resolution of locator, calling the backend at
// most once per locator even under concurrent callers.
func (r *Registry) fetch(ctx context.Context, loc Locator, locator string) (*ir.ResolvedSource, error) {
	r.mu.RLock()
	cached, ok := r.cache[locator]
	backend, known := r.backends[loc.Scheme]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if !known {
		return nil, fmt.Errorf("no resolution backend for scheme %q", loc.Scheme)
	}

	v, err, _ := r.group.Do(locator, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.cache[locator]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		start := time.Now()
		src, err := backend.Resolve(ctx, loc.Target)
		if err != nil {
			return nil, err
		}
		if src == nil || src.Revision == "" {
			return nil, fmt.Errorf("backend %q returned no revision", loc.Scheme)
		}
		src.Locator = locator
		logging.Info("resolved source", "locator", locator, "revision", src.Revision, "duration", time.Since(start))

		r.mu.Lock()
		r.cache[locator] = src
		r.mu.Unlock()
		return src, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ir.ResolvedSource), nil
}

// dedupeRefs enforces unique names. A name repeated with an identical
// definition is collapsed; any other repetition is a DuplicateNameError.
func dedupeRefs(refs []*ir.SourceRef) ([]*ir.SourceRef, error) {
	seen := make(map[string]*ir.SourceRef, len(refs))
	var out []*ir.SourceRef
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if ref.Name == "" {
			return nil, &ir.UnresolvableSourceError{Locator: ref.Locator, Cause: fmt.Errorf("source has no name")}
		}
		if ref.Locator == "" && ref.Follows == "" {
			return nil, &ir.UnresolvableSourceError{Name: ref.Name, Cause: fmt.Errorf("source has neither locator nor follows")}
		}
		if prev, ok := seen[ref.Name]; ok {
			if prev.Locator != ref.Locator || prev.Follows != ref.Follows || prev.ResolvedRevision != ref.ResolvedRevision {
				return nil, &ir.DuplicateNameError{
					Scope: "source",
					Name:  ref.Name,
					First: describeRef(prev),
					Other: describeRef(ref),
				}
			}
			continue
		}
		seen[ref.Name] = ref
		out = append(out, ref)
	}
	return out, nil
}

func describeRef(ref *ir.SourceRef) string {
	if ref.Follows != "" {
		return "follows " + ref.Follows
	}
	if ref.ResolvedRevision != "" {
		return ref.Locator + "@" + ref.ResolvedRevision
	}
	return ref.Locator
}
