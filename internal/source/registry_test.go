package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend returns "rev-<target>" and counts calls per target.
type countingBackend struct {
	mu    sync.Mutex
	calls map[string]int
	delay time.Duration
	fail  map[string]error
}

func newCountingBackend() *countingBackend {
	return &countingBackend{calls: make(map[string]int), fail: make(map[string]error)}
}

func (b *countingBackend) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	b.mu.Lock()
	b.calls[target]++
	err := b.fail[target]
	b.mu.Unlock()
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if err != nil {
		return nil, err
	}
	return &ir.ResolvedSource{Revision: "rev-" + target}, nil
}

func (b *countingBackend) count(target string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[target]
}

func TestResolve_KeySetMatchesInput(t *testing.T) {
	backend := newCountingBackend()
	reg := NewRegistry(map[string]Backend{"github": backend})

	refs := []*ir.SourceRef{
		{Name: "nixpkgs", Locator: "github:NixOS/nixpkgs"},
		{Name: "rust-overlay", Locator: "github:oxalica/rust-overlay"},
		{Name: "utils", Locator: "github:numtide/flake-utils"},
	}

	got, err := reg.Resolve(context.Background(), refs, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, ref := range refs {
		src, ok := got[ref.Name]
		require.True(t, ok, ref.Name)
		assert.Equal(t, ref.Name, src.Name)
		assert.Equal(t, ref.Locator, src.Locator)
		assert.NotEmpty(t, src.Revision)
	}
}

func TestResolve_MemoizesLocator(t *testing.T) {
	backend := newCountingBackend()
	backend.delay = 20 * time.Millisecond
	reg := NewRegistry(map[string]Backend{"github": backend})

	refs := []*ir.SourceRef{
		{Name: "a", Locator: "github:org/pkg"},
		{Name: "b", Locator: "github:org/pkg"},
	}

	got, err := reg.Resolve(context.Background(), refs, nil)
	require.NoError(t, err)
	assert.Equal(t, got["a"].Revision, got["b"].Revision)
	assert.Equal(t, 1, backend.count("org/pkg"))

	// A second resolution within the same evaluation reuses the cache.
	again, err := reg.Resolve(context.Background(), refs[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, got["a"].Revision, again["a"].Revision)
	assert.Equal(t, 1, backend.count("org/pkg"))
}

func TestResolve_ConcurrentCallersShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	backend := BackendFunc(func(ctx context.Context, target string) (*ir.ResolvedSource, error) {
		calls.Add(1)
		<-release
		return &ir.ResolvedSource{Revision: "abc"}, nil
	})
	reg := NewRegistry(map[string]Backend{"github": backend})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Resolve(context.Background(), []*ir.SourceRef{
				{Name: fmt.Sprintf("s%d", i), Locator: "github:org/pkg"},
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_DuplicateName(t *testing.T) {
	reg := NewRegistry(map[string]Backend{"github": newCountingBackend()})

	_, err := reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "pkg", Locator: "github:org/one"},
		{Name: "pkg", Locator: "github:org/two"},
	}, nil)

	var dup *ir.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "pkg", dup.Name)
	assert.Equal(t, ir.KindDuplicateName, ir.Kind(err))
}

func TestResolve_IdenticalRepeatIsCollapsed(t *testing.T) {
	reg := NewRegistry(map[string]Backend{"github": newCountingBackend()})

	got, err := reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "pkg", Locator: "github:org/one"},
		{Name: "pkg", Locator: "github:org/one"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolve_Unresolvable(t *testing.T) {
	backend := newCountingBackend()
	backend.fail["org/missing"] = errors.New("404 Not Found")
	reg := NewRegistry(map[string]Backend{"github": backend})

	tests := []struct {
		name    string
		locator string
		cause   string
	}{
		{"fetch failure", "github:org/missing", "404 Not Found"},
		{"unknown scheme", "gitlab:org/pkg", `no resolution backend for scheme "gitlab"`},
		{"no scheme", "org/pkg", "has no scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(context.Background(), []*ir.SourceRef{
				{Name: "pkg", Locator: tt.locator},
			}, nil)

			var unresolvable *ir.UnresolvableSourceError
			require.ErrorAs(t, err, &unresolvable)
			assert.Equal(t, "pkg", unresolvable.Name)
			assert.Contains(t, err.Error(), tt.cause)
		})
	}
}

func TestResolve_PinnedSkipsFetch(t *testing.T) {
	backend := newCountingBackend()
	reg := NewRegistry(map[string]Backend{"github": backend})

	got, err := reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "pkg", Locator: "github:org/pkg", ResolvedRevision: "abc123"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got["pkg"].Revision)
	assert.Equal(t, 0, backend.count("org/pkg"))
}

func TestResolve_LockShortCircuit(t *testing.T) {
	backend := newCountingBackend()
	lock := ir.NewLock()
	lock.Sources["pkg"] = &ir.LockedSource{Locator: "github:org/pkg", Revision: "locked"}
	lock.Sources["moved"] = &ir.LockedSource{Locator: "github:org/old", Revision: "stale"}

	refs := []*ir.SourceRef{
		{Name: "pkg", Locator: "github:org/pkg"},
		{Name: "moved", Locator: "github:org/new"},
	}

	reg := NewRegistry(map[string]Backend{"github": backend})
	got, err := reg.Resolve(context.Background(), refs, lock)
	require.NoError(t, err)
	assert.Equal(t, "locked", got["pkg"].Revision)
	assert.Equal(t, "rev-org/new", got["moved"].Revision)
	assert.Equal(t, 0, backend.count("org/pkg"))

	refreshing := NewRegistry(map[string]Backend{"github": backend})
	refreshing.Refresh = true
	got, err = refreshing.Resolve(context.Background(), refs, lock)
	require.NoError(t, err)
	assert.Equal(t, "rev-org/pkg", got["pkg"].Revision)
	assert.Equal(t, 1, backend.count("org/pkg"))
}

func TestResolve_Follows(t *testing.T) {
	backend := newCountingBackend()
	reg := NewRegistry(map[string]Backend{"github": backend})

	got, err := reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "overlay-nixpkgs", Follows: "nixpkgs"},
		{Name: "nixpkgs", Locator: "github:NixOS/nixpkgs"},
		{Name: "chained", Follows: "overlay-nixpkgs"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, got["nixpkgs"].Revision, got["overlay-nixpkgs"].Revision)
	assert.Equal(t, got["nixpkgs"].Revision, got["chained"].Revision)
	assert.Equal(t, "chained", got["chained"].Name)
	assert.Equal(t, 1, backend.count("NixOS/nixpkgs"))
}

func TestResolve_FollowsErrors(t *testing.T) {
	reg := NewRegistry(map[string]Backend{"github": newCountingBackend()})

	_, err := reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "a", Follows: "missing"},
	}, nil)
	assert.Equal(t, ir.KindUnresolvableSource, ir.Kind(err))
	assert.Contains(t, err.Error(), "follows unknown source")

	_, err = reg.Resolve(context.Background(), []*ir.SourceRef{
		{Name: "a", Follows: "b"},
		{Name: "b", Follows: "a"},
	}, nil)
	assert.Equal(t, ir.KindUnresolvableSource, ir.Kind(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestResolve_EmptyInput(t *testing.T) {
	reg := NewRegistry(nil)
	got, err := reg.Resolve(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
