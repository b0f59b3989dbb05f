package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/picklr-io/pinmatrix/internal/builder"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuilder struct {
	mu       sync.Mutex
	failOn   map[ir.PlatformID]error
	requests map[ir.PlatformID]*ir.BuildRequest
}

func newStubBuilder() *stubBuilder {
	return &stubBuilder{
		failOn:   map[ir.PlatformID]error{},
		requests: map[ir.PlatformID]*ir.BuildRequest{},
	}
}

func (b *stubBuilder) Name() string { return "stub" }

func (b *stubBuilder) Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error) {
	b.mu.Lock()
	b.requests[req.Platform] = req
	err := b.failOn[req.Platform]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &ir.BuildArtifact{ID: "artifact-" + string(req.Platform), Location: "stub://" + string(req.Platform)}, nil
}

func (b *stubBuilder) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

type fixture struct {
	engine  *Engine
	builder *stubBuilder
	fetches int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{builder: newStubBuilder()}

	var mu sync.Mutex
	sources := source.NewRegistry(map[string]source.Backend{
		"github": source.BackendFunc(func(ctx context.Context, target string) (*ir.ResolvedSource, error) {
			mu.Lock()
			f.fetches++
			mu.Unlock()
			if target == "org/missing" {
				return nil, errors.New("404 Not Found")
			}
			return &ir.ResolvedSource{Revision: "abc123"}, nil
		}),
	})

	builders := builder.NewRegistry()
	builders.Register(f.builder)

	f.engine = NewEngine(sources, builders)
	return f
}

func testProject() *ir.Project {
	return &ir.Project{
		Package:   &ir.PackageSpec{Name: "helix", SourcePath: "."},
		Sources:   []*ir.SourceRef{{Name: "pkg", Locator: "github:org/pkg"}},
		Platforms: []string{"linux-x64", "macos-arm64"},
		Builder:   &ir.BuilderSpec{Name: "stub"},
	}
}

func TestEvaluate_AllPlatformsSucceed(t *testing.T) {
	f := newFixture(t)

	ev, err := f.engine.Evaluate(context.Background(), testProject(), ir.NewLock(), Options{})
	require.NoError(t, err)
	require.NoError(t, ev.Err())

	assert.Equal(t, []string{"default", "linux-x64", "macos-arm64"}, ev.Outputs.Names())

	def, err := ev.Select(ir.DefaultOutput)
	require.NoError(t, err)
	linux, err := ev.Select("linux-x64")
	require.NoError(t, err)
	assert.Same(t, linux, def)
	assert.Equal(t, "artifact-linux-x64", def.Artifact.ID)
	assert.Equal(t, "stub", def.Artifact.Builder)

	req := f.builder.requests["macos-arm64"]
	require.NotNil(t, req)
	assert.Equal(t, "abc123", req.ExtraInputs["pkg"].Revision)
	assert.Equal(t, 1, f.fetches)

	require.Contains(t, ev.Lock.Sources, "pkg")
	assert.Equal(t, "abc123", ev.Lock.Sources["pkg"].Revision)
}

func TestEvaluate_OnePlatformFails(t *testing.T) {
	f := newFixture(t)
	f.builder.failOn["macos-arm64"] = errors.New("missing SDK")

	ev, err := f.engine.Evaluate(context.Background(), testProject(), ir.NewLock(), Options{})
	require.NoError(t, err)

	linux, err := ev.Select("linux-x64")
	require.NoError(t, err)
	assert.Equal(t, "artifact-linux-x64", linux.Artifact.ID)

	_, err = ev.Select("macos-arm64")
	var bf *ir.BuildFailedError
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, ir.PlatformID("macos-arm64"), bf.Platform)
	assert.ErrorContains(t, err, "missing SDK")

	assert.Equal(t, []ir.PlatformID{"macos-arm64"}, ev.FailedPlatforms())
	assert.Equal(t, ir.KindBuildFailed, ir.Kind(ev.Err()))

	def, err := ev.Select(ir.DefaultOutput)
	require.NoError(t, err)
	assert.Same(t, linux, def)
}

func TestEvaluate_PrimaryFails(t *testing.T) {
	f := newFixture(t)
	f.builder.failOn["linux-x64"] = errors.New("compiler crashed")

	ev, err := f.engine.Evaluate(context.Background(), testProject(), nil, Options{})
	require.NoError(t, err)

	_, ok := ev.Outputs.Get(ir.DefaultOutput)
	assert.False(t, ok)

	_, err = ev.Select(ir.DefaultOutput)
	var bf *ir.BuildFailedError
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, ir.PlatformID("linux-x64"), bf.Platform)
}

func TestEvaluate_UnknownOutput(t *testing.T) {
	f := newFixture(t)

	ev, err := f.engine.Evaluate(context.Background(), testProject(), nil, Options{})
	require.NoError(t, err)

	_, err = ev.Select("windows-x64")
	var unknown *ir.UnknownOutputError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Available, "linux-x64")
}

func TestEvaluate_UnresolvableSourceAborts(t *testing.T) {
	f := newFixture(t)
	project := testProject()
	project.Sources = append(project.Sources, &ir.SourceRef{Name: "gone", Locator: "github:org/missing"})

	ev, err := f.engine.Evaluate(context.Background(), project, nil, Options{})
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, ir.KindUnresolvableSource, ir.Kind(err))
	assert.Equal(t, 0, f.builder.calls())
}

func TestEvaluate_DevShellsAndToolchains(t *testing.T) {
	f := newFixture(t)
	project := testProject()
	project.Toolchains = map[string][]string{"*": {"go"}, "macos-arm64": {"xcode"}}
	project.DevShells = map[string]*ir.EnvDescriptor{
		"default": {Name: "default", Packages: []string{"go"}},
		"docs":    {Name: "docs", Packages: []string{"mdbook"}},
	}

	ev, err := f.engine.Evaluate(context.Background(), project, nil, Options{})
	require.NoError(t, err)

	shell, err := ev.Select("devShell")
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, shell.Env.Packages)
	_, err = ev.Select("devShell.docs")
	require.NoError(t, err)

	assert.Equal(t, []string{"go", "xcode"}, f.builder.requests["macos-arm64"].Toolchain)
	assert.Equal(t, []string{"go"}, f.builder.requests["linux-x64"].Toolchain)
}

func TestEvaluate_SystemsFilter(t *testing.T) {
	f := newFixture(t)

	ev, err := f.engine.Evaluate(context.Background(), testProject(), nil, Options{Systems: []ir.PlatformID{"macos-arm64"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "macos-arm64"}, ev.Outputs.Names())
	assert.Equal(t, ir.PlatformID("macos-arm64"), ev.Primary)
	assert.Equal(t, 1, f.builder.calls())

	_, err = f.engine.Evaluate(context.Background(), testProject(), nil, Options{Systems: []ir.PlatformID{"plan9-mips"}})
	assert.Equal(t, ir.KindUnknownOutputName, ir.Kind(err))
	assert.ErrorContains(t, err, `platform filter names unknown platform "plan9-mips"`)
	assert.NotContains(t, err.Error(), "unknown output")
}

func TestEvaluate_LockedRevisionSkipsFetch(t *testing.T) {
	f := newFixture(t)
	lock := ir.NewLock()
	lock.Lineage = "lineage-1"
	lock.Sources["pkg"] = &ir.LockedSource{Locator: "github:org/pkg", Revision: "def456"}

	ev, err := f.engine.Evaluate(context.Background(), testProject(), lock, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.fetches)
	assert.Equal(t, "def456", ev.Sources["pkg"].Revision)
	assert.Equal(t, "lineage-1", ev.Lock.Lineage)
}

func TestEvaluate_UnknownBuilder(t *testing.T) {
	f := newFixture(t)
	project := testProject()
	project.Builder = &ir.BuilderSpec{Name: "bazel"}

	_, err := f.engine.Evaluate(context.Background(), project, nil, Options{})
	assert.ErrorContains(t, err, "unknown builder")
}

func TestEvaluate_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev, err := f.engine.Evaluate(ctx, testProject(), nil, Options{})
	require.Error(t, err)
	assert.Nil(t, ev)
}

func TestWriteResult(t *testing.T) {
	f := newFixture(t)
	f.builder.failOn["macos-arm64"] = errors.New("missing SDK")

	ev, err := f.engine.Evaluate(context.Background(), testProject(), nil, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := WriteResult(dir, ev)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ResultDir, "result.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Result
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "linux-x64", got.Aliases["default"])
	assert.Equal(t, "artifact-linux-x64", got.Outputs["linux-x64"].Artifact.ID)
	assert.Contains(t, got.Failures["macos-arm64"], "missing SDK")
	assert.Equal(t, "abc123", got.Sources["pkg"].Revision)
}
