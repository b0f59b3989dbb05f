package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuilder struct {
	calls    int
	err      error
	artifact *ir.BuildArtifact
	wait     bool
}

func (s *stubBuilder) Name() string { return "stub" }

func (s *stubBuilder) Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error) {
	s.calls++
	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.artifact, s.err
}

func TestNewRequest_Validation(t *testing.T) {
	tests := []struct {
		name     string
		pkg      *ir.PackageSpec
		platform ir.PlatformID
		errText  string
	}{
		{"nil package", nil, "x86_64-linux", "requires a package"},
		{"empty name", &ir.PackageSpec{SourcePath: "."}, "x86_64-linux", "package name"},
		{"empty source path", &ir.PackageSpec{Name: "helix-move"}, "x86_64-linux", "no source path"},
		{"empty platform", &ir.PackageSpec{Name: "helix-move", SourcePath: "."}, "", "platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.pkg, tt.platform, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestNewRequest_CopiesInputs(t *testing.T) {
	sources := map[string]*ir.ResolvedSource{
		"nixpkgs": {Name: "nixpkgs", Revision: "abc"},
	}
	toolchain := []string{"cargo"}

	req, err := NewRequest(&ir.PackageSpec{Name: "helix-move", SourcePath: "."}, "x86_64-linux", sources, toolchain)
	require.NoError(t, err)

	sources["nixpkgs"].Revision = "mutated"
	sources["extra"] = &ir.ResolvedSource{Name: "extra"}
	toolchain[0] = "mutated"

	assert.Equal(t, "abc", req.ExtraInputs["nixpkgs"].Revision)
	assert.NotContains(t, req.ExtraInputs, "extra")
	assert.Equal(t, []string{"cargo"}, req.Toolchain)
	assert.Equal(t, []string{"nixpkgs"}, InputNames(req))
}

func TestInvoke_Success(t *testing.T) {
	stub := &stubBuilder{artifact: &ir.BuildArtifact{ID: "artifact-1"}}
	req := &ir.BuildRequest{PackageName: "pkg", SourcePath: ".", Platform: "linux-x64"}

	artifact, err := Invoke(context.Background(), req, stub, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "artifact-1", artifact.ID)
	assert.Equal(t, ir.PlatformID("linux-x64"), artifact.Platform)
	assert.Equal(t, "stub", artifact.Builder)

	assert.NotSame(t, stub.artifact, artifact)
	assert.Empty(t, stub.artifact.Platform)
	assert.Empty(t, stub.artifact.Builder)
}

func TestInvoke_FailureIsClassifiedAndNotRetried(t *testing.T) {
	cause := errors.New("error: could not compile `helix-move`")
	stub := &stubBuilder{err: cause}
	req := &ir.BuildRequest{PackageName: "pkg", SourcePath: ".", Platform: "macos-arm64"}

	_, err := Invoke(context.Background(), req, stub, time.Minute)

	var failed *ir.BuildFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, ir.PlatformID("macos-arm64"), failed.Platform)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "error: could not compile `helix-move`")
	assert.Equal(t, 1, stub.calls)
}

func TestInvoke_NilArtifact(t *testing.T) {
	req := &ir.BuildRequest{PackageName: "pkg", SourcePath: ".", Platform: "linux-x64"}

	_, err := Invoke(context.Background(), req, &stubBuilder{}, time.Minute)
	assert.Equal(t, ir.KindBuildFailed, ir.Kind(err))

	_, err = Invoke(context.Background(), req, nil, time.Minute)
	assert.Equal(t, ir.KindBuildFailed, ir.Kind(err))
}

func TestInvoke_Timeout(t *testing.T) {
	req := &ir.BuildRequest{PackageName: "pkg", SourcePath: ".", Platform: "linux-x64"}

	_, err := Invoke(context.Background(), req, &stubBuilder{wait: true}, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ir.KindBuildFailed, ir.Kind(err))
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, d)

	d, err = ParseTimeout("45m")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d)

	_, err = ParseTimeout("forever")
	assert.Error(t, err)
	_, err = ParseTimeout("-1s")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.LoadBuilder("null", nil))
	require.NoError(t, reg.LoadBuilder("docker", map[string]string{"repository": "x"}))

	b, err := reg.Get("null")
	require.NoError(t, err)
	assert.Equal(t, "null", b.Name())

	b, err = reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "null", b.Name())

	assert.Error(t, reg.LoadBuilder("bazel", nil))
	assert.Error(t, reg.LoadBuilder("codebuild", map[string]string{}))

	_, err = reg.Get("codebuild")
	assert.Error(t, err)

	reg.Register(&stubBuilder{})
	b, err = reg.Get("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", b.Name())
}
