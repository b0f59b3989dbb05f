package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/lockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
package:
  name: helix
sources:
  - name: src
    locator: path:./src
  - name: self
    follows: src
platforms: [linux-x64, macos-arm64]
devShells:
  default:
    packages: [go]
    env:
      HELIX_MODE: dev
`

func setupProject(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0644))
	path := filepath.Join(dir, "pinmatrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append(args, "--no-color"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitError},
		{"unresolvable", &ir.UnresolvableSourceError{Name: "pkg"}, ExitUnresolvable},
		{"duplicate", fmt.Errorf("load: %w", &ir.DuplicateNameError{Scope: "source", Name: "pkg"}), ExitDuplicate},
		{"build failed", errors.Join(&ir.BuildFailedError{Platform: "a"}, &ir.BuildFailedError{Platform: "b"}), ExitBuildFailed},
		{"unknown output", &ir.UnknownOutputError{Name: "x"}, ExitUnknown},
		{"shell status", &StatusError{Code: 42}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
	assert.True(t, IsStatus(&StatusError{Code: 1}))
	assert.False(t, IsStatus(errors.New("boom")))
}

func TestPaint(t *testing.T) {
	noColor = true
	assert.Equal(t, "built", paint(okStyle, "built"))
	noColor = false
}

func TestBuild_DefaultOutput(t *testing.T) {
	path := setupProject(t, testManifest)

	stdout, stderr, err := run(t, "build", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "default: null://helix/linux-x64")
	assert.Contains(t, stderr, "built linux-x64")
	assert.Contains(t, stderr, "built macos-arm64")

	dir := filepath.Dir(path)
	lock, err := lockfile.NewManager(filepath.Join(dir, lockfile.DefaultName)).Read(context.Background())
	require.NoError(t, err)
	require.Contains(t, lock.Sources, "src")
	assert.NotContains(t, lock.Sources, "self")
	assert.NotEmpty(t, lock.Lineage)

	_, err = os.Stat(filepath.Join(dir, ".pinmatrix", "result.json"))
	assert.NoError(t, err)
}

func TestBuild_NamedOutputAndSystems(t *testing.T) {
	path := setupProject(t, testManifest)

	stdout, _, err := run(t, "build", "macos-arm64", "--file", path, "--system", "macos-arm64", "--no-result")
	require.NoError(t, err)
	assert.Contains(t, stdout, "macos-arm64: null://helix/macos-arm64")

	_, err = os.Stat(filepath.Join(filepath.Dir(path), ".pinmatrix", "result.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuild_OnePlatformFails(t *testing.T) {
	manifest := testManifest + `builder:
  name: "null"
  config:
    fail: macos-arm64
`
	path := setupProject(t, manifest)

	stdout, stderr, err := run(t, "build", "--file", path)
	require.Error(t, err)
	assert.Equal(t, ExitBuildFailed, ExitCode(err))
	assert.Contains(t, stdout, "default: null://helix/linux-x64")
	assert.Contains(t, stderr, "FAILED build failed for platform macos-arm64")
	assert.Contains(t, err.Error(), "macos-arm64")

	stdout, _, err = run(t, "build", "linux-x64", "--file", path, "--allow-partial")
	require.NoError(t, err)
	assert.Contains(t, stdout, "linux-x64: null://helix/linux-x64")

	_, _, err = run(t, "build", "macos-arm64", "--file", path, "--allow-partial")
	require.Error(t, err)
	assert.Equal(t, ExitBuildFailed, ExitCode(err))
}

func TestBuild_UnknownOutput(t *testing.T) {
	path := setupProject(t, testManifest)

	_, _, err := run(t, "build", "windows-x64", "--file", path)
	require.Error(t, err)
	assert.Equal(t, ExitUnknown, ExitCode(err))
}

func TestBuild_UnresolvableSource(t *testing.T) {
	path := setupProject(t, strings.Replace(testManifest, "path:./src", "path:./missing", 1))

	_, _, err := run(t, "build", "--file", path)
	require.Error(t, err)
	assert.Equal(t, ExitUnresolvable, ExitCode(err))

	_, statErr := os.Stat(filepath.Join(filepath.Dir(path), lockfile.DefaultName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLock(t *testing.T) {
	path := setupProject(t, testManifest)

	stdout, _, err := run(t, "lock", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "src")
	assert.Contains(t, stdout, "path:./src")

	lockPath := filepath.Join(filepath.Dir(path), lockfile.DefaultName)
	first, err := os.ReadFile(lockPath)
	require.NoError(t, err)

	// A second run keeps the locked revisions and leaves the file untouched.
	_, _, err = run(t, "lock", "--file", path)
	require.NoError(t, err)
	second, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestShow(t *testing.T) {
	path := setupProject(t, testManifest)

	stdout, _, err := run(t, "show", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "default -> linux-x64")
	assert.Contains(t, stdout, "devShell dev shell")
	assert.Contains(t, stdout, "self follows src")
}

func TestValidate(t *testing.T) {
	path := setupProject(t, testManifest)
	stdout, _, err := run(t, "validate", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "valid")

	path = setupProject(t, strings.Replace(testManifest, "follows: src", "follows: nowhere", 1))
	_, _, err = run(t, "validate", "--file", path)
	assert.Equal(t, ExitUnresolvable, ExitCode(err))
}

func TestGraph(t *testing.T) {
	path := setupProject(t, testManifest)

	stdout, _, err := run(t, "graph", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "digraph pinmatrix {")
	assert.Contains(t, stdout, `"source.self" -> "source.src" [style = dashed, label = "follows"];`)
	assert.Contains(t, stdout, `"source.src" -> "linux-x64";`)
	assert.Contains(t, stdout, `"default" -> "linux-x64" [style = dotted];`)
}

func TestDevelop_ExitCodeAndEnv(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := setupProject(t, strings.Replace(testManifest, "packages: [go]", "packages: [go]\n    shell: /bin/sh", 1))

	stdout, _, err := run(t, "develop", "--file", path, "--command", `echo "$HELIX_MODE $PINMATRIX_SHELL"; exit 3`)
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Contains(t, stdout, "dev default")

	_, _, err = run(t, "develop", "--file", path, "--command", "true")
	assert.NoError(t, err)
}

func TestDevelop_UnknownShell(t *testing.T) {
	path := setupProject(t, testManifest)

	_, _, err := run(t, "develop", "docs", "--file", path)
	var unknown *ir.UnknownOutputError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "devShell.docs", unknown.Name)
	assert.Equal(t, []string{"devShell"}, unknown.Available)
}

func TestShellCommand(t *testing.T) {
	shell := &ir.EnvDescriptor{Shell: "/bin/bash"}
	program, args := shellCommand(shell, "")
	assert.Equal(t, "/bin/bash", program)
	assert.Empty(t, args)

	shell.ShellHook = "export A=1"
	_, args = shellCommand(shell, "")
	assert.Equal(t, []string{"-c", "export A=1\nexec /bin/bash"}, args)

	_, args = shellCommand(shell, "make test")
	assert.Equal(t, []string{"-c", "export A=1\nmake test"}, args)
}

func TestShellEnv(t *testing.T) {
	env := shellEnv([]string{"PATH=/usr/bin"},
		&ir.EnvDescriptor{Name: "default", Packages: []string{"go", "gopls"}, Env: map[string]string{"B": "2", "A": "1"}},
		map[string]*ir.ResolvedSource{"my-pkg": {Revision: "abc123"}},
	)
	assert.Equal(t, []string{
		"PATH=/usr/bin",
		"PINMATRIX_SHELL=default",
		"PINMATRIX_PACKAGES=go gopls",
		"PINMATRIX_INPUT_MY_PKG=abc123",
		"A=1",
		"B=2",
	}, env)
}

func TestInit(t *testing.T) {
	for _, format := range []string{"yaml", "hcl"} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)

			stdout, _, err := run(t, "init", "helix", "--format", format)
			require.NoError(t, err)
			assert.Contains(t, stdout, "pinmatrix."+format)

			stdout, _, err = run(t, "show")
			require.NoError(t, err)
			assert.Contains(t, stdout, "Package: helix")
			assert.Contains(t, stdout, "default -> x86_64-linux")

			_, _, err = run(t, "init", "--format", format)
			assert.ErrorContains(t, err, "already exists")
		})
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "pinmatrix version dev"))
}
