package eval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
)

// ManifestNames lists the manifest files looked up by Discover, in order.
var ManifestNames = []string{"pinmatrix.pkl", "pinmatrix.yaml", "pinmatrix.yml", "pinmatrix.hcl"}

// ErrNoManifest is returned by Discover when a directory has no manifest.
var ErrNoManifest = errors.New("no project manifest found")

// Evaluator turns project manifests into IR.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// Discover returns the first manifest present in dir.
func Discover(dir string) (string, error) {
	for _, name := range ManifestNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNoManifest, dir, strings.Join(ManifestNames, ", "))
}

// LoadProject evaluates the manifest at path, applies defaults and validates it.
func (e *Evaluator) LoadProject(ctx context.Context, path string) (*ir.Project, error) {
	var (
		project *ir.Project
		err     error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pkl":
		project, err = e.loadPkl(ctx, path)
	case ".yaml", ".yml":
		project, err = loadYAML(path)
	case ".hcl":
		project, err = loadHCL(path)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q: %s", ext, path)
	}
	if err != nil {
		return nil, err
	}

	applyDefaults(project)
	if err := Validate(project); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	logging.Debug("manifest loaded", "path", path, "sources", len(project.Sources), "platforms", len(project.Platforms))
	return project, nil
}

func (e *Evaluator) loadPkl(ctx context.Context, path string) (*ir.Project, error) {
	evaluator, err := e.newPklEvaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var project ir.Project
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &project); err != nil {
		return nil, fmt.Errorf("failed to evaluate manifest: %w", err)
	}
	return &project, nil
}

// newPklEvaluator uses the PklProject in the project directory when there is one.
func (e *Evaluator) newPklEvaluator(ctx context.Context) (pkl.Evaluator, error) {
	if _, err := os.Stat(filepath.Join(e.projectDir, "PklProject")); err != nil {
		return pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	}

	abs, err := filepath.Abs(e.projectDir)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse("file://" + filepath.ToSlash(abs) + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}
	return pkl.NewProjectEvaluator(ctx, u, pkl.PreconfiguredOptions)
}
