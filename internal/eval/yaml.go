package eval

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"gopkg.in/yaml.v3"
)

func loadYAML(path string) (*ir.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var project ir.Project
	if err := dec.Decode(&project); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &project, nil
}
