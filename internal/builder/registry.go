package builder

import (
	"fmt"
	"sync"

	"github.com/picklr-io/pinmatrix/builders/codebuild"
	"github.com/picklr-io/pinmatrix/builders/docker"
	"github.com/picklr-io/pinmatrix/builders/null"
)

// Registry manages the builders available to an evaluation.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// LoadBuilder initializes and registers a built-in builder.
func (r *Registry) LoadBuilder(name string, config map[string]string) error {
	if name == "" {
		name = "null"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return nil
	}

	var b Builder
	switch name {
	case "null":
		b = null.New(config)
	case "docker":
		b = docker.New(config)
	case "codebuild":
		cb, err := codebuild.New(config)
		if err != nil {
			return err
		}
		b = cb
	default:
		return fmt.Errorf("unknown builder: %s", name)
	}

	r.builders[name] = b
	return nil
}

// Register installs a builder under its own name, replacing any existing one.
func (r *Registry) Register(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[b.Name()] = b
}

// Get returns a registered builder.
func (r *Registry) Get(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = "null"
	}
	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("builder not loaded: %s", name)
	}
	return b, nil
}
