package lockfile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// Backend stores the lockfile.
type Backend interface {
	// Read loads the lock. A lock that was never written reads as empty.
	Read(ctx context.Context) (*ir.Lock, error)

	// Write replaces the stored lock.
	Write(ctx context.Context, lock *ir.Lock) error

	// Lock acquires an exclusive lock on the lockfile.
	Lock() error

	// Unlock releases the lock on the lockfile.
	Unlock() error
}

// NewBackend creates the backend selected by spec. Relative local paths are
// resolved against dir, the directory holding the project manifest.
func NewBackend(spec *ir.LockSpec, dir string) (Backend, error) {
	if spec == nil {
		return NewManager(filepath.Join(dir, DefaultName)), nil
	}

	switch spec.Backend {
	case "local", "":
		path := spec.Path
		if path == "" {
			path = DefaultName
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return NewManager(path), nil
	case "s3":
		return newS3Backend(spec.Config)
	default:
		return nil, fmt.Errorf("unknown lock backend type: %s", spec.Backend)
	}
}
