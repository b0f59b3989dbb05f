package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

// DefaultName is the lockfile written next to the project manifest.
const DefaultName = "pinmatrix.lock"

// Manager reads and writes a lockfile on the local filesystem.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the lockfile location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the lockfile. A missing file yields an empty lock.
func (m *Manager) Read(ctx context.Context) (*ir.Lock, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return ir.NewLock(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile %s: %w", m.path, err)
	}

	lock, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", m.path, err)
	}
	return lock, nil
}

// Write saves the lockfile atomically.
func (m *Manager) Write(ctx context.Context, lock *ir.Lock) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	content, err := Encode(lock)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".pinmatrix-lock-*")
	if err != nil {
		return fmt.Errorf("failed to create temp lockfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to write lockfile %s: %w", m.path, err)
	}
	return nil
}

// Encode renders lock as indented JSON, assigning a lineage if it has none.
func Encode(lock *ir.Lock) ([]byte, error) {
	if lock.Version == 0 {
		lock.Version = ir.LockVersion
	}
	if lock.Lineage == "" {
		lock.Lineage = uuid.NewString()
	}
	if lock.Sources == nil {
		lock.Sources = make(map[string]*ir.LockedSource)
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode lockfile: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses lockfile content.
func Decode(raw []byte) (*ir.Lock, error) {
	var lock ir.Lock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, err
	}
	if lock.Version > ir.LockVersion {
		return nil, fmt.Errorf("lockfile version %d is newer than supported version %d", lock.Version, ir.LockVersion)
	}
	if lock.Sources == nil {
		lock.Sources = make(map[string]*ir.LockedSource)
	}
	for name, e := range lock.Sources {
		if e == nil {
			return nil, fmt.Errorf("lockfile entry %q is null", name)
		}
	}
	return &lock, nil
}

// Update returns the lock describing resolved, keeping prev's lineage.
// Followed sources are not recorded; they are derived on every run.
func Update(prev *ir.Lock, refs []*ir.SourceRef, resolved map[string]*ir.ResolvedSource) *ir.Lock {
	next := ir.NewLock()
	if prev != nil {
		next.Lineage = prev.Lineage
	}
	for _, ref := range refs {
		if ref == nil || ref.Follows != "" {
			continue
		}
		src, ok := resolved[ref.Name]
		if !ok {
			continue
		}
		e := &ir.LockedSource{
			Locator:  src.Locator,
			Revision: src.Revision,
			Digest:   src.Digest,
		}
		if !src.LastModified.IsZero() {
			e.LastModified = src.LastModified.Unix()
		}
		next.Sources[ref.Name] = e
	}
	return next
}

// Changed reports whether next pins anything differently from prev.
func Changed(prev, next *ir.Lock) bool {
	if prev == nil || len(prev.Sources) != len(next.Sources) {
		return true
	}
	for name, e := range next.Sources {
		p, ok := prev.Sources[name]
		if !ok || p == nil || e == nil || *p != *e {
			return true
		}
	}
	return false
}
