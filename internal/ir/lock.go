package ir

// LockVersion is the lockfile format written by this version.
const LockVersion = 1

// Lock is the persisted mapping of source names to pinned revisions.
type Lock struct {
	Version int                      `json:"version"`
	Lineage string                   `json:"lineage"`
	Sources map[string]*LockedSource `json:"sources"`
}

// LockedSource is one pinned entry of a Lock.
type LockedSource struct {
	Locator      string `json:"locator"`
	Revision     string `json:"revision"`
	Digest       string `json:"digest,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// NewLock returns an empty lock of the current version.
func NewLock() *Lock {
	return &Lock{
		Version: LockVersion,
		Sources: make(map[string]*LockedSource),
	}
}

// Lookup returns the locked entry for name if it still matches locator.
func (l *Lock) Lookup(name, locator string) (*LockedSource, bool) {
	if l == nil {
		return nil, false
	}
	e, ok := l.Sources[name]
	if !ok || e == nil || e.Locator != locator || e.Revision == "" {
		return nil, false
	}
	return e, true
}
