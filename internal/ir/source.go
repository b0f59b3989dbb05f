package ir

import "time"

// SourceRef declares one named external dependency of a project.
type SourceRef struct {
	Name             string `pkl:"name" yaml:"name" json:"name"`
	Locator          string `pkl:"locator" yaml:"locator,omitempty" json:"locator,omitempty"`
	ResolvedRevision string `pkl:"resolvedRevision" yaml:"resolvedRevision,omitempty" json:"resolvedRevision,omitempty"`
	// Follows names another source whose resolution this one reuses.
	Follows string `pkl:"follows" yaml:"follows,omitempty" json:"follows,omitempty"`
}

// Pinned reports whether the reference already carries a revision.
func (r *SourceRef) Pinned() bool {
	return r.ResolvedRevision != ""
}

// ResolvedSource is a SourceRef pinned to concrete content.
type ResolvedSource struct {
	Name         string    `json:"name"`
	Locator      string    `json:"locator"`
	Revision     string    `json:"revision"`
	Digest       string    `json:"digest,omitempty"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// Renamed returns a copy of the resolved source exposed under another name.
func (s *ResolvedSource) Renamed(name string) *ResolvedSource {
	c := *s
	c.Name = name
	return &c
}
