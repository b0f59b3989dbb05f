package ir

import "sort"

// DefaultOutput is the alias name for the primary artifact.
const DefaultOutput = "default"

// OutputEntry holds exactly one of Artifact or Env.
type OutputEntry struct {
	Artifact *BuildArtifact `json:"artifact,omitempty"`
	Env      *EnvDescriptor `json:"env,omitempty"`
}

// OutputSet maps output names to entries. Aliases point at other names and
// are resolved on lookup, so an alias never diverges from its target.
type OutputSet struct {
	Entries map[string]*OutputEntry `json:"outputs"`
	Aliases map[string]string       `json:"aliases,omitempty"`
}

// NewOutputSet returns an empty set.
func NewOutputSet() *OutputSet {
	return &OutputSet{
		Entries: make(map[string]*OutputEntry),
		Aliases: make(map[string]string),
	}
}

// Get returns the entry for name, following an alias if present.
func (o *OutputSet) Get(name string) (*OutputEntry, bool) {
	if o == nil {
		return nil, false
	}
	if target, ok := o.Aliases[name]; ok {
		name = target
	}
	e, ok := o.Entries[name]
	return e, ok
}

// Names returns entry and alias names, sorted.
func (o *OutputSet) Names() []string {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.Entries)+len(o.Aliases))
	for n := range o.Entries {
		names = append(names, n)
	}
	for n := range o.Aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Artifacts returns the number of artifact entries.
func (o *OutputSet) Artifacts() int {
	n := 0
	for _, e := range o.Entries {
		if e.Artifact != nil {
			n++
		}
	}
	return n
}
