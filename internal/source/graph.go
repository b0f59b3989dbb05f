package source

import (
	"fmt"
	"sort"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// FollowGraph orders sources so that every source is resolved after the
// source it follows.
type FollowGraph struct {
	nodes map[string]*followNode
	order []string
}

type followNode struct {
	name     string
	follows  string   // source this node reuses, "" for a direct source
	revEdges []string // sources that follow this node
}

// BuildFollowGraph constructs the follows graph for refs. Refs must already
// have unique names.
func BuildFollowGraph(refs []*ir.SourceRef) (*FollowGraph, error) {
	g := &FollowGraph{nodes: make(map[string]*followNode)}
	for _, ref := range refs {
		g.nodes[ref.Name] = &followNode{name: ref.Name, follows: ref.Follows}
	}

	for _, ref := range refs {
		if ref.Follows == "" {
			continue
		}
		target, ok := g.nodes[ref.Follows]
		if !ok {
			return nil, &ir.UnresolvableSourceError{
				Name:    ref.Name,
				Locator: "follows:" + ref.Follows,
				Cause:   fmt.Errorf("follows unknown source %q", ref.Follows),
			}
		}
		target.revEdges = append(target.revEdges, ref.Name)
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// Order returns source names with every followed source before its followers.
func (g *FollowGraph) Order() []string {
	return g.order
}

// Follows returns the source name is following, or "".
func (g *FollowGraph) Follows(name string) string {
	if n, ok := g.nodes[name]; ok {
		return n.follows
	}
	return ""
}

// topoSort performs Kahn's algorithm; ties are broken by name.
func (g *FollowGraph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	var queue []string
	for name, n := range g.nodes {
		if n.follows != "" {
			inDegree[name] = 1
		} else {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		next := append([]string(nil), g.nodes[name].revEdges...)
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		var cyclic []string
		for name, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, &ir.UnresolvableSourceError{
			Name:    cyclic[0],
			Locator: "follows:" + g.nodes[cyclic[0]].follows,
			Cause:   fmt.Errorf("follows cycle between sources %v", cyclic),
		}
	}
	return sorted, nil
}
