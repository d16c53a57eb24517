// Package dag implements the DAG engine from spec.md §4.G: graph
// validation (uniqueness, dangling references, cycles), the bus
// dispatcher that fans events out to dependent steps, and coordinated
// reverse-topological shutdown. Adapted from the teacher's workflow DAG
// (duplicate-name/dangling-reference checks plus Kahn's-algorithm
// topological sort), generalized from node IDs + edge list to step names
// + implicit $input dependency.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// InputNode is the reserved name for the pipeline's input (spec.md §3).
const InputNode = "$input"

// NodeDef is one graph node: a step name plus its dependencies. A step
// with an empty After list is a direct successor of $input (spec.md
// §4.G.2).
type NodeDef struct {
	Name  string
	After []string
}

// DAG is a validated, built step graph with both edge directions and a
// topological order rooted at $input.
type DAG struct {
	names    []string // step names, in declaration order
	children map[string][]string
	parents  map[string][]string
	topo     []string
}

// ErrCycle reports one offending cycle, node names joined by "-->" (spec.md
// §4.G "on violation, the engine reports one offending cycle").
type ErrCycle struct{ Path []string }

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("dag: cycle detected: %s", strings.Join(e.Path, "-->"))
}

// Build validates nodes per spec.md §4.G and constructs the DAG.
//   - No step is named $input.
//   - Step names are unique.
//   - Every After reference resolves to a step or to $input.
//   - The graph is acyclic.
func Build(nodes []NodeDef) (*DAG, error) {
	d := &DAG{
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}

	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Name == InputNode {
			return nil, fmt.Errorf("dag: step must not be named %q", InputNode)
		}
		if _, dup := seen[n.Name]; dup {
			return nil, fmt.Errorf("dag: duplicate step name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
		d.names = append(d.names, n.Name)
	}

	for _, n := range nodes {
		deps := n.After
		if len(deps) == 0 {
			deps = []string{InputNode}
		}
		for _, dep := range deps {
			if dep != InputNode {
				if _, ok := seen[dep]; !ok {
					return nil, fmt.Errorf("dag: step %q depends on unknown step %q", n.Name, dep)
				}
			}
			d.children[dep] = append(d.children[dep], n.Name)
			d.parents[n.Name] = append(d.parents[n.Name], dep)
		}
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.topo = order
	return d, nil
}

func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.names))
	for _, n := range d.names {
		for _, p := range d.parents[n] {
			if p != InputNode {
				inDegree[n]++
			}
		}
	}

	var queue []string
	for _, n := range d.names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		children := append([]string(nil), d.children[node]...)
		sort.Strings(children)
		for _, c := range children {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(d.names) {
		return nil, &ErrCycle{Path: d.findCycle()}
	}
	return order, nil
}

// findCycle re-runs Kahn's algorithm without failing to find the
// unresolved remainder, then walks parent edges from one such node until
// a repeat is observed, returning that cycle's node sequence.
func (d *DAG) findCycle() []string {
	resolved := make(map[string]struct{})
	inDegree := make(map[string]int, len(d.names))
	for _, n := range d.names {
		for _, p := range d.parents[n] {
			if p != InputNode {
				inDegree[n]++
			}
		}
	}
	var queue []string
	for _, n := range d.names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		resolved[node] = struct{}{}
		for _, c := range d.children[node] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	var start string
	for _, n := range d.names {
		if _, ok := resolved[n]; !ok {
			start = n
			break
		}
	}
	if start == "" {
		return nil
	}

	path := []string{start}
	visited := map[string]int{start: 0}
	cur := start
	for {
		next := ""
		for _, p := range d.parents[cur] {
			if _, ok := resolved[p]; !ok && p != InputNode {
				next = p
				break
			}
		}
		if next == "" {
			break
		}
		if idx, ok := visited[next]; ok {
			return append(path[idx:], next)
		}
		visited[next] = len(path)
		path = append(path, next)
		cur = next
	}
	return path
}

// TopologicalOrder returns step names (never $input) in dependency order.
func (d *DAG) TopologicalOrder() []string { return d.topo }

// Children returns the direct dependents of name ($input or a step name).
func (d *DAG) Children(name string) []string { return d.children[name] }

// Parents returns the direct dependencies of a step name.
func (d *DAG) Parents(name string) []string { return d.parents[name] }

// ReverseTopologicalOrder returns step names ordered from deepest
// dependents to roots, the order spec.md §4.G shutdown peels steps in.
func (d *DAG) ReverseTopologicalOrder() []string {
	out := make([]string, len(d.topo))
	for i, n := range d.topo {
		out[len(d.topo)-1-i] = n
	}
	return out
}
