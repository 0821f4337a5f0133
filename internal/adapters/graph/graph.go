// Package graph maintains the directed graph of adapter-to-adapter
// dependencies. The graph restricted to live registrations is acyclic at all
// times: every mutation is validated before commit, so a rejected change
// leaves the graph untouched.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Mutation failures
var (
	// ErrCycle indicates the requested edges would create a cycle
	ErrCycle = errors.New("dependency cycle detected")

	// ErrMissingDependency indicates an edge references an unknown node
	ErrMissingDependency = errors.New("dependency not registered")

	// ErrHasDependents indicates a node cannot be removed while other nodes
	// depend on it
	ErrHasDependents = errors.New("node has live dependents")

	// ErrUnknownNode indicates the named node is not in the graph
	ErrUnknownNode = errors.New("unknown node")
)

// Graph is an adjacency-list digraph keyed by adapter id. An edge A -> B means
// A depends on B.
type Graph struct {
	mu         sync.RWMutex
	deps       map[string]map[string]struct{} // node -> its dependencies
	dependents map[string]map[string]struct{} // node -> nodes depending on it
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

// AddNode inserts a node with no edges. Idempotent.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) {
	if _, ok := g.deps[id]; !ok {
		g.deps[id] = make(map[string]struct{})
	}
	if _, ok := g.dependents[id]; !ok {
		g.dependents[id] = make(map[string]struct{})
	}
}

// AddDependencies inserts the node and all its dependency edges as one
// all-or-nothing unit. It fails with ErrMissingDependency if any dependency is
// not already a node, and with ErrCycle if any edge would close a cycle; in
// both cases the graph is unchanged.
func (g *Graph) AddDependencies(id string, dependencies []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, dep := range dependencies {
		if dep == id {
			return fmt.Errorf("%w: %q depends on itself", ErrCycle, id)
		}
		if _, ok := g.deps[dep]; !ok {
			return fmt.Errorf("%w: %q requires %q", ErrMissingDependency, id, dep)
		}
	}

	// The new edges are id -> dep. A cycle appears only if some dep already
	// reaches id through existing edges.
	for _, dep := range dependencies {
		if g.reaches(dep, id) {
			return fmt.Errorf("%w: %q -> %q closes a cycle", ErrCycle, id, dep)
		}
	}

	g.addNodeLocked(id)
	for _, dep := range dependencies {
		g.deps[id][dep] = struct{}{}
		g.dependents[dep][id] = struct{}{}
	}
	return nil
}

// reaches reports whether to is reachable from from via dependency edges.
// Depth-first, iterative.
func (g *Graph) reaches(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]struct{}{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dep := range g.deps[node] {
			if dep == to {
				return true
			}
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// RemoveNode removes a node and its outgoing edges. It fails with
// ErrHasDependents while any other node still declares a dependency on it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.deps[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	if len(g.dependents[id]) > 0 {
		return fmt.Errorf("%w: %q is required by %v", ErrHasDependents, id, g.sortedDependentsLocked(id))
	}

	for dep := range g.deps[id] {
		delete(g.dependents[dep], id)
	}
	delete(g.deps, id)
	delete(g.dependents, id)
	return nil
}

// Has reports whether the node is in the graph
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.deps[id]
	return ok
}

// Dependencies returns the node's direct dependencies, sorted
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.deps[id]))
	for dep := range g.deps[id] {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the nodes directly depending on id, sorted
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedDependentsLocked(id)
}

func (g *Graph) sortedDependentsLocked(id string) []string {
	out := make([]string, 0, len(g.dependents[id]))
	for dep := range g.dependents[id] {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.deps)
}

// UnloadOrder returns all nodes in a safe unload order: every node appears
// before each of its dependencies, so dependents are torn down first. Ties are
// broken lexicographically to keep the order deterministic.
func (g *Graph) UnloadOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn's algorithm over dependent-counts: a node is ready to unload once
	// all nodes depending on it have been emitted.
	remaining := make(map[string]int, len(g.deps))
	for id := range g.deps {
		remaining[id] = len(g.dependents[id])
	}

	ready := make([]string, 0, len(remaining))
	for id, n := range remaining {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(remaining))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := make([]string, 0)
		for dep := range g.deps[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				next = append(next, dep)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}
	return order
}
