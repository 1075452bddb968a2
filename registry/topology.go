package registry

import (
	"sort"
	"sync"

	"github.com/devops-hub/agenthub/types"
)

// Topology is an undirected graph of named nodes, kept separate from the
// card set. It models coarse placement relationships (hosts, zones, meshes)
// between agents.
type Topology struct {
	mu    sync.RWMutex
	nodes map[string]map[string]struct{} // node -> adjacency set
}

// NewTopology creates an empty topology graph.
func NewTopology() *Topology {
	return &Topology{nodes: make(map[string]map[string]struct{})}
}

// AddNode adds a named node. Adding an existing node is a no-op.
func (t *Topology) AddNode(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[name]; !ok {
		t.nodes[name] = make(map[string]struct{})
	}
}

// RemoveNode removes a node and every edge referencing it.
func (t *Topology) RemoveNode(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	neighbors, ok := t.nodes[name]
	if !ok {
		return
	}
	for n := range neighbors {
		delete(t.nodes[n], name)
	}
	delete(t.nodes, name)
}

// Connect adds a symmetric edge between a and b, updating both adjacency
// lists. Fails with NODE_NOT_FOUND when either endpoint is missing.
func (t *Topology) Connect(a, b string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	na, ok := t.nodes[a]
	if !ok {
		return types.NewErrorf(types.ErrCodeNodeNotFound, "node %s not found", a)
	}
	nb, ok := t.nodes[b]
	if !ok {
		return types.NewErrorf(types.ErrCodeNodeNotFound, "node %s not found", b)
	}

	na[b] = struct{}{}
	nb[a] = struct{}{}
	return nil
}

// Neighbors returns the adjacency list of a node, sorted. Fails with
// NODE_NOT_FOUND for unknown nodes.
func (t *Topology) Neighbors(name string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.nodes[name]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeNodeNotFound, "node %s not found", name)
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Nodes returns all node names, sorted.
func (t *Topology) Nodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.nodes))
	for n := range t.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
