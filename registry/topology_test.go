package registry

import (
	"testing"

	"github.com/devops-hub/agenthub/types"
)

func TestTopologyConnectSymmetric(t *testing.T) {
	topo := NewTopology()
	topo.AddNode("host-a")
	topo.AddNode("host-b")

	if err := topo.Connect("host-a", "host-b"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	na, err := topo.Neighbors("host-a")
	if err != nil {
		t.Fatal(err)
	}
	nb, err := topo.Neighbors("host-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(na) != 1 || na[0] != "host-b" {
		t.Errorf("expected host-a adjacent to host-b, got %v", na)
	}
	if len(nb) != 1 || nb[0] != "host-a" {
		t.Errorf("expected host-b adjacent to host-a, got %v", nb)
	}
}

func TestTopologyConnectMissingNode(t *testing.T) {
	topo := NewTopology()
	topo.AddNode("host-a")

	err := topo.Connect("host-a", "ghost")
	if !types.IsCode(err, types.ErrCodeNodeNotFound) {
		t.Errorf("expected NODE_NOT_FOUND, got %v", err)
	}
	err = topo.Connect("ghost", "host-a")
	if !types.IsCode(err, types.ErrCodeNodeNotFound) {
		t.Errorf("expected NODE_NOT_FOUND, got %v", err)
	}

	// a failed connect must not create partial edges
	na, _ := topo.Neighbors("host-a")
	if len(na) != 0 {
		t.Errorf("partial edge created: %v", na)
	}
}

func TestTopologyRemoveNodePrunesEdges(t *testing.T) {
	topo := NewTopology()
	for _, n := range []string{"a", "b", "c"} {
		topo.AddNode(n)
	}
	if err := topo.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := topo.Connect("a", "c"); err != nil {
		t.Fatal(err)
	}

	topo.RemoveNode("a")

	if _, err := topo.Neighbors("a"); !types.IsCode(err, types.ErrCodeNodeNotFound) {
		t.Errorf("expected removed node lookup to fail, got %v", err)
	}
	nb, _ := topo.Neighbors("b")
	if len(nb) != 0 {
		t.Errorf("dangling edge to removed node: %v", nb)
	}
}
