package dag

import "testing"

func TestBuildOrdersDependenciesAfterTheirParents(t *testing.T) {
	d, err := Build([]NodeDef{
		{Name: "a"},
		{Name: "b", After: []string{"a"}},
		{Name: "c", After: []string{"b"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	order := d.TopologicalOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(order))
	}
	idx := map[string]int{}
	for i, name := range order {
		idx[name] = i
	}
	if idx["a"] >= idx["b"] || idx["b"] >= idx["c"] {
		t.Fatalf("wrong order: %v", order)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	_, err := Build([]NodeDef{
		{Name: "a", After: []string{"b"}},
		{Name: "b", After: []string{"a"}},
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var cycleErr *ErrCycle
	ok := false
	if e, is := err.(*ErrCycle); is {
		cycleErr = e
		ok = true
	}
	if !ok || len(cycleErr.Path) < 2 {
		t.Fatalf("expected *ErrCycle with a path, got %v", err)
	}
}

func TestBuildRejectsReservedInputName(t *testing.T) {
	_, err := Build([]NodeDef{{Name: InputNode}})
	if err == nil {
		t.Fatal("expected error for reserved $input name")
	}
}

func TestBuildRejectsDuplicateNames(t *testing.T) {
	_, err := Build([]NodeDef{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("expected error for duplicate step name")
	}
}

func TestBuildRejectsDanglingReference(t *testing.T) {
	_, err := Build([]NodeDef{{Name: "a", After: []string{"nonexistent"}}})
	if err == nil {
		t.Fatal("expected error for dangling after reference")
	}
}

func TestEmptyAfterIsSuccessorOfInput(t *testing.T) {
	d, err := Build([]NodeDef{{Name: "a"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	children := d.Children(InputNode)
	if len(children) != 1 || children[0] != "a" {
		t.Fatalf("expected a to be a direct successor of $input, got %v", children)
	}
}

func TestReverseTopologicalOrderIsExactReverse(t *testing.T) {
	d, err := Build([]NodeDef{
		{Name: "a"},
		{Name: "b", After: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	fwd := d.TopologicalOrder()
	rev := d.ReverseTopologicalOrder()
	if len(fwd) != len(rev) {
		t.Fatalf("length mismatch")
	}
	for i := range fwd {
		if fwd[i] != rev[len(rev)-1-i] {
			t.Fatalf("reverse order mismatch: fwd=%v rev=%v", fwd, rev)
		}
	}
}
