package scene

import (
	"testing"

	"github.com/rivercore/wmcore/geom"
)

var (
	geomZero     = geom.Point{}
	geomZeroSize = geom.Size{}
)

func TestMemTreeCreateDestroy(t *testing.T) {
	tr := NewMemTree()

	child, err := tr.CreateNode(tr.Root(), NodeKindRect)
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if child == NilNode {
		t.Fatal("CreateNode() returned NilNode")
	}

	grandchild, err := tr.CreateNode(child, NodeKindSavedBuffer)
	if err != nil {
		t.Fatalf("CreateNode(child) error = %v", err)
	}

	tr.DestroyNode(child)

	if err := tr.SetEnabled(grandchild, true); err == nil {
		t.Error("expected destroying a node to cascade to its children")
	}
}

func TestMemTreeUnknownHandle(t *testing.T) {
	tr := NewMemTree()
	tests := []struct {
		name string
		op   func() error
	}{
		{"SetPosition", func() error { return tr.SetPosition(999, geomZero) }},
		{"SetEnabled", func() error { return tr.SetEnabled(999, true) }},
		{"SetSize", func() error { return tr.SetSize(999, geomZeroSize) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); err == nil {
				t.Errorf("%s on unknown handle: expected error", tt.name)
			}
		})
	}
}

func TestMemTreeSaveBufferRefcount(t *testing.T) {
	tr := NewMemTree().(*memTree)

	surface, err := tr.CreateNode(tr.Root(), NodeKindTree)
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	saved, err := tr.SaveBuffer(surface)
	if err != nil {
		t.Fatalf("SaveBuffer() error = %v", err)
	}
	if tr.nodes[surface].saveRefs != 1 {
		t.Fatalf("saveRefs = %d, want 1", tr.nodes[surface].saveRefs)
	}

	if err := tr.DropSavedBuffer(saved); err != nil {
		t.Fatalf("DropSavedBuffer() error = %v", err)
	}
	if tr.nodes[surface].saveRefs != 0 {
		t.Fatalf("saveRefs after drop = %d, want 0", tr.nodes[surface].saveRefs)
	}

	if err := tr.DropSavedBuffer(surface); err == nil {
		t.Error("expected dropping a non-saved-buffer node to error")
	}
}

func TestMemTreePlaceAboveBelow(t *testing.T) {
	tr := NewMemTree()
	a, _ := tr.CreateNode(tr.Root(), NodeKindRect)
	b, _ := tr.CreateNode(tr.Root(), NodeKindRect)

	if err := tr.PlaceAbove(a, b); err != nil {
		t.Errorf("PlaceAbove() error = %v", err)
	}
	if err := tr.PlaceBelow(a, 999); err == nil {
		t.Error("PlaceBelow with unknown sibling: expected error")
	}
}
