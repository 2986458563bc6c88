package scene

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rivercore/wmcore/geom"
)

// NodeHandle identifies a node in the external scene graph. The core
// never holds a pointer into that graph directly; it holds this
// stable handle, the same way OutputRecord and WindowRecord hold
// handles rather than raw backend pointers.
type NodeHandle uint64

// NilNode is the zero value, never returned by CreateNode.
const NilNode NodeHandle = 0

// NodeKind distinguishes the small set of node shapes the core
// creates: subtree containers, solid-color border/background
// rectangles, and saved-buffer snapshots.
type NodeKind uint8

const (
	NodeKindTree NodeKind = iota
	NodeKindRect
	NodeKindSavedBuffer
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindTree:
		return "tree"
	case NodeKindRect:
		return "rect"
	case NodeKindSavedBuffer:
		return "saved-buffer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrNodeNotFound is returned when an operation references a
	// handle the tree no longer knows about.
	ErrNodeNotFound = errors.New("scene: node not found")
	// ErrNoSavedBuffer is returned by DropSavedBuffer when the node
	// has no outstanding saved-buffer reference.
	ErrNoSavedBuffer = errors.New("scene: no saved buffer held")
)

// Tree is the thin adapter over the external scene graph. Every
// method corresponds directly to a wlroots-equivalent scene API call;
// this package assumes none of the rendering, damage-tracking, or KMS
// behavior behind it and only models the surface the windowing core
// touches.
type Tree interface {
	// Root returns the handle of the tree's top-level node.
	Root() NodeHandle

	// CreateNode creates a child node of parent and returns its handle.
	CreateNode(parent NodeHandle, kind NodeKind) (NodeHandle, error)
	// DestroyNode removes a node and all its descendants.
	DestroyNode(h NodeHandle)

	SetPosition(h NodeHandle, pos geom.Point) error
	SetEnabled(h NodeHandle, enabled bool) error
	// IsEnabled reports a node's last-set enabled state, used by the
	// session-lock FSM to assert I-L1 (the normal subtree must be
	// disabled whenever the lock subtree is in front of the user).
	IsEnabled(h NodeHandle) (bool, error)
	// SetSize resizes a NodeKindRect node.
	SetSize(h NodeHandle, size geom.Size) error
	// SetColor recolors a NodeKindRect node.
	SetColor(h NodeHandle, c geom.Color) error

	PlaceAbove(h, sibling NodeHandle) error
	PlaceBelow(h, sibling NodeHandle) error

	// SaveBuffer snapshots the current contents under h into a new
	// reference-counted saved-buffer node, for frame-perfect
	// replacement while a configure is in flight.
	SaveBuffer(h NodeHandle) (NodeHandle, error)
	// DropSavedBuffer releases the reference taken by SaveBuffer.
	DropSavedBuffer(h NodeHandle) error
}

// memTree is an in-process Tree used by tests and by callers that
// have not yet wired a real scene-graph backend. It tracks just
// enough bookkeeping to make the invariants in winrec and output
// observable from tests: parent/child links, enabled state, position,
// and saved-buffer reference counts.
type memTree struct {
	nextID atomic.Uint64
	nodes  map[NodeHandle]*memNode
	root   NodeHandle
}

type memNode struct {
	kind     NodeKind
	parent   NodeHandle
	enabled  bool
	pos      geom.Point
	size     geom.Size
	color    geom.Color
	savedFor NodeHandle // set on a saved-buffer node: the node it snapshots
	saveRefs int        // set on the snapshotted node: outstanding saves
}

// NewMemTree returns an in-memory Tree implementation.
func NewMemTree() Tree {
	t := &memTree{nodes: make(map[NodeHandle]*memNode)}
	t.nextID.Store(1)
	root := NodeHandle(t.nextID.Add(1))
	t.root = root
	t.nodes[root] = &memNode{kind: NodeKindTree, enabled: true}
	return t
}

func (t *memTree) Root() NodeHandle { return t.root }

func (t *memTree) CreateNode(parent NodeHandle, kind NodeKind) (NodeHandle, error) {
	if parent != t.root {
		if _, ok := t.nodes[parent]; !ok {
			return NilNode, fmt.Errorf("scene: create node: %w", ErrNodeNotFound)
		}
	}
	h := NodeHandle(t.nextID.Add(1))
	t.nodes[h] = &memNode{kind: kind, parent: parent, enabled: true}
	return h, nil
}

func (t *memTree) DestroyNode(h NodeHandle) {
	delete(t.nodes, h)
	for id, n := range t.nodes {
		if n.parent == h {
			t.DestroyNode(id)
		}
	}
}

func (t *memTree) node(h NodeHandle) (*memNode, error) {
	n, ok := t.nodes[h]
	if !ok {
		return nil, fmt.Errorf("scene: %w", ErrNodeNotFound)
	}
	return n, nil
}

func (t *memTree) SetPosition(h NodeHandle, pos geom.Point) error {
	n, err := t.node(h)
	if err != nil {
		return err
	}
	n.pos = pos
	return nil
}

func (t *memTree) SetEnabled(h NodeHandle, enabled bool) error {
	n, err := t.node(h)
	if err != nil {
		return err
	}
	n.enabled = enabled
	return nil
}

func (t *memTree) IsEnabled(h NodeHandle) (bool, error) {
	n, err := t.node(h)
	if err != nil {
		return false, err
	}
	return n.enabled, nil
}

func (t *memTree) SetSize(h NodeHandle, size geom.Size) error {
	n, err := t.node(h)
	if err != nil {
		return err
	}
	n.size = size
	return nil
}

func (t *memTree) SetColor(h NodeHandle, c geom.Color) error {
	n, err := t.node(h)
	if err != nil {
		return err
	}
	n.color = c
	return nil
}

func (t *memTree) PlaceAbove(h, sibling NodeHandle) error {
	if _, err := t.node(h); err != nil {
		return err
	}
	if _, err := t.node(sibling); err != nil {
		return err
	}
	return nil
}

func (t *memTree) PlaceBelow(h, sibling NodeHandle) error {
	return t.PlaceAbove(sibling, h)
}

func (t *memTree) SaveBuffer(h NodeHandle) (NodeHandle, error) {
	n, err := t.node(h)
	if err != nil {
		return NilNode, err
	}
	n.saveRefs++
	saved := NodeHandle(t.nextID.Add(1))
	t.nodes[saved] = &memNode{kind: NodeKindSavedBuffer, parent: n.parent, enabled: true, savedFor: h}
	return saved, nil
}

func (t *memTree) DropSavedBuffer(h NodeHandle) error {
	n, err := t.node(h)
	if err != nil {
		return err
	}
	if n.kind != NodeKindSavedBuffer || n.savedFor == NilNode {
		return fmt.Errorf("scene: drop saved buffer %d: %w", h, ErrNoSavedBuffer)
	}
	if owner, ok := t.nodes[n.savedFor]; ok {
		owner.saveRefs--
	}
	delete(t.nodes, h)
	return nil
}
