package winrec

import (
	"fmt"
	"sync"

	"github.com/rivercore/wmcore/geom"
	"github.com/rivercore/wmcore/scene"
)

// ID is a stable identifier for a WindowRecord, a slot-map key per
// spec.md §9 in place of a raw pointer into the scene graph.
type ID uint64

// Lifecycle is the window's top-level map/unmap state, per spec.md §3:
// init → ready → (initialized) → mapped → closing → init, re-entrant
// on re-map.
type Lifecycle uint8

const (
	LifecycleInit Lifecycle = iota
	LifecycleReady
	LifecycleMapped
	LifecycleClosing
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInit:
		return "init"
	case LifecycleReady:
		return "ready"
	case LifecycleMapped:
		return "mapped"
	case LifecycleClosing:
		return "closing"
	default:
		return fmt.Sprintf("lifecycle(%d)", uint8(l))
	}
}

// Constraints is the window's negotiated min/max size box.
type Constraints struct {
	MinWidth, MinHeight int32
	MaxWidth, MaxHeight int32
}

// Clamp fits size within the constraints.
func (c Constraints) Clamp(size geom.Size) geom.Size {
	if c.MinWidth > 0 && size.Width < c.MinWidth {
		size.Width = c.MinWidth
	}
	if c.MinHeight > 0 && size.Height < c.MinHeight {
		size.Height = c.MinHeight
	}
	if c.MaxWidth > 0 && size.Width > c.MaxWidth {
		size.Width = c.MaxWidth
	}
	if c.MaxHeight > 0 && size.Height > c.MaxHeight {
		size.Height = c.MaxHeight
	}
	return size
}

// SceneNodes groups the handles one window owns in the scene graph:
// a main subtree, the client surface subtree, a saved-surface subtree
// (for frame-perfect replacement while a configure is in flight), four
// border rectangles, a popup subtree, and an optional fullscreen
// background rectangle.
type SceneNodes struct {
	Main          scene.NodeHandle
	Surface       scene.NodeHandle
	SavedSurface  scene.NodeHandle
	HasSaved      bool
	Border        [4]scene.NodeHandle // left, right, top, bottom
	Popup         scene.NodeHandle
	FullscreenBg  scene.NodeHandle
	HasFullscreenBg bool
}

// Record is one mapped-or-map-pending toplevel's full state: the six
// WmState copies spec.md §3 names (pending/sent/uncommitted/committed/
// inflight/current), lifecycle flags, scene nodes, and the backing
// surface adapter.
type Record struct {
	mu sync.RWMutex

	id ID

	lifecycle   Lifecycle
	mapped      bool
	destroying  bool
	initialized bool

	pending     WmState
	sent        WmState
	uncommitted WmState
	committed   WmState
	inflight    WmState
	current     WmState

	nodes       SceneNodes
	constraints Constraints

	foreignToplevel   uint64
	hasForeignToplevel bool

	adapter Adapter
}

// NewRecord creates a WindowRecord in the init lifecycle state with a
// hidden, zero-size current view — matching I-W2's requirement that an
// unmapped window with an empty box stay out of every visible subtree.
func NewRecord(id ID, adapter Adapter) *Record {
	return &Record{
		id:       id,
		lifecycle: LifecycleInit,
		current:  WmState{Hidden: true},
		adapter:  adapter,
	}
}

func (r *Record) ID() ID { return r.id }

func (r *Record) Lifecycle() Lifecycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lifecycle
}

func (r *Record) SetLifecycle(l Lifecycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle = l
}

func (r *Record) Mapped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mapped
}

func (r *Record) SetMapped(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapped = v
}

func (r *Record) Destroying() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroying
}

// MarkDestroying sets destroying and, per I-W1, detaches the backing
// adapter so destroying ⇒ impl = none.
func (r *Record) MarkDestroying() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroying = true
	r.adapter = nil
}

func (r *Record) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

func (r *Record) SetInitialized(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = v
}

func (r *Record) Adapter() Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapter
}

func (r *Record) Pending() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending
}

func (r *Record) MutatePending(fn func(*WmState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.pending)
}

func (r *Record) Sent() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sent
}

// PromoteSent copies pending into sent, the manage-sequence "sent ←
// scheduled" step applied to windows.
func (r *Record) PromoteSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = r.pending
}

func (r *Record) Uncommitted() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uncommitted
}

// MutateUncommitted applies a WM request to the uncommitted view.
// Per I-B1 (enforced by the caller before invoking this), requests on
// an uninitialized window must land here rather than on committed.
func (r *Record) MutateUncommitted(fn func(*WmState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.uncommitted)
}

func (r *Record) Committed() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.committed
}

// PromoteCommitted copies uncommitted into committed, the render
// sequence's first step ("committed ← uncommitted").
func (r *Record) PromoteCommitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = r.uncommitted
}

func (r *Record) Inflight() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inflight
}

func (r *Record) SetInflight(s WmState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight = s
}

func (r *Record) Current() WmState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// CommitCurrent applies current ← inflight, the commit_transaction
// step in §4.3.
func (r *Record) CommitCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = r.inflight
}

// SetCurrent overwrites current directly, used by commit_transaction's
// output-evacuation path (§8 scenario 4): a window fullscreened on an
// output that has since been destroyed is moved to hidden outside the
// normal inflight→current promotion.
func (r *Record) SetCurrent(s WmState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
}

func (r *Record) Nodes() SceneNodes {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes
}

func (r *Record) MutateNodes(fn func(*SceneNodes)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.nodes)
}

func (r *Record) Constraints() Constraints {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constraints
}

func (r *Record) SetConstraints(c Constraints) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraints = c
}

// CheckInvariants asserts I-W1 for this record.
func (r *Record) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.destroying && r.adapter != nil {
		return fmt.Errorf("winrec: I-W1 violated: window %d is destroying but still has a backing adapter", r.id)
	}

	// I-W2 (scene-subtree membership of unmapped windows) is not
	// checked here; the record holds no scene-graph state to check it
	// against.
	return nil
}

// ComputeResizePosition applies the left/top-edge resize position
// correction described in spec.md §8 scenario 3: resizing from a
// left/top edge anchors the opposite edge, so position shifts by
// (requested size − actual committed size) on each anchored axis.
//
// The worked numeric example in §8 (100,100,400,300 resized with
// edges={left,top} toward requested 500×350, client commits 480×340,
// yields current.box = 120,110,480,340) is authoritative over the
// prose formula, which names the window's pre-resize size (400,300)
// rather than the requested size (500,350); using the pre-resize size
// does not reproduce the worked example, so ComputeResizePosition uses
// the requested size, matching the numbers spec.md actually asserts.
func ComputeResizePosition(basePos geom.Point, edges geom.Edges, requestedSize, actualSize geom.Size) geom.Point {
	pos := basePos
	if edges.Has(geom.EdgeLeft) {
		pos.X = basePos.X + (requestedSize.Width - actualSize.Width)
	}
	if edges.Has(geom.EdgeTop) {
		pos.Y = basePos.Y + (requestedSize.Height - actualSize.Height)
	}
	return pos
}
