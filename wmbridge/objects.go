package wmbridge

import (
	"sync"
	"sync/atomic"

	"github.com/rivercore/wmcore/geom"
	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/protocol"
	"github.com/rivercore/wmcore/winrec"
)

// WindowObject is the river_window_v1 WM object: a thin request/event
// facade in front of a winrec.Record. Every mutating request lands in
// the record's uncommitted view per I-B1; WindowManagerV1.Commit is
// what later promotes uncommitted into committed.
type WindowObject struct {
	id     protocol.ObjectID
	rec    *winrec.Record
	bridge *Bridge
	events protocol.WindowEvents

	inert atomic.Bool
}

func newWindowObject(id protocol.ObjectID, rec *winrec.Record, bridge *Bridge) *WindowObject {
	return &WindowObject{id: id, rec: rec, bridge: bridge}
}

// ID returns the protocol object identity.
func (w *WindowObject) ID() protocol.ObjectID { return w.id }

// Record returns the backing WindowRecord.
func (w *WindowObject) Record() *winrec.Record { return w.rec }

// BindEvents attaches the transport-side event sink this object sends
// through; set once the WM client has bound the object.
func (w *WindowObject) BindEvents(events protocol.WindowEvents) { w.events = events }

// Events returns the bound event sink, or nil if none has been bound
// yet (e.g. in tests that exercise request handling without a
// transport).
func (w *WindowObject) Events() protocol.WindowEvents { return w.events }

func (w *WindowObject) markInert() { w.inert.Store(true) }

// Inert reports whether removed() has already been sent for this
// object (I-B2).
func (w *WindowObject) Inert() bool { return w.inert.Load() }

// Close implements protocol.WindowRequests.
func (w *WindowObject) Close() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Close = true })
}

// ProposeDimensions implements protocol.WindowRequests. A negative
// component raises invalid_dimensions per I-B3.
func (w *WindowObject) ProposeDimensions(size geom.Size) error {
	if w.inert.Load() {
		return nil
	}
	if err := protocol.ValidateDimensions(w.id, size.Width, size.Height); err != nil {
		w.markInert()
		return err
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) {
		s.Size = size
		s.HasSize = true
	})
	return nil
}

func (w *WindowObject) Hide() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Hidden = true })
}

func (w *WindowObject) Show() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Hidden = false })
}

func (w *WindowObject) UseSSD() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.SSD = true })
}

func (w *WindowObject) UseCSD() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.SSD = false })
}

// SetBorders implements protocol.WindowRequests. A negative width
// raises invalid_border per §6.
func (w *WindowObject) SetBorders(edges geom.Edges, width int32, color geom.Color) error {
	if w.inert.Load() {
		return nil
	}
	if err := protocol.ValidateBorderWidth(w.id, width); err != nil {
		w.markInert()
		return err
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) {
		s.BorderEdges = edges
		s.BorderWidth = width
		s.BorderColor = color
	})
	return nil
}

func (w *WindowObject) SetTiled(edges geom.Edges) {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.TiledEdges = edges })
}

func (w *WindowObject) SetCapabilities(mask uint32) {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Capabilities = winrec.Capabilities(mask) })
}

func (w *WindowObject) InformMaximized() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Maximized = true })
}

func (w *WindowObject) InformUnmaximized() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Maximized = false })
}

func (w *WindowObject) Fullscreen(outputID protocol.ObjectID) {
	if w.inert.Load() {
		return
	}
	outRec, ok := w.bridge.outputByID(outputID)
	w.rec.MutateUncommitted(func(s *winrec.WmState) {
		s.HasFullscreenOutput = true
		if ok {
			s.FullscreenOutput = outRec
		}
	})
}

func (w *WindowObject) ExitFullscreen() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.HasFullscreenOutput = false })
}

func (w *WindowObject) InformResizeStart() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Resizing = true })
}

func (w *WindowObject) InformResizeEnd() {
	if w.inert.Load() {
		return
	}
	w.rec.MutateUncommitted(func(s *winrec.WmState) { s.Resizing = false })
}

// outputByID resolves a WM output object id to the output.ID its
// record carries, used by Fullscreen above.
func (b *Bridge) outputByID(id protocol.ObjectID) (output.ID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.outputs[id]
	if !ok {
		return 0, false
	}
	return obj.rec.ID(), true
}

// OutputObject is the river_output_v1 WM object.
type OutputObject struct {
	id     protocol.ObjectID
	rec    *output.Record
	bridge *Bridge
	events protocol.OutputEvents

	inert atomic.Bool
}

func newOutputObject(id protocol.ObjectID, rec *output.Record, bridge *Bridge) *OutputObject {
	return &OutputObject{id: id, rec: rec, bridge: bridge}
}

func (o *OutputObject) ID() protocol.ObjectID          { return o.id }
func (o *OutputObject) Record() *output.Record         { return o.rec }
func (o *OutputObject) BindEvents(e protocol.OutputEvents) { o.events = e }
func (o *OutputObject) Events() protocol.OutputEvents  { return o.events }
func (o *OutputObject) markInert()                     { o.inert.Store(true) }
func (o *OutputObject) Inert() bool                     { return o.inert.Load() }

// Destroy implements protocol.OutputRequests: the only request an
// output WM object accepts, per §4.4.
func (o *OutputObject) Destroy() {
	if o.inert.Load() {
		return
	}
	o.bridge.RemoveOutput(o.rec)
}

// SeatObject is the river_seat_v1 WM object: the WM's focus-setting
// handle (§4.4's seat-focus note).
type SeatObject struct {
	mu     sync.RWMutex
	id     protocol.ObjectID
	bridge *Bridge
	events protocol.SeatEvents

	hasFocus bool
	focus    winrec.ID

	inert atomic.Bool
}

func newSeatObject(id protocol.ObjectID, bridge *Bridge) *SeatObject {
	return &SeatObject{id: id, bridge: bridge}
}

func (s *SeatObject) ID() protocol.ObjectID           { return s.id }
func (s *SeatObject) BindEvents(e protocol.SeatEvents) { s.events = e }
func (s *SeatObject) markInert()                       { s.inert.Store(true) }
func (s *SeatObject) Inert() bool                      { return s.inert.Load() }

// SetFocus implements protocol.SeatRequests: the WM object a client
// uses to move seat focus to a window. Per I-W3 this only updates the
// bridge's bookkeeping; it is applied to inflight.activated at the
// start of the next render sequence, not immediately.
func (s *SeatObject) SetFocus(window protocol.ObjectID) error {
	if s.inert.Load() {
		return nil
	}
	s.bridge.mu.Lock()
	obj, ok := s.bridge.windows[window]
	s.bridge.mu.Unlock()
	if !ok {
		s.mu.Lock()
		s.hasFocus = false
		s.mu.Unlock()
		s.bridge.MarkRenderingDirty()
		return nil
	}
	s.mu.Lock()
	s.hasFocus = true
	s.focus = obj.rec.ID()
	s.mu.Unlock()
	s.bridge.MarkRenderingDirty()
	return nil
}

func (s *SeatObject) focusedWindow() (winrec.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focus, s.hasFocus
}

// NodeObject is the river_node_v1 WM object: ordering handle for a
// window's scene subtree.
type NodeObject struct {
	id     protocol.ObjectID
	window *WindowObject
	bridge *Bridge
	events protocol.NodeEvents

	inert atomic.Bool
}

func newNodeObject(id protocol.ObjectID, window *WindowObject, bridge *Bridge) *NodeObject {
	return &NodeObject{id: id, window: window, bridge: bridge}
}

func (n *NodeObject) ID() protocol.ObjectID           { return n.id }
func (n *NodeObject) BindEvents(e protocol.NodeEvents) { n.events = e }
func (n *NodeObject) markInert()                       { n.inert.Store(true) }
func (n *NodeObject) Inert() bool                       { return n.inert.Load() }

// PlaceAbove/PlaceBelow implement protocol.NodeRequests, reparenting
// the window's main scene node relative to a sibling's.
func (n *NodeObject) PlaceAbove(sibling protocol.ObjectID) error {
	if n.inert.Load() {
		return nil
	}
	sib, ok := n.bridge.nodeRecordFor(sibling)
	if !ok {
		return nil
	}
	return n.bridge.tree.PlaceAbove(n.window.rec.Nodes().Main, sib.Nodes().Main)
}

func (n *NodeObject) PlaceBelow(sibling protocol.ObjectID) error {
	if n.inert.Load() {
		return nil
	}
	sib, ok := n.bridge.nodeRecordFor(sibling)
	if !ok {
		return nil
	}
	return n.bridge.tree.PlaceBelow(n.window.rec.Nodes().Main, sib.Nodes().Main)
}

// GetWindow implements protocol.NodeRequests: resolves this node back
// to its owning window's WM object id.
func (n *NodeObject) GetWindow() (protocol.ObjectID, error) {
	return n.window.id, nil
}

func (b *Bridge) nodeRecordFor(nodeID protocol.ObjectID) (*winrec.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	node, ok := b.nodes[nodeID]
	if !ok {
		return nil, false
	}
	return node.window.rec, true
}
