// Package wmbridge hosts the WM protocol objects and the registries
// that back them: river_window_manager_v1's singleton plus the
// per-window/output/seat/node objects it creates, the windowing- and
// rendering-dirty flags, and the manage-sequence synchronization
// (update/ack_update) the transaction engine drives. Grounded on
// registry.go's `map[uint32]*Global` + onGlobal/onGlobalRemove
// handlers, the direct model for these WM-object registries.
package wmbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/protocol"
	"github.com/rivercore/wmcore/scene"
	"github.com/rivercore/wmcore/winrec"
)

// Bridge is the WmBridge component named in spec.md §3/§4.4: the
// protocol-facing registry of WM objects plus the dirty flags and
// manage-sequence driver the transaction engine waits on.
type Bridge struct {
	mu sync.Mutex

	events protocol.WindowManagerEvents
	tree   scene.Tree

	nextObjectID atomic.Uint32

	windows     map[protocol.ObjectID]*WindowObject
	windowByRec map[winrec.ID]protocol.ObjectID

	outputs     map[protocol.ObjectID]*OutputObject
	outputByRec map[output.ID]protocol.ObjectID

	seats map[protocol.ObjectID]*SeatObject
	nodes map[protocol.ObjectID]*NodeObject
	// nodeByWindow enforces §6's node_exists: at most one Node object
	// per window.
	nodeByWindow map[winrec.ID]protocol.ObjectID

	windowingDirty bool
	renderingDirty bool
	// pendingStateDirty is set when dirty_pending/applyPending fires
	// while a transaction is already in flight (§5); the engine
	// re-runs the manage sequence at commit time instead of
	// interleaving with the in-flight one.
	pendingStateDirty bool

	serial atomic.Uint32

	// ackCh/commitCh deliver the WM client's ack_update and commit
	// requests to whichever goroutine is waiting in a manage or render
	// sequence. Buffered 1 and drained-then-refilled so a late or
	// duplicate request never blocks the client's dispatch goroutine.
	ackCh    chan protocol.Serial
	commitCh chan struct{}

	// manageSequenceCount is incremented once per Update event emitted,
	// the observable counter the "Idempotence" testable property (§8)
	// asserts against: N MarkWindowingDirty calls within one idle
	// cycle must still only emit one Update.
	manageSequenceCount int
}

// NewBridge constructs an empty Bridge wired to the transport that
// will deliver WindowManagerEvents to the connected WM client.
func NewBridge(events protocol.WindowManagerEvents, tree scene.Tree) *Bridge {
	b := &Bridge{
		events:       events,
		tree:         tree,
		windows:      make(map[protocol.ObjectID]*WindowObject),
		windowByRec:  make(map[winrec.ID]protocol.ObjectID),
		outputs:      make(map[protocol.ObjectID]*OutputObject),
		outputByRec:  make(map[output.ID]protocol.ObjectID),
		seats:        make(map[protocol.ObjectID]*SeatObject),
		nodes:        make(map[protocol.ObjectID]*NodeObject),
		nodeByWindow: make(map[winrec.ID]protocol.ObjectID),
		ackCh:        make(chan protocol.Serial, 1),
		commitCh:     make(chan struct{}, 1),
	}
	return b
}

func (b *Bridge) nextID() protocol.ObjectID {
	return protocol.ObjectID(b.nextObjectID.Add(1))
}

// MarkWindowingDirty flags that scheduled output or window state has
// changed since the last manage sequence. Edge-triggered: calling it
// any number of times before the idle dispatcher observes it still
// yields exactly one manage sequence (§5, §8 "Idempotence").
func (b *Bridge) MarkWindowingDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windowingDirty = true
}

// MarkRenderingDirty flags that render-affecting state (e.g. seat
// focus) changed outside of a manage sequence.
func (b *Bridge) MarkRenderingDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renderingDirty = true
}

// WindowingDirty reports and, if set, clears the windowing-dirty flag,
// the idle dispatcher's single check-and-clear entry point.
func (b *Bridge) WindowingDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.windowingDirty
	b.windowingDirty = false
	return v
}

// MarkPendingStateDirty records that a dirty event arrived while a
// transaction was already in flight (§5): the engine re-runs the
// manage sequence once the in-flight one's commit_transaction
// completes instead of interleaving with it.
func (b *Bridge) MarkPendingStateDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingStateDirty = true
}

// TakePendingStateDirty reports and clears pending_state_dirty,
// called once by commit_transaction's tail per §4.3.
func (b *Bridge) TakePendingStateDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.pendingStateDirty
	b.pendingStateDirty = false
	return v
}

// ManageSequenceCount returns how many Update events have been
// emitted so far, the accessor the Idempotence property test reads.
func (b *Bridge) ManageSequenceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.manageSequenceCount
}

// EmitUpdate allocates the next serial, emits Update(serial) to the WM
// client, and returns it. One call per manage sequence, per §6.
func (b *Bridge) EmitUpdate() protocol.Serial {
	serial := protocol.Serial(b.serial.Add(1))
	b.mu.Lock()
	b.manageSequenceCount++
	b.mu.Unlock()
	b.events.Update(serial)
	return serial
}

// AckUpdate is the window_manager_v1.ack_update request handler: it
// delivers the serial to whichever manage sequence is waiting on it.
func (b *Bridge) AckUpdate(serial protocol.Serial) {
	for {
		select {
		case b.ackCh <- serial:
			return
		default:
			// Drop a stale, undelivered ack and retry so the latest one
			// always wins; a well-behaved client never queues more than
			// one anyway (it must wait for the matching Update first).
			select {
			case <-b.ackCh:
			default:
			}
		}
	}
}

// WaitAckUpdate blocks until ack_update(serial) arrives or ctx is
// done. Acks for a stale serial are discarded and waited past, since
// per §6 requests between Update and ack_update belong to the next
// sequence and cannot have acked this one.
func (b *Bridge) WaitAckUpdate(ctx context.Context, serial protocol.Serial) error {
	for {
		select {
		case got := <-b.ackCh:
			if got == serial {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Commit is the window_manager_v1.commit request handler: it signals
// that the WM client's current request batch (uncommitted ← accumulated
// requests) is ready to be promoted to committed at the top of the
// next render sequence.
func (b *Bridge) Commit() {
	select {
	case b.commitCh <- struct{}{}:
	default:
	}
}

// WaitCommit blocks until the WM client's commit request arrives or
// ctx is done.
func (b *Bridge) WaitCommit(ctx context.Context) error {
	select {
	case <-b.commitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterWindow ensures a WM Window object exists for rec, creating
// and announcing one ("create the WM object on first exposure") if
// this is the window's first exposure to this WM client.
func (b *Bridge) RegisterWindow(rec *winrec.Record) *WindowObject {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.windowByRec[rec.ID()]; ok {
		return b.windows[id]
	}
	id := b.nextID()
	obj := newWindowObject(id, rec, b)
	b.windows[id] = obj
	b.windowByRec[rec.ID()] = id
	b.events.Window(id)
	return obj
}

// WindowFor returns the WM object already registered for rec, if any.
func (b *Bridge) WindowFor(rec *winrec.Record) (*WindowObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.windowByRec[rec.ID()]
	if !ok {
		return nil, false
	}
	return b.windows[id], true
}

// RemoveWindow sends removed() and turns the WM object inert, per
// I-B2: the object is marked inert before removed is delivered.
func (b *Bridge) RemoveWindow(rec *winrec.Record) {
	b.mu.Lock()
	id, ok := b.windowByRec[rec.ID()]
	if !ok {
		b.mu.Unlock()
		return
	}
	obj := b.windows[id]
	delete(b.windows, id)
	delete(b.windowByRec, rec.ID())
	if nodeID, ok := b.nodeByWindow[rec.ID()]; ok {
		if node, ok := b.nodes[nodeID]; ok {
			node.markInert()
			if node.events != nil {
				node.events.Removed()
			}
		}
		delete(b.nodes, nodeID)
		delete(b.nodeByWindow, rec.ID())
	}
	b.mu.Unlock()

	obj.markInert()
	if obj.events != nil {
		obj.events.Removed()
	}
}

// RegisterOutput ensures a WM Output object exists for rec, symmetric
// to RegisterWindow.
func (b *Bridge) RegisterOutput(rec *output.Record) *OutputObject {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.outputByRec[rec.ID()]; ok {
		return b.outputs[id]
	}
	id := b.nextID()
	obj := newOutputObject(id, rec, b)
	b.outputs[id] = obj
	b.outputByRec[rec.ID()] = id
	b.events.Output(id)
	return obj
}

// OutputFor returns the WM object already registered for rec, if any.
func (b *Bridge) OutputFor(rec *output.Record) (*OutputObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.outputByRec[rec.ID()]
	if !ok {
		return nil, false
	}
	return b.outputs[id], true
}

// RemoveOutput sends removed() and inertizes the WM object, mirroring
// RemoveWindow.
func (b *Bridge) RemoveOutput(rec *output.Record) {
	b.mu.Lock()
	id, ok := b.outputByRec[rec.ID()]
	if !ok {
		b.mu.Unlock()
		return
	}
	obj := b.outputs[id]
	delete(b.outputs, id)
	delete(b.outputByRec, rec.ID())
	b.mu.Unlock()

	obj.markInert()
	if obj.events != nil {
		obj.events.Removed()
	}
}

// GetSeat handles window_manager_v1.get_seat: creates and registers a
// Seat WM object.
func (b *Bridge) GetSeat(id protocol.ObjectID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.seats[id]; exists {
		return fmt.Errorf("wmbridge: get_seat: object id %s already bound", id)
	}
	b.seats[id] = newSeatObject(id, b)
	return nil
}

// GetWindowNode handles window_manager_v1.get_window_node: binds a
// Node object to window. Per §6, a duplicate bind for the same window
// raises node_exists (I-B3's sibling check for nodes).
func (b *Bridge) GetWindowNode(id protocol.ObjectID, windowID protocol.ObjectID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, ok := b.windows[windowID]
	if !ok {
		return fmt.Errorf("wmbridge: get_window_node: unknown window %s", windowID)
	}
	if _, exists := b.nodeByWindow[win.rec.ID()]; exists {
		// The newly requested node object is the offending one: per §7
		// it is marked inert immediately rather than left live, even
		// though the bind it asked for never took effect.
		dup := newNodeObject(id, win, b)
		dup.markInert()
		b.nodes[id] = dup
		return protocol.NewError(windowID, protocol.ErrNodeExists, "get_window_node: node already bound for this window")
	}
	node := newNodeObject(id, win, b)
	b.nodes[id] = node
	b.nodeByWindow[win.rec.ID()] = id
	return nil
}

// The bridge only tracks the two coarse flags per spec.md §3
// ("owns the 'dirty windowing' and 'dirty rendering' flags"). Per-
// record dirtiness is diffed by the transaction engine directly off
// pending vs. sent/scheduled, so no per-record flag table is kept
// here.

// Windows returns every currently registered window WM object, in
// registration (creation) order.
func (b *Bridge) Windows() []*WindowObject {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*WindowObject, 0, len(b.windows))
	for id := protocol.ObjectID(1); id <= protocol.ObjectID(b.nextObjectID.Load()); id++ {
		if w, ok := b.windows[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Outputs returns every currently registered output WM object, in
// registration order.
func (b *Bridge) Outputs() []*OutputObject {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*OutputObject, 0, len(b.outputs))
	for id := protocol.ObjectID(1); id <= protocol.ObjectID(b.nextObjectID.Load()); id++ {
		if o, ok := b.outputs[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// ActivatedWindows returns the set of winrec IDs with seat focus
// across every seat, computed at the top of each render sequence
// (I-W3) and consumed by the transaction engine when deriving
// inflight.activated.
func (b *Bridge) ActivatedWindows() map[winrec.ID]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := make(map[winrec.ID]bool)
	for _, s := range b.seats {
		if id, ok := s.focusedWindow(); ok {
			set[id] = true
		}
	}
	return set
}
