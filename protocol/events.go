package protocol

import "github.com/rivercore/wmcore/geom"

// WindowManagerEvents is the event-emission contract of the
// window_manager_v1 singleton, the inverse of the request list in
// spec.md §4.4: update/window/output/seat/done. A conforming
// transport MUST deliver exactly one Update per manage sequence and
// the bridge must not begin a render sequence before the matching
// ack_update request arrives (§6).
type WindowManagerEvents interface {
	// Update announces the end of a manage sequence's event batch;
	// the client is expected to reply with ack_update(serial).
	Update(serial Serial)
	// Window announces a newly exposed window, assigning its WM object
	// identity.
	Window(id ObjectID)
	// Output announces a newly exposed output.
	Output(id ObjectID)
	// Seat announces a seat made available to this WM client.
	Seat(id ObjectID)
	// Done terminates the initial burst of global announcements.
	Done()
}

// WindowEvents is the per-window event set a Window WM object emits:
// everything the manage sequence pushes for a dirty window (§4.3
// "send title/app-id/dimensions/decoration-hint/parent/capabilities
// changes").
type WindowEvents interface {
	Title(title string)
	AppID(appID string)
	Dimensions(size geom.Size)
	DecorationHint(ssd bool)
	Parent(id ObjectID, hasParent bool)
	Capabilities(mask uint32)
	// Removed is sent once the underlying WindowRecord is gone; per
	// I-B2 the object must already be inert by the time this is
	// delivered.
	Removed()
}

// OutputEvents is the per-output event set: position and mode/state
// changes the manage sequence pushes for a dirty output.
type OutputEvents interface {
	Position(pos geom.Point)
	Mode(size geom.Size, refreshMilliHz int32)
	State(enabled bool)
	Removed()
}

// SeatEvents is the per-seat event set. Seats are largely
// request-driven (the WM sets focus through them); Removed is the
// only event a seat object emits on its own.
type SeatEvents interface {
	Removed()
}

// NodeEvents is the per-node event set. Nodes are requested
// explicitly via get_window_node and are otherwise silent until their
// owning window is destroyed.
type NodeEvents interface {
	Removed()
}
