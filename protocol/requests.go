package protocol

import "github.com/rivercore/wmcore/geom"

// WindowManagerRequests is the inbound request set on the
// window_manager_v1 singleton, per spec.md §4.4.
type WindowManagerRequests interface {
	// Commit ends the current request batch (the WM's equivalent of a
	// wl_surface.commit): requests received before Commit land in
	// uncommitted; Commit promotes them per I-B1.
	Commit()
	// AckUpdate acknowledges the matching Update event, unblocking the
	// manage sequence's wait and permitting the render sequence to
	// begin.
	AckUpdate(serial Serial)
	GetSeat(id ObjectID) error
	// GetWindowNode binds a Node object to a window's identity. Per
	// §6, a duplicate bind for the same window raises node_exists.
	GetWindowNode(id ObjectID, window ObjectID) error
}

// WindowRequests is the inbound request set on a Window WM object, per
// spec.md §4.4. Every request here is buffered into the window's
// uncommitted view per I-B1 until the next Commit.
type WindowRequests interface {
	Close()
	// ProposeDimensions stages a requested size. A negative component
	// raises invalid_dimensions (I-B3).
	ProposeDimensions(size geom.Size) error
	Hide()
	Show()
	UseSSD()
	UseCSD()
	// SetBorders stages edges/width/color. A negative width raises
	// invalid_border.
	SetBorders(edges geom.Edges, width int32, color geom.Color) error
	SetTiled(edges geom.Edges)
	SetCapabilities(mask uint32)
	InformMaximized()
	InformUnmaximized()
	Fullscreen(output ObjectID)
	ExitFullscreen()
	InformResizeStart()
	InformResizeEnd()
}

// OutputRequests is the inbound request set on an Output WM object:
// destroy only, per spec.md §4.4.
type OutputRequests interface {
	Destroy()
}

// SeatRequests is the inbound request set on a Seat WM object. Per
// §4.4 ("the WM client sets focus through its Seat object"), focus is
// the only request a seat carries; the bridge translates it into
// inflight.activated on the relevant WindowRecord at the top of the
// next render sequence (I-W3).
type SeatRequests interface {
	SetFocus(window ObjectID) error
}

// NodeRequests is the inbound request set on a Node WM object.
type NodeRequests interface {
	PlaceAbove(sibling ObjectID) error
	PlaceBelow(sibling ObjectID) error
	GetWindow() (ObjectID, error)
}
