// Package winrec implements the per-window state machine: WmState
// (the WM-side view of one window's requested configuration),
// WindowRecord (the six-copy pipeline of WmState plus lifecycle and
// scene-node bookkeeping), and the SurfaceAdapter contract a surface
// role (XDG toplevel, X11 window) must satisfy to participate in the
// transaction engine's configure/ack/commit cycle.
package winrec

import (
	"fmt"

	"github.com/rivercore/wmcore/geom"
	"github.com/rivercore/wmcore/output"
)

// Capabilities is a bitmask of window operations the WM permits a
// client to request (move/resize/fullscreen/maximize affordances),
// sent to the client via set_capabilities per §4.4.
type Capabilities uint32

const (
	CapWindowMenu Capabilities = 1 << iota
	CapMaximize
	CapFullscreen
	CapMinimize
)

// WmState is the WM-side view of one window's configuration, matching
// spec.md §3's WmState field list exactly.
type WmState struct {
	Pos geom.Point

	// Size is the negotiated width/height. HasSize is false before any
	// dimension has ever been proposed (the pending/sent copies of a
	// window that hasn't been sized by the WM yet).
	Size    geom.Size
	HasSize bool

	Hidden bool

	SSD bool

	BorderEdges geom.Edges
	BorderWidth int32
	BorderColor geom.Color

	TiledEdges geom.Edges

	Capabilities Capabilities

	Maximized bool

	FullscreenOutput    output.ID
	HasFullscreenOutput bool

	Close bool

	Activated bool
	Resizing  bool
}

// Box returns the WM state's position/size as a geom.Box, the
// "current.box" referenced throughout spec.md §4 and §8.
func (s WmState) Box() geom.Box {
	return geom.Box{X: s.Pos.X, Y: s.Pos.Y, Width: s.Size.Width, Height: s.Size.Height}
}

// BorderEnabled reports whether server-side decoration should be
// drawn: SSD is requested and the window is not fullscreen, per §4.3
// commit_transaction ("enabled iff ssd && !fullscreen").
func (s WmState) BorderEnabled() bool {
	return s.SSD && !s.HasFullscreenOutput
}

func (c Capabilities) String() string {
	var caps []byte
	add := func(has bool, c byte) {
		if has {
			caps = append(caps, c)
		}
	}
	add(c&CapWindowMenu != 0, 'M')
	add(c&CapMaximize != 0, 'X')
	add(c&CapFullscreen != 0, 'F')
	add(c&CapMinimize != 0, 'N')
	if len(caps) == 0 {
		return "none"
	}
	return fmt.Sprintf("%s", caps)
}
