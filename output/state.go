// Package output implements the per-output state machine: OutputState
// (the proposed/realized configuration of one display), OutputRecord
// (the scheduled/sent/current triple plus lock-render-state and
// membership bookkeeping), and OutputManager (the component that
// aggregates records and drives hardware modeset batches).
package output

import (
	"fmt"

	"github.com/rivercore/wmcore/geom"
)

// State is the high-level enable/disable/destroy state of an output.
type State uint8

const (
	StateEnabled State = iota
	StateDisabledSoft
	StateDisabledHard
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabledSoft:
		return "disabled_soft"
	case StateDisabledHard:
		return "disabled_hard"
	case StateDestroying:
		return "destroying"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ModeKind distinguishes the three ways an output's resolution/refresh
// can be specified.
type ModeKind uint8

const (
	// ModeNone: no mode has ever been negotiated for this output.
	ModeNone ModeKind = iota
	// ModeStandard: one of the hardware's advertised modes, by
	// reference (index into the hardware mode list).
	ModeStandard
	// ModeCustom: an explicit width/height/refresh not drawn from the
	// hardware's advertised list (a WM-supplied custom mode).
	ModeCustom
)

// Mode is a display mode, either a reference into the hardware's
// advertised list or an explicit custom triple.
type Mode struct {
	Kind          ModeKind
	Ref           int // index into the owning HwOutput's Modes(), valid when Kind == ModeStandard
	Width, Height int32
	RefreshMilliHz int32
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeNone:
		return "none"
	case ModeStandard:
		return fmt.Sprintf("standard(#%d %dx%d)", m.Ref, m.Width, m.Height)
	case ModeCustom:
		return fmt.Sprintf("custom(%dx%d@%dmHz)", m.Width, m.Height, m.RefreshMilliHz)
	default:
		return "mode(?)"
	}
}

// OutputState is one full proposal/realization of an output's
// configuration: everything OutputRecord's scheduled/sent/current
// triple holds a copy of.
type OutputState struct {
	State        State
	Pos          geom.Point
	Mode         Mode
	Scale        float64
	Transform    geom.Transform
	AdaptiveSync bool
	AutoLayout   bool
}

// DefaultOutputState is the zero-configuration state a freshly
// discovered output starts in: disabled_hard, no mode, unit scale.
func DefaultOutputState() OutputState {
	return OutputState{
		State: StateDisabledHard,
		Scale: 1.0,
		Mode:  Mode{Kind: ModeNone},
	}
}

// Width returns the logical width after applying the transform's
// dimension swap and dividing by scale. Zero if no mode is set or
// scale is non-positive.
func (s OutputState) Width() int32 {
	if s.Mode.Kind == ModeNone || s.Scale <= 0 {
		return 0
	}
	w, h := s.Mode.Width, s.Mode.Height
	if s.Transform.SwapsDimensions() {
		w, h = h, w
	}
	_ = h
	return int32(float64(w) / s.Scale)
}

// Height returns the logical height, symmetric to Width.
func (s OutputState) Height() int32 {
	if s.Mode.Kind == ModeNone || s.Scale <= 0 {
		return 0
	}
	w, h := s.Mode.Width, s.Mode.Height
	if s.Transform.SwapsDimensions() {
		w, h = h, w
	}
	_ = w
	return int32(float64(h) / s.Scale)
}

// NeedsModeset reports whether moving from s to next requires a
// hardware modeset: an enable-state flip, a mode change, or an
// adaptive-sync change. Position-only or scale/transform-only changes
// (purely compositor-side) do not.
func (s OutputState) NeedsModeset(next OutputState) bool {
	if (s.State == StateEnabled) != (next.State == StateEnabled) {
		return true
	}
	if s.Mode != next.Mode {
		return true
	}
	if s.AdaptiveSync != next.AdaptiveSync {
		return true
	}
	return false
}
