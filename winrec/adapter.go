package winrec

import (
	"fmt"

	"github.com/rivercore/wmcore/geom"
)

// TargetState is the configure payload sent to a surface adapter:
// everything a client needs to render the next frame at the
// negotiated size and decoration state.
type TargetState struct {
	Size        geom.Size
	Activated   bool
	Maximized   bool
	Fullscreen  bool
	TiledEdges  geom.Edges
	Resizing    bool
	Bounds      geom.Size
}

// Adapter is the per-surface-role contract a backing implementation
// (XDG toplevel, X11 window) must satisfy to participate in the
// transaction engine, per spec.md §4.2.
type Adapter interface {
	// Configure schedules a configure carrying TargetState. tracked
	// reports whether this configure will produce an ack+commit the
	// transaction engine should wait for; X11 adapters always return
	// false (frame-perfection is not attempted for them).
	Configure(target TargetState) (tracked bool, err error)
	NeedsConfigure() bool

	SendClose()
	SetFullscreen(bool)
	SetActivated(bool)
	SetResizing(bool)
	DestroyPopups()

	GetTitle() (string, bool)
	GetAppID() (string, bool)
	UnreliablePID() int

	// CommittedGeometry returns the surface's current committed
	// buffer size — not whatever was last requested. Per §4.3's
	// timeout path, the engine reads this instead of the configured
	// target size so a window that never acked a resize doesn't get
	// its border rendered around a size the client never adopted.
	CommittedGeometry() geom.Size

	// ResizeEdges reports which edges an in-progress interactive
	// resize is anchored against (set by the surface adapter from its
	// own pointer-grab state), or geom.EdgeNone outside of a resize.
	// Per §8 scenario 3, a left/top-anchored resize needs its
	// position corrected by (requested − actual) on the anchored
	// axis once the client's commit reveals the real size.
	ResizeEdges() geom.Edges
}

// ConfigureState is the per-surface XDG-style configure state machine
// named in §4.2, grounded directly on
// internal/platform/wayland/xdg_shell.go's
// XdgSurface/XdgToplevel configure → ack_configure tracking
// (pendingSerial + configured bool), inverted here from
// client-tracks-its-own-ack to server-awaits-the-client's-ack.
type ConfigureState uint8

const (
	ConfigureIdle ConfigureState = iota
	ConfigureInflight
	ConfigureAcked
	ConfigureCommitted
	ConfigureTimedOut
	ConfigureTimedOutAcked
)

func (s ConfigureState) String() string {
	switch s {
	case ConfigureIdle:
		return "idle"
	case ConfigureInflight:
		return "inflight"
	case ConfigureAcked:
		return "acked"
	case ConfigureCommitted:
		return "committed"
	case ConfigureTimedOut:
		return "timed_out"
	case ConfigureTimedOutAcked:
		return "timed_out_acked"
	default:
		return fmt.Sprintf("configure_state(%d)", uint8(s))
	}
}

// Serial is a configure correlation number, the adapter-level analog
// of wire.go's wl wire serials.
type Serial uint32

// ConfigureTracker drives one window's configure state machine across
// a single render sequence. It is intentionally small and
// allocation-free per transaction: the transaction engine owns one per
// tracked window for the lifetime of a render sequence.
type ConfigureTracker struct {
	state  ConfigureState
	serial Serial
}

// Begin transitions idle → inflight(serial), called when the engine
// sends a configure it wants tracked.
func (t *ConfigureTracker) Begin(serial Serial) error {
	if t.state != ConfigureIdle {
		return fmt.Errorf("winrec: configure tracker: Begin from %s, want idle", t.state)
	}
	t.state = ConfigureInflight
	t.serial = serial
	return nil
}

// Ack transitions inflight → acked (the client's ack_configure-
// equivalent), or inflight's timed-out variant into timed_out_acked so
// a late ack after the timeout still recovers cleanly for the next
// sequence.
func (t *ConfigureTracker) Ack(serial Serial) error {
	if serial != t.serial {
		return fmt.Errorf("winrec: configure tracker: ack for serial %d, want %d", serial, t.serial)
	}
	switch t.state {
	case ConfigureInflight:
		t.state = ConfigureAcked
	case ConfigureTimedOut:
		t.state = ConfigureTimedOutAcked
	default:
		return fmt.Errorf("winrec: configure tracker: ack from %s, want inflight or timed_out", t.state)
	}
	return nil
}

// Commit transitions acked → committed (the client's buffer commit
// landed). Only a prior Ack may precede this.
func (t *ConfigureTracker) Commit() error {
	if t.state != ConfigureAcked {
		return fmt.Errorf("winrec: configure tracker: commit from %s, want acked", t.state)
	}
	t.state = ConfigureCommitted
	return nil
}

// Timeout transitions inflight → timed_out or acked → timed_out_acked,
// called by the transaction engine's 100ms timer.
func (t *ConfigureTracker) Timeout() {
	switch t.state {
	case ConfigureInflight:
		t.state = ConfigureTimedOut
	case ConfigureAcked:
		t.state = ConfigureTimedOutAcked
	}
}

// Settled reports whether this configure has reached a state the
// render sequence can close out on: committed normally, or
// timed out (with or without a late ack).
func (t *ConfigureTracker) Settled() bool {
	switch t.state {
	case ConfigureCommitted, ConfigureTimedOut, ConfigureTimedOutAcked:
		return true
	default:
		return false
	}
}

// Reset returns the tracker to idle for reuse on the next render
// sequence.
func (t *ConfigureTracker) Reset() {
	t.state = ConfigureIdle
	t.serial = 0
}

func (t *ConfigureTracker) State() ConfigureState { return t.state }
