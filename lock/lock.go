// Package lock implements the session-lock render state machine
// (spec.md §4.5): the global lock_manager state plus each output's
// lock_render_state pipeline, gating which buffer class (normal,
// blank, lock surface) may be presented while the session is locked.
// Grounded on the same small-interface-wrapping-external-state style
// as scene.Tree (a minimal adapter in front of the
// ext_session_lock_v1/output present-callback machinery named in §6),
// since no rendering or KMS commit logic lives here.
package lock

import (
	"fmt"
	"sync"

	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/scene"
)

// ManagerState is lock_manager.state, per §4.5.
type ManagerState uint8

const (
	Unlocked ManagerState = iota
	WaitingForBlank
	WaitingForLockSurfaces
	Locked
)

func (s ManagerState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case WaitingForBlank:
		return "waiting_for_blank"
	case WaitingForLockSurfaces:
		return "waiting_for_lock_surfaces"
	case Locked:
		return "locked"
	default:
		return fmt.Sprintf("manager_state(%d)", uint8(s))
	}
}

// Locking reports whether the normal scene subtree must stay disabled
// in this state, the set I-L1 names: locked, waiting_for_lock_surfaces,
// waiting_for_blank.
func (s ManagerState) Locking() bool {
	return s != Unlocked
}

// Manager is the lock_manager singleton driving every output's
// lock_render_state transitions.
type Manager struct {
	mu sync.Mutex

	state ManagerState

	// normalRoot/lockedRoot are the two top-level scene subtrees every
	// output's content lives under; RenderAndCommit enables exactly one
	// of them per I-L1.
	tree       scene.Tree
	normalRoot scene.NodeHandle
	lockedRoot scene.NodeHandle

	// outputs holds every tracked output; maybe_lock() scans their
	// lock_render_state to decide whether all have reached
	// blanked/lock_surface.
	outputs map[output.ID]*output.Record
}

// NewManager constructs a session-lock Manager bound to the normal and
// locked scene subtrees.
func NewManager(tree scene.Tree, normalRoot, lockedRoot scene.NodeHandle) *Manager {
	return &Manager{
		tree:       tree,
		normalRoot: normalRoot,
		lockedRoot: lockedRoot,
		outputs:    make(map[output.ID]*output.Record),
		state:      Unlocked,
	}
}

// State returns the current lock_manager state.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TrackOutput registers an output so the lock FSM can drive its
// per-output lock_render_state.
func (m *Manager) TrackOutput(rec *output.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[rec.ID()] = rec
}

// UntrackOutput removes an output from lock bookkeeping, e.g. on
// hardware destroy.
func (m *Manager) UntrackOutput(rec *output.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outputs, rec.ID())
}

// RequestLock transitions unlocked → waiting_for_blank, the entry
// point for an ext_session_lock_v1 client's lock request.
func (m *Manager) RequestLock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unlocked {
		return fmt.Errorf("lock: request_lock: already %s", m.state)
	}
	m.state = WaitingForBlank
	return nil
}

// RequestLockSurfacesReady transitions waiting_for_blank →
// waiting_for_lock_surfaces once every output has blanked and the
// lock client has begun attaching lock surfaces.
func (m *Manager) RequestLockSurfacesReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != WaitingForBlank {
		return fmt.Errorf("lock: request_lock_surfaces_ready: want waiting_for_blank, have %s", m.state)
	}
	m.state = WaitingForLockSurfaces
	return nil
}

// Unlock transitions back to unlocked, e.g. the lock client
// disconnecting or unlock_and_destroy.
func (m *Manager) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Unlocked
}

// PresentPolicy reports which buffer class an output must submit next
// for the current lock_manager.state, per the §4.5 table.
type PresentPolicy uint8

const (
	PresentNormal PresentPolicy = iota
	PresentBlank
	PresentLockSurface
)

func (p PresentPolicy) String() string {
	switch p {
	case PresentNormal:
		return "normal"
	case PresentBlank:
		return "blank"
	case PresentLockSurface:
		return "lock_surface"
	default:
		return "?"
	}
}

// RenderAndCommit computes the present policy for one output per the
// §4.5 table and advances its lock_render_state to the matching
// "pending_*" value in the same call, mirroring "submit ... →
// pending_*" — the actual present callback confirms the transition via
// Present below.
func (m *Manager) RenderAndCommit(rec *output.Record) PresentPolicy {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	switch state {
	case Unlocked:
		if rec.LockRenderState() == output.LockRenderBlanked {
			rec.SetLockRenderState(output.LockRenderPendingUnlock)
		} else {
			rec.SetLockRenderState(output.LockRenderUnlocked)
		}
		if rec.LockRenderState() == output.LockRenderPendingUnlock {
			m.setSceneEnabled(true)
			return PresentNormal
		}
		m.setSceneEnabled(true)
		return PresentNormal
	case WaitingForBlank:
		rec.SetLockRenderState(output.LockRenderPendingBlank)
		m.setSceneEnabled(false)
		return PresentBlank
	case WaitingForLockSurfaces:
		rec.SetLockRenderState(output.LockRenderPendingLockSurface)
		m.setSceneEnabled(false)
		return PresentLockSurface
	case Locked:
		// Only blanked or lock_surface may be observable on screen
		// while locked; an output that hasn't reached either yet
		// re-submits blank, never normal content (I-L1).
		if rec.LockRenderState() != output.LockRenderBlanked && rec.LockRenderState() != output.LockRenderLockSurface {
			rec.SetLockRenderState(output.LockRenderPendingBlank)
			m.setSceneEnabled(false)
			return PresentBlank
		}
		m.setSceneEnabled(false)
		return PresentLockSurface
	default:
		panic(fmt.Sprintf("lock: render_and_commit: unhandled state %s", state))
	}
}

// Present is the present-callback confirmation that a submitted buffer
// actually reached the screen: it advances a "pending_*" state to its
// settled counterpart and then runs maybe_lock().
func (m *Manager) Present(rec *output.Record) {
	switch rec.LockRenderState() {
	case output.LockRenderPendingBlank:
		rec.SetLockRenderState(output.LockRenderBlanked)
	case output.LockRenderPendingLockSurface:
		rec.SetLockRenderState(output.LockRenderLockSurface)
	case output.LockRenderPendingUnlock:
		rec.SetLockRenderState(output.LockRenderUnlocked)
	}
	m.maybeLock()
}

// maybeLock promotes lock_manager to locked once every tracked output
// has reached blanked or lock_surface.
func (m *Manager) maybeLock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != WaitingForBlank && m.state != WaitingForLockSurfaces {
		return
	}
	for _, rec := range m.outputs {
		s := rec.LockRenderState()
		if s != output.LockRenderBlanked && s != output.LockRenderLockSurface {
			return
		}
	}
	m.state = Locked
}

// OnOutputEnableChanged implements the §4.5 rule that output
// enable/disable always transitions lock_render_state → blanked, to
// avoid a flash of stale content when a display powers back on.
func (m *Manager) OnOutputEnableChanged(rec *output.Record) {
	rec.SetLockRenderState(output.LockRenderBlanked)
}

func (m *Manager) setSceneEnabled(normalEnabled bool) {
	if m.tree == nil {
		return
	}
	_ = m.tree.SetEnabled(m.normalRoot, normalEnabled)
	_ = m.tree.SetEnabled(m.lockedRoot, !normalEnabled)
}

// CheckInvariant asserts I-L1: while lock_manager.state is locked,
// waiting_for_lock_surfaces, or waiting_for_blank, the normal scene
// subtree must be disabled on every active output. Per §7, a failing
// assertion here is the one fatal error class this core has: it is
// meant to be checked on every render, not recovered from.
func (m *Manager) CheckInvariant() error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if !state.Locking() || m.tree == nil {
		return nil
	}
	enabled, err := m.tree.IsEnabled(m.normalRoot)
	if err != nil {
		return fmt.Errorf("lock: I-L1: %w", err)
	}
	if enabled {
		return fmt.Errorf("lock: I-L1 violated: normal scene subtree enabled while lock_manager.state == %s", state)
	}
	return nil
}
