package output

import (
	"fmt"
	"sync"

	"github.com/rivercore/wmcore/scene"
)

// ID is a stable identifier for an OutputRecord, a slot-map key per
// spec.md §9 in place of a raw backend pointer or cyclic back-reference.
type ID uint64

// HwHandle identifies a physical (or headless) output as reported by
// the external backend. A single HwHandle maps to exactly one
// OutputRecord for its lifetime.
type HwHandle uint64

// LockRenderState is the per-output pipeline position in the
// session-lock buffer-class handshake (§4.5).
type LockRenderState uint8

const (
	LockRenderPendingUnlock LockRenderState = iota
	LockRenderUnlocked
	LockRenderPendingBlank
	LockRenderBlanked
	LockRenderPendingLockSurface
	LockRenderLockSurface
)

func (s LockRenderState) String() string {
	switch s {
	case LockRenderPendingUnlock:
		return "pending_unlock"
	case LockRenderUnlocked:
		return "unlocked"
	case LockRenderPendingBlank:
		return "pending_blank"
	case LockRenderBlanked:
		return "blanked"
	case LockRenderPendingLockSurface:
		return "pending_lock_surface"
	case LockRenderLockSurface:
		return "lock_surface"
	default:
		return fmt.Sprintf("lock_render_state(%d)", uint8(s))
	}
}

// Record is one physical output's scheduled/sent/current state triple
// plus its lock-render sub-FSM and list membership. Grounded on
// internal/platform/x11/platform.go's width/height +
// pendingWidth/pendingHeight/hasResize pattern, generalized from a
// pair of copies to a triple.
type Record struct {
	mu sync.RWMutex

	id  ID
	hw  HwHandle
	hwOutput HwOutput

	scheduled OutputState
	sent      OutputState
	current   OutputState

	lockRenderState LockRenderState
	gammaDirty      bool

	sceneOutput scene.NodeHandle

	inAllList    bool
	inActiveList bool
	inWmSentList bool

	destroyed bool
}

// HwOutput is the backend interface for one piece of display hardware:
// its advertised modes and the ability to attempt a commit of a given
// state. Grounded on x11/platform.go's Init() sequential mode-fallback
// style.
type HwOutput interface {
	Handle() HwHandle
	PreferredMode() Mode
	Modes() []Mode
	// TryCommit attempts to apply state to the hardware. A non-nil
	// error means the hardware rejected it; the caller is expected to
	// try the next candidate mode.
	TryCommit(state OutputState) error
}

// NewRecord creates a fresh OutputRecord in disabled_hard with no mode,
// the state every output starts in before OutputManager.OnNewOutput
// attempts to enable it.
func NewRecord(id ID, hw HwHandle, hwOutput HwOutput, sceneRoot scene.NodeHandle) *Record {
	init := DefaultOutputState()
	return &Record{
		id:              id,
		hw:              hw,
		hwOutput:        hwOutput,
		scheduled:       init,
		sent:            init,
		current:         init,
		lockRenderState: LockRenderBlanked,
		sceneOutput:     sceneRoot,
		inAllList:       true,
	}
}

func (r *Record) ID() ID       { return r.id }
func (r *Record) Hw() HwHandle { return r.hw }

func (r *Record) Scheduled() OutputState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scheduled
}

func (r *Record) SetScheduled(s OutputState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = s
}

func (r *Record) Sent() OutputState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sent
}

func (r *Record) Current() OutputState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// PromoteSent copies scheduled into sent, the manage-sequence promotion
// step ("sent ← scheduled" in §4.3).
func (r *Record) PromoteSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = r.scheduled
}

// PromoteCurrent copies sent into current, the commit-sequence
// promotion on a successful commit_output_state.
func (r *Record) PromoteCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = r.sent
}

// Revert rolls pending and sent back to current, the §4.1 step-3/4
// failure path: "revert pending/sent ← current for every output".
func (r *Record) Revert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = r.current
	r.sent = r.current
}

func (r *Record) LockRenderState() LockRenderState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lockRenderState
}

func (r *Record) SetLockRenderState(s LockRenderState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockRenderState = s
}

func (r *Record) GammaDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gammaDirty
}

func (r *Record) SetGammaDirty(dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gammaDirty = dirty
}

func (r *Record) SceneOutput() scene.NodeHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sceneOutput
}

func (r *Record) InActiveList() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inActiveList
}

func (r *Record) SetInActiveList(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inActiveList = v
}

func (r *Record) InWmSentList() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inWmSentList
}

func (r *Record) SetInWmSentList(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inWmSentList = v
}

func (r *Record) Destroyed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroyed
}

func (r *Record) MarkDestroyed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
}

// CheckInvariants asserts I-O1/I-O3 for this record, matching the
// assertion-based fatal-error handling §7 calls for on invariant
// violation.
func (r *Record) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// I-O1: current.state != destroying implies the scene_output
	// handle is valid.
	if r.current.State != StateDestroying && r.sceneOutput == scene.NilNode {
		return fmt.Errorf("output: I-O1 violated: output %d is not current-destroying but has no scene_output handle", r.id)
	}
	// I-O3: scheduled.mode = none only before first modeset or after
	// hardware disappearance.
	if r.scheduled.Mode.Kind == ModeNone && r.current.Mode.Kind != ModeNone {
		return fmt.Errorf("output: I-O3 violated: output %d scheduled mode reverted to none after a prior modeset", r.id)
	}
	return nil
}
