package output

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-webgpu/webgpu"
	"github.com/rivercore/wmcore/scene"
)

// PendingConfig is a WM-proposed batch of per-output states, submitted
// through on_manager_apply/on_manager_test (the wlr-output-management
// analog named in §4.1).
type PendingConfig struct {
	States map[HwHandle]OutputState

	// SendSucceeded/SendFailed notify the WM protocol object that
	// requested this config; OutputManager calls exactly one of them
	// once the batch's outcome is known.
	SendSucceeded func()
	SendFailed    func()
}

// Head is a read-only snapshot of one output's current configuration,
// the accessor SPEC_FULL.md adds for the output-configuration head
// list (§4.1 "expose an output-configuration head list").
type Head struct {
	ID      ID
	Hw      HwHandle
	Current OutputState
	Enabled bool
}

// Manager aggregates OutputRecords and drives hardware modeset
// batches. Grounded on internal/platform/x11/platform.go's pending/
// current pattern (per-record) and its Init() sequential-fallback mode
// selection.
type Manager struct {
	mu sync.Mutex

	nextID atomic.Uint64

	// order preserves first-attached-to-leftmost list order for
	// reconciliation (§4.1 "outputs are reconciled in list order").
	order   []HwHandle
	records map[HwHandle]*Record

	tree      scene.Tree
	swapchain *scene.SwapchainManager
	surfaces  map[uint64]*webgpu.Surface

	// onWindowingDirty is called whenever an operation here must mark
	// the WmBridge's windowing-dirty flag; the bridge, not this
	// package, owns that flag (§3 "WmBridge ... owns the dirty
	// windowing ... flags").
	onWindowingDirty func()

	pending *PendingConfig

	// x11BridgeActive gates the documented upstream bug workaround:
	// reject negative coordinates only when an X11 bridge is active.
	x11BridgeActive bool
}

// NewManager constructs an OutputManager bound to a scene tree, a
// swapchain manager, and the dirty-flag callback owned by the bridge.
func NewManager(tree scene.Tree, swapchain *scene.SwapchainManager, onWindowingDirty func()) *Manager {
	return &Manager{
		records:          make(map[HwHandle]*Record),
		tree:             tree,
		swapchain:        swapchain,
		surfaces:         make(map[uint64]*webgpu.Surface),
		onWindowingDirty: onWindowingDirty,
	}
}

func (m *Manager) markDirty() {
	if m.onWindowingDirty != nil {
		m.onWindowingDirty()
	}
}

// SetX11BridgeActive toggles the upstream negative-coordinate rejection
// workaround named in §4.1.
func (m *Manager) SetX11BridgeActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x11BridgeActive = active
}

// OnNewOutput creates an OutputRecord for newly discovered hardware in
// disabled_hard, then tries the preferred mode and falls back through
// the hardware's mode list in order until one commits, mirroring
// x11/platform.go Init()'s sequential non-fatal fallback style. If no
// mode succeeds the output stays disabled; a later WM-driven custom
// mode may still enable it.
func (m *Manager) OnNewOutput(hw HwHandle, hwOutput HwOutput) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[hw]; exists {
		return nil, fmt.Errorf("output: on_new_output: hw handle %d already registered", hw)
	}

	sceneOutput, err := m.tree.CreateNode(m.tree.Root(), scene.NodeKindTree)
	if err != nil {
		return nil, fmt.Errorf("output: on_new_output: create scene node: %w", err)
	}

	id := ID(m.nextID.Add(1))
	rec := NewRecord(id, hw, hwOutput, sceneOutput)

	candidates := append([]Mode{hwOutput.PreferredMode()}, hwOutput.Modes()...)
	enabled := false
	for _, mode := range candidates {
		if mode.Kind == ModeNone {
			continue
		}
		trial := OutputState{State: StateEnabled, Scale: 1.0, Mode: mode}
		if err := hwOutput.TryCommit(trial); err == nil {
			rec.SetScheduled(trial)
			enabled = true
			break
		}
		slog.Warn("output: candidate mode rejected by hardware", "hw", hw, "mode", mode)
	}
	if !enabled {
		slog.Warn("output: no advertised mode could be enabled, leaving disabled", "hw", hw)
	}

	m.records[hw] = rec
	m.order = append(m.order, hw)
	rec.SetInActiveList(true)
	m.markDirty()
	return rec, nil
}

// OnOutputDestroy marks an output for removal. Memory is not released
// here: the record lingers until the destroying state has been sent
// and acknowledged in a manage sequence, per §4.1.
func (m *Manager) OnOutputDestroy(hw HwHandle) {
	m.mu.Lock()
	rec, ok := m.records[hw]
	m.mu.Unlock()
	if !ok {
		return
	}
	s := rec.Scheduled()
	s.State = StateDestroying
	rec.SetScheduled(s)
	m.markDirty()
}

// reapDestroyed removes records whose destroying state has fully
// landed in current (sent+acked via a completed manage/commit cycle),
// releasing their scene node.
func (m *Manager) reapDestroyed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hw, rec := range m.records {
		if rec.Current().State == StateDestroying && !rec.InWmSentList() {
			m.tree.DestroyNode(rec.SceneOutput())
			rec.MarkDestroyed()
			delete(m.records, hw)
			for i, h := range m.order {
				if h == hw {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		}
	}
}

// OnRequestState handles a backend-initiated state-change request
// (e.g. a hotplug-driven preferred-mode change). Only mode changes are
// accepted from the backend; any other requested bit is logged and
// dropped, per §4.1.
func (m *Manager) OnRequestState(hw HwHandle, requested OutputState) error {
	m.mu.Lock()
	rec, ok := m.records[hw]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("output: on_request_state: unknown hw handle %d", hw)
	}

	current := rec.Scheduled()
	if requested.State != current.State ||
		requested.Pos != current.Pos ||
		requested.AdaptiveSync != current.AdaptiveSync ||
		requested.AutoLayout != current.AutoLayout {
		slog.Info("output: dropping unsupported backend-requested state bits", "hw", hw)
	}

	if requested.Mode != current.Mode {
		current.Mode = requested.Mode
		rec.SetScheduled(current)
		m.markDirty()
	}
	return nil
}

// OnManagerApply validates and stages a WM-proposed output
// configuration. When test is true this is on_manager_test: it
// validates and reports success/failure without storing anything for
// later commit.
func (m *Manager) OnManagerApply(cfg *PendingConfig, test bool) error {
	m.mu.Lock()
	x11Active := m.x11BridgeActive
	m.mu.Unlock()

	for hw, st := range cfg.States {
		if x11Active && (st.Pos.X < 0 || st.Pos.Y < 0) {
			if cfg.SendFailed != nil {
				cfg.SendFailed()
			}
			return fmt.Errorf("output: on_manager_apply: negative coordinates rejected for hw %d under X11 bridging", hw)
		}
	}

	if test {
		states := make([]scene.OutputSwapState, 0, len(cfg.States))
		for hw, st := range cfg.States {
			states = append(states, scene.OutputSwapState{
				OutputID: uint64(hw),
				Width:    uint32(st.Width()),
				Height:   uint32(st.Height()),
			})
		}
		if err := m.swapchain.Prepare(m.surfaces, states); err != nil {
			if cfg.SendFailed != nil {
				cfg.SendFailed()
			}
			return err
		}
		m.swapchain.Revert()
		if cfg.SendSucceeded != nil {
			cfg.SendSucceeded()
		}
		return nil
	}

	m.mu.Lock()
	for hw, st := range cfg.States {
		if rec, ok := m.records[hw]; ok {
			rec.SetScheduled(st)
		}
	}
	m.pending = cfg
	m.mu.Unlock()
	m.markDirty()
	return nil
}

// RegisterSurface associates a wgpu surface with a hardware output, a
// prerequisite for that output to participate in CommitOutputState's
// swapchain prepare step.
func (m *Manager) RegisterSurface(hw HwHandle, surface *webgpu.Surface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surfaces[uint64(hw)] = surface
}

// CommitOutputState runs the five-step batch modeset described in
// §4.1, called by the transaction engine at the tail of a commit
// sequence.
func (m *Manager) CommitOutputState() error {
	m.mu.Lock()
	records := make([]*Record, 0, len(m.order))
	for _, hw := range m.order {
		records = append(records, m.records[hw])
	}
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	// Step 1: position enabled/soft-disabled outputs in the layout;
	// remove disabled-hard/destroying ones. Layout positioning is
	// purely additive and left to the external scene library; here we
	// only toggle scene_output enablement.
	for _, rec := range records {
		st := rec.Sent()
		layoutIn := st.State == StateEnabled || st.State == StateDisabledSoft
		_ = m.tree.SetEnabled(rec.SceneOutput(), layoutIn)
		if layoutIn {
			_ = m.tree.SetPosition(rec.SceneOutput(), st.Pos)
		}
	}

	// Step 2: detect whether any output needs a modeset.
	needsModeset := false
	for _, rec := range records {
		if rec.Current().NeedsModeset(rec.Sent()) {
			needsModeset = true
			break
		}
	}
	if !needsModeset {
		for _, rec := range records {
			rec.PromoteCurrent()
		}
		if pending != nil && pending.SendSucceeded != nil {
			pending.SendSucceeded()
		}
		return nil
	}

	// Step 3: prepare a swapchain manager for the batch; revert
	// everything on failure.
	states := make([]scene.OutputSwapState, 0, len(records))
	for _, rec := range records {
		st := rec.Sent()
		states = append(states, scene.OutputSwapState{
			OutputID:     uint64(rec.Hw()),
			Width:        uint32(st.Width()),
			Height:       uint32(st.Height()),
			AdaptiveSync: st.AdaptiveSync,
		})
	}
	if err := m.swapchain.Prepare(m.surfaces, states); err != nil {
		m.revertAll(records)
		if pending != nil && pending.SendFailed != nil {
			pending.SendFailed()
		}
		m.markDirty()
		return fmt.Errorf("output: commit_output_state: prepare: %w", err)
	}

	// Step 4: commit to the backend; revert on failure likewise.
	if err := m.swapchain.Commit(); err != nil {
		m.swapchain.Revert()
		m.revertAll(records)
		if pending != nil && pending.SendFailed != nil {
			pending.SendFailed()
		}
		m.markDirty()
		return fmt.Errorf("output: commit_output_state: commit: %w", err)
	}

	// Step 5: success — promote current ← sent for every output.
	for _, rec := range records {
		rec.PromoteCurrent()
	}
	if pending != nil && pending.SendSucceeded != nil {
		pending.SendSucceeded()
	}

	m.reapDestroyed()
	return nil
}

func (m *Manager) revertAll(records []*Record) {
	for _, rec := range records {
		rec.Revert()
	}
}

// Heads returns a stable-ordered snapshot of every known output, for
// the wlr-output-management-equivalent head list.
func (m *Manager) Heads() []Head {
	m.mu.Lock()
	defer m.mu.Unlock()
	heads := make([]Head, 0, len(m.order))
	for _, hw := range m.order {
		rec := m.records[hw]
		cur := rec.Current()
		heads = append(heads, Head{
			ID:      rec.ID(),
			Hw:      hw,
			Current: cur,
			Enabled: cur.State == StateEnabled,
		})
	}
	return heads
}

// Records returns every known OutputRecord in list order (first
// attached → leftmost), the order the transaction engine's manage
// sequence reconciles outputs in (§4.1 "Tie-breaks and orderings").
func (m *Manager) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, 0, len(m.order))
	for _, hw := range m.order {
		out = append(out, m.records[hw])
	}
	return out
}

// Record returns the OutputRecord for a hardware handle, if any.
func (m *Manager) Record(hw HwHandle) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[hw]
	return rec, ok
}

// RecordByID resolves an OutputRecord by its stable ID, used when a
// window's fullscreen target references an output by ID rather than
// by hardware handle.
func (m *Manager) RecordByID(id ID) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID() == id {
			return rec, true
		}
	}
	return nil, false
}

// CheckInvariants asserts I-O1/I-O3 across every tracked output,
// called by the transaction engine at the tail of each commit
// sequence (§7: "only an invariant violation ... asserted and
// aborts").
func (m *Manager) CheckInvariants() error {
	m.mu.Lock()
	records := make([]*Record, 0, len(m.order))
	for _, hw := range m.order {
		records = append(records, m.records[hw])
	}
	m.mu.Unlock()

	for _, rec := range records {
		if err := rec.CheckInvariants(); err != nil {
			return err
		}
	}
	return nil
}
