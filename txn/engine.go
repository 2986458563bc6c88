// Package txn implements the TransactionEngine (spec.md §4.3): the
// manage-sequence / render-sequence driver that reconciles WmBridge's
// dirty windowing state with the WM client and, once the client has
// committed and every tracked surface has acked-or-timed-out, commits
// the result to the scene graph and hands off to OutputManager for the
// hardware modeset. Grounded on display.go's Sync()/Roundtrip()
// correlation-key-and-wait pattern: EmitUpdate/WaitAckUpdate and
// WaitCommit are the same "allocate a key, register a channel, wait"
// idiom applied to the manage and render handshakes.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rivercore/wmcore/geom"
	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/scene"
	"github.com/rivercore/wmcore/winrec"
	"github.com/rivercore/wmcore/wmbridge"
)

// DefaultTimeout is the 100ms render-sequence configure timeout named
// throughout §4.3/§5/§8.
const DefaultTimeout = 100 * time.Millisecond

// Engine drives the transaction cycle described in spec.md §4.3. Only
// one sequence runs at a time; concurrent dirty events coalesce (§5).
type Engine struct {
	mu sync.Mutex

	bridge  *wmbridge.Bridge
	outputs *output.Manager
	tree    scene.Tree

	windows map[winrec.ID]*winrec.Record
	order   []winrec.ID

	timeout time.Duration

	inFlight bool

	// render-sequence-scoped tracker state; valid only while a render
	// sequence's configure wait is active.
	trackers  map[winrec.ID]*winrec.ConfigureTracker
	remaining int
	settledCh chan struct{}
}

// NewEngine constructs a TransactionEngine bound to the bridge,
// output manager, and scene tree it coordinates.
func NewEngine(bridge *wmbridge.Bridge, outputs *output.Manager, tree scene.Tree) *Engine {
	return &Engine{
		bridge:  bridge,
		outputs: outputs,
		tree:    tree,
		windows: make(map[winrec.ID]*winrec.Record),
		timeout: DefaultTimeout,
	}
}

// SetTimeout overrides the render-sequence configure timeout (tests
// use this to avoid a real 100ms sleep).
func (e *Engine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

// AddWindow registers a WindowRecord with the engine's reconciliation
// order, the engine's analog of the bridge's WM-object registry: every
// mapped-or-map-pending window the engine knows about, whether or not
// it has been exposed to the WM client yet.
func (e *Engine) AddWindow(rec *winrec.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.windows[rec.ID()]; exists {
		return
	}
	e.windows[rec.ID()] = rec
	e.order = append(e.order, rec.ID())
}

// RemoveWindow evacuates a window to the hidden subtree and drops it
// from the engine's reconciliation order. Per I-W2, an unmapped window
// with an empty current box must not remain in any visible subtree.
func (e *Engine) RemoveWindow(rec *winrec.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.windows, rec.ID())
	for i, id := range e.order {
		if id == rec.ID() {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.evacuateToHidden(rec)
	if e.bridge != nil {
		e.bridge.RemoveWindow(rec)
	}
}

func (e *Engine) evacuateToHidden(rec *winrec.Record) {
	nodes := rec.Nodes()
	_ = e.tree.SetEnabled(nodes.Main, false)
	cur := rec.Current()
	cur.Hidden = true
	cur.Size = geom.Size{}
	cur.HasFullscreenOutput = false
	rec.SetInflight(cur)
	rec.CommitCurrent()
}

// NotifyConfigured is called once a tracked window's surface has both
// acked and committed a configure (§4.3 "notify_configured()"). It
// settles that window's tracker and, once every tracked window has
// settled, wakes the render sequence's wait.
func (e *Engine) NotifyConfigured(id winrec.ID, serial winrec.Serial) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.trackers[id]
	if !ok {
		return nil // window wasn't tracked this sequence; nothing to do
	}
	if err := tr.Ack(serial); err != nil {
		return fmt.Errorf("txn: notify_configured: %w", err)
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("txn: notify_configured: %w", err)
	}
	e.remaining--
	if e.remaining <= 0 && e.settledCh != nil {
		close(e.settledCh)
		e.settledCh = nil
	}
	return nil
}

// RunSequence runs one manage+render+commit cycle if the bridge's
// windowing-dirty flag is set and no transaction is currently in
// flight. A caller drives this from an idle dispatcher; repeated
// calls within one idle cycle that find no dirty flag set are no-ops,
// the coalescing behavior §8 calls "Idempotence".
func (e *Engine) RunSequence(ctx context.Context) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil
	}
	if !e.bridge.WindowingDirty() {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	if err := e.manageSequence(ctx); err != nil {
		return fmt.Errorf("txn: manage sequence: %w", err)
	}
	if err := e.renderSequence(ctx); err != nil {
		return fmt.Errorf("txn: render sequence: %w", err)
	}
	if err := e.commitTransaction(); err != nil {
		return fmt.Errorf("txn: commit transaction: %w", err)
	}

	if e.bridge.TakePendingStateDirty() {
		e.bridge.MarkWindowingDirty()
	}
	return nil
}

// manageSequence pushes scheduled output and window state to the WM
// client and waits for its ack_update, per §4.3 step 1.
func (e *Engine) manageSequence(ctx context.Context) error {
	for _, rec := range e.outputs.Records() {
		e.diffOutput(rec)
	}

	e.mu.Lock()
	windows := make([]*winrec.Record, 0, len(e.order))
	for _, id := range e.order {
		windows = append(windows, e.windows[id])
	}
	e.mu.Unlock()

	for _, rec := range windows {
		e.diffWindow(rec)
	}

	serial := e.bridge.EmitUpdate()
	return e.bridge.WaitAckUpdate(ctx, serial)
}

func (e *Engine) diffOutput(rec *output.Record) {
	scheduled, sent := rec.Scheduled(), rec.Sent()
	if scheduled == sent {
		return
	}

	removing := scheduled.State == output.StateDisabledHard || scheduled.State == output.StateDestroying
	if removing {
		if rec.InWmSentList() {
			e.bridge.RemoveOutput(rec)
			rec.SetInWmSentList(false)
		}
	} else {
		obj := e.bridge.RegisterOutput(rec)
		if obj.Events() != nil {
			obj.Events().Position(scheduled.Pos)
			obj.Events().Mode(geom.Size{Width: scheduled.Width(), Height: scheduled.Height()}, scheduled.Mode.RefreshMilliHz)
			obj.Events().State(scheduled.State == output.StateEnabled)
		}
		rec.SetInWmSentList(true)
	}
	rec.PromoteSent()
}

func (e *Engine) diffWindow(rec *winrec.Record) {
	pending, sent := rec.Pending(), rec.Sent()
	if rec.Destroying() {
		return
	}
	if pending == sent {
		return
	}

	obj := e.bridge.RegisterWindow(rec)
	if obj.Events() != nil {
		title, _ := safeAdapterTitle(rec)
		appID, _ := safeAdapterAppID(rec)
		obj.Events().Title(title)
		obj.Events().AppID(appID)
		obj.Events().Dimensions(pending.Size)
		obj.Events().DecorationHint(pending.SSD)
		obj.Events().Parent(0, false)
		obj.Events().Capabilities(uint32(pending.Capabilities))
	}
	rec.PromoteSent()
}

func safeAdapterTitle(rec *winrec.Record) (string, bool) {
	if a := rec.Adapter(); a != nil {
		return a.GetTitle()
	}
	return "", false
}

func safeAdapterAppID(rec *winrec.Record) (string, bool) {
	if a := rec.Adapter(); a != nil {
		return a.GetAppID()
	}
	return "", false
}

// renderSequence waits for the WM client's commit, derives each
// window's inflight state, issues configures, and waits for every
// tracked configure to ack+commit or time out, per §4.3 step 2.
func (e *Engine) renderSequence(ctx context.Context) error {
	if err := e.bridge.WaitCommit(ctx); err != nil {
		return err
	}

	focused := e.bridge.ActivatedWindows()

	e.mu.Lock()
	windows := make([]*winrec.Record, 0, len(e.order))
	for _, id := range e.order {
		windows = append(windows, e.windows[id])
	}
	e.mu.Unlock()

	trackers := make(map[winrec.ID]*winrec.ConfigureTracker)
	serial := winrec.Serial(1)
	tracked := 0

	for _, rec := range windows {
		rec.PromoteCommitted()
		committed := rec.Committed()
		committed.Activated = focused[rec.ID()]
		rec.SetInflight(committed)

		adapter := rec.Adapter()
		if adapter == nil {
			continue
		}
		target := winrec.TargetState{
			Size:       committed.Size,
			Activated:  committed.Activated,
			Maximized:  committed.Maximized,
			Fullscreen: committed.HasFullscreenOutput,
			TiledEdges: committed.TiledEdges,
			Resizing:   committed.Resizing,
		}
		isTracked, err := adapter.Configure(target)
		if err != nil {
			slog.Warn("txn: configure failed, skipping window", "window", rec.ID(), "err", err)
			continue
		}
		if isTracked {
			tr := &winrec.ConfigureTracker{}
			_ = tr.Begin(serial)
			trackers[rec.ID()] = tr
			serial++
			tracked++
		}
	}

	if tracked > 0 {
		e.mu.Lock()
		e.trackers = trackers
		e.remaining = tracked
		done := make(chan struct{})
		e.settledCh = done
		e.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		select {
		case <-done:
		case <-waitCtx.Done():
			e.mu.Lock()
			for id, tr := range e.trackers {
				if !tr.Settled() {
					tr.Timeout()
					slog.Warn("txn: configure timed out, using imperfect frame", "window", id)
				}
			}
			e.settledCh = nil
			e.mu.Unlock()
		}
	}

	// Windows whose tracked configure timed out fall back to their
	// surface's actually-committed geometry rather than the size we
	// requested, per §4.3/§8 scenario 2. Windows without a tracker are
	// not adjusted here.
	e.mu.Lock()
	for id, tr := range e.trackers {
		if tr.State() == winrec.ConfigureTimedOut || tr.State() == winrec.ConfigureTimedOutAcked {
			if rec, ok := e.windows[id]; ok {
				applyTimeoutGeometry(rec)
			}
		}
	}
	e.trackers = nil
	e.mu.Unlock()

	for _, rec := range windows {
		e.finalizeResizePosition(rec)
		e.saveSurface(rec)
	}
	return nil
}

func applyTimeoutGeometry(rec *winrec.Record) {
	adapter := rec.Adapter()
	if adapter == nil {
		return
	}
	inflight := rec.Inflight()
	inflight.Size = adapter.CommittedGeometry()
	rec.SetInflight(inflight)
}

// finalizeResizePosition applies the left/top-edge anchor correction
// (§8 scenario 3) once the client's actual committed size is known:
// inflight.box's position is only authoritative after this runs,
// satisfying I-W4.
func (e *Engine) finalizeResizePosition(rec *winrec.Record) {
	adapter := rec.Adapter()
	if adapter == nil {
		return
	}
	inflight := rec.Inflight()
	if !inflight.Resizing {
		return
	}
	edges := adapter.ResizeEdges()
	if edges == geom.EdgeNone {
		return
	}
	actual := adapter.CommittedGeometry()
	if actual.IsZero() {
		actual = inflight.Size
	}
	requested := inflight.Size
	inflight.Pos = winrec.ComputeResizePosition(rec.Current().Pos, edges, requested, actual)
	inflight.Size = actual
	rec.SetInflight(inflight)
}

func (e *Engine) saveSurface(rec *winrec.Record) {
	nodes := rec.Nodes()
	if nodes.Surface == scene.NilNode {
		return
	}
	saved, err := e.tree.SaveBuffer(nodes.Surface)
	if err != nil {
		return
	}
	rec.MutateNodes(func(n *winrec.SceneNodes) {
		n.SavedSurface = saved
		n.HasSaved = true
	})
}

// commitTransaction applies current ← inflight for every window,
// reparents/resizes scene nodes, then drives OutputManager's batch
// modeset, per §4.3. A non-nil return is a live I-O1/I-O3/I-W1
// invariant violation, the one fatal error class named in §7; the
// caller is expected to halt rather than continue the event loop.
func (e *Engine) commitTransaction() error {
	e.mu.Lock()
	windows := make([]*winrec.Record, 0, len(e.order))
	for _, id := range e.order {
		windows = append(windows, e.windows[id])
	}
	e.mu.Unlock()

	for _, rec := range windows {
		e.commitWindow(rec)
	}

	if err := e.outputs.CommitOutputState(); err != nil {
		slog.Warn("txn: commit_output_state failed, reverted", "err", err)
	}

	return e.checkInvariants(windows)
}

// checkInvariants asserts I-W1 on every window and I-O1/I-O3 on every
// output, the live enforcement §7 calls for ("only an invariant
// violation ... asserted and aborts"). Previously these were only
// exercised by each package's own unit tests; this is the call site
// that makes them load-bearing.
func (e *Engine) checkInvariants(windows []*winrec.Record) error {
	for _, rec := range windows {
		if err := rec.CheckInvariants(); err != nil {
			return err
		}
	}
	return e.outputs.CheckInvariants()
}

func (e *Engine) commitWindow(rec *winrec.Record) {
	rec.CommitCurrent()
	e.evacuateDestroyedFullscreen(rec)
	nodes := rec.Nodes()

	if nodes.HasSaved {
		_ = e.tree.DropSavedBuffer(nodes.SavedSurface)
		rec.MutateNodes(func(n *winrec.SceneNodes) { n.HasSaved = false })
	}

	cur := rec.Current()
	box := cur.Box()
	_ = e.tree.SetPosition(nodes.Main, box.Pos())
	if nodes.Popup != scene.NilNode {
		_ = e.tree.SetPosition(nodes.Popup, box.Pos())
	}

	borderWidth := cur.BorderWidth
	left, right, top, bottom := geom.BorderBoxes(box, borderWidth)
	enabled := cur.BorderEnabled()
	for i, b := range [4]geom.Box{left, right, top, bottom} {
		h := nodes.Border[i]
		if h == scene.NilNode {
			continue
		}
		_ = e.tree.SetEnabled(h, enabled)
		_ = e.tree.SetPosition(h, b.Pos())
		_ = e.tree.SetSize(h, b.Size())
		_ = e.tree.SetColor(h, cur.BorderColor)
	}

	if nodes.HasFullscreenBg {
		enableFs := cur.HasFullscreenOutput
		_ = e.tree.SetEnabled(nodes.FullscreenBg, enableFs)
		if enableFs {
			if outRec, ok := e.outputs.RecordByID(cur.FullscreenOutput); ok {
				st := outRec.Current()
				_ = e.tree.SetSize(nodes.FullscreenBg, geom.Size{Width: st.Width(), Height: st.Height()})
				_ = e.tree.SetPosition(nodes.FullscreenBg, st.Pos)
			}
		}
	}

	_ = e.tree.SetEnabled(nodes.Main, !cur.Hidden)
}

// evacuateDestroyedFullscreen implements §8 scenario 4: a window
// fullscreened on an output that has been destroyed (or is in the
// process of being destroyed — its sent state already reflects
// destroying by the time commitWindow runs in the same cycle the
// destroy was diffed) is moved to the hidden subtree with fullscreen
// cleared, rather than left rendering stale content against a gone
// output. This is the Open Question decision recorded in DESIGN.md
// ("evacuate to hidden, clear fullscreen").
func (e *Engine) evacuateDestroyedFullscreen(rec *winrec.Record) {
	cur := rec.Current()
	if !cur.HasFullscreenOutput {
		return
	}
	outRec, ok := e.outputs.RecordByID(cur.FullscreenOutput)
	gone := !ok || outRec.Sent().State == output.StateDestroying || outRec.Sent().State == output.StateDisabledHard
	if !gone {
		return
	}
	cur.HasFullscreenOutput = false
	cur.Hidden = true
	cur.Size = geom.Size{}
	rec.SetCurrent(cur)
}
