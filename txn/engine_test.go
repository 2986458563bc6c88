package txn

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rivercore/wmcore/geom"
	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/protocol"
	"github.com/rivercore/wmcore/scene"
	"github.com/rivercore/wmcore/winrec"
	"github.com/rivercore/wmcore/wmbridge"
)

type fakeWMEvents struct {
	mu      sync.Mutex
	updates []protocol.Serial
}

func (f *fakeWMEvents) Update(serial protocol.Serial) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, serial)
}
func (f *fakeWMEvents) lastSerial() (protocol.Serial, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return 0, false
	}
	return f.updates[len(f.updates)-1], true
}
func (f *fakeWMEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}
func (f *fakeWMEvents) Window(protocol.ObjectID) {}
func (f *fakeWMEvents) Output(protocol.ObjectID) {}
func (f *fakeWMEvents) Seat(protocol.ObjectID)   {}
func (f *fakeWMEvents) Done()                    {}

type fakeWindowEvents struct{}

func (fakeWindowEvents) Title(string)                  {}
func (fakeWindowEvents) AppID(string)                  {}
func (fakeWindowEvents) Dimensions(geom.Size)           {}
func (fakeWindowEvents) DecorationHint(bool)            {}
func (fakeWindowEvents) Parent(protocol.ObjectID, bool) {}
func (fakeWindowEvents) Capabilities(uint32)            {}
func (fakeWindowEvents) Removed()                       {}

// fakeAdapter is a configurable winrec.Adapter double for driving the
// engine's render sequence independent of any real surface role.
type fakeAdapter struct {
	mu          sync.Mutex
	tracked     bool
	lastTarget  winrec.TargetState
	committed   geom.Size
	resizeEdges geom.Edges
}

func (a *fakeAdapter) Configure(target winrec.TargetState) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastTarget = target
	return a.tracked, nil
}
func (a *fakeAdapter) NeedsConfigure() bool { return false }
func (a *fakeAdapter) SendClose()           {}
func (a *fakeAdapter) SetFullscreen(bool)   {}
func (a *fakeAdapter) SetActivated(bool)    {}
func (a *fakeAdapter) SetResizing(bool)     {}
func (a *fakeAdapter) DestroyPopups()       {}
func (a *fakeAdapter) GetTitle() (string, bool) { return "win", true }
func (a *fakeAdapter) GetAppID() (string, bool) { return "app", true }
func (a *fakeAdapter) UnreliablePID() int       { return 1234 }
func (a *fakeAdapter) CommittedGeometry() geom.Size {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}
func (a *fakeAdapter) ResizeEdges() geom.Edges {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resizeEdges
}

// fakeHwOutput is a permissive-or-rejecting output.HwOutput double,
// mirroring the one in output/manager_test.go (unexported there, so
// redefined here for this package's tests).
type fakeHwOutput struct {
	hw        output.HwHandle
	preferred output.Mode
	rejectAll bool
}

func (f *fakeHwOutput) Handle() output.HwHandle    { return f.hw }
func (f *fakeHwOutput) PreferredMode() output.Mode { return f.preferred }
func (f *fakeHwOutput) Modes() []output.Mode       { return nil }
func (f *fakeHwOutput) TryCommit(output.OutputState) error {
	if f.rejectAll {
		return fmt.Errorf("fakeHwOutput: rejected")
	}
	return nil
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestEngine() (*Engine, *wmbridge.Bridge, *fakeWMEvents) {
	events := &fakeWMEvents{}
	tree := scene.NewMemTree()
	bridge := wmbridge.NewBridge(events, tree)
	mgr := output.NewManager(tree, nil, bridge.MarkWindowingDirty)
	e := NewEngine(bridge, mgr, tree)
	return e, bridge, events
}

func newTestWindow(t *testing.T, tree scene.Tree, adapter winrec.Adapter) *winrec.Record {
	t.Helper()
	rec := winrec.NewRecord(1, adapter)
	main, err := tree.CreateNode(tree.Root(), scene.NodeKindTree)
	if err != nil {
		t.Fatalf("create main node: %v", err)
	}
	surface, err := tree.CreateNode(main, scene.NodeKindTree)
	if err != nil {
		t.Fatalf("create surface node: %v", err)
	}
	var borders [4]scene.NodeHandle
	for i := range borders {
		borders[i], err = tree.CreateNode(main, scene.NodeKindRect)
		if err != nil {
			t.Fatalf("create border node: %v", err)
		}
	}
	rec.MutateNodes(func(n *winrec.SceneNodes) {
		n.Main = main
		n.Surface = surface
		n.Border = borders
	})
	return rec
}

// TestSingleWindowConfigure covers §8 scenario 1: a WM proposal of
// 800x600 reaches the adapter's configure and, after the client
// acks+commits, current size is 800x600 and all four border rects are
// enabled (ssd && !fullscreen).
func TestSingleWindowConfigure(t *testing.T) {
	e, bridge, events := newTestEngine()
	adapter := &fakeAdapter{tracked: true}
	rec := newTestWindow(t, e.tree, adapter)
	e.AddWindow(rec)

	winObj := bridge.RegisterWindow(rec)
	winObj.BindEvents(fakeWindowEvents{})
	const borderWidth = int32(2)
	if err := winObj.SetBorders(geom.EdgeAll, borderWidth, geom.ColorFromRGBA8(255, 0, 0, 255)); err != nil {
		t.Fatalf("SetBorders: %v", err)
	}
	winObj.UseSSD()
	if err := winObj.ProposeDimensions(geom.Size{Width: 800, Height: 600}); err != nil {
		t.Fatalf("ProposeDimensions: %v", err)
	}

	bridge.MarkWindowingDirty()

	errCh := make(chan error, 1)
	go func() { errCh <- e.RunSequence(context.Background()) }()

	waitUntil(t, time.Second, func() bool { return events.count() == 1 })
	serial, _ := events.lastSerial()
	bridge.AckUpdate(serial)

	bridge.Commit()

	waitUntil(t, time.Second, func() bool {
		a := adapter
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.lastTarget.Size.Width == 800
	})
	if err := e.NotifyConfigured(rec.ID(), winrec.Serial(1)); err != nil {
		t.Fatalf("NotifyConfigured: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("RunSequence: %v", err)
	}

	cur := rec.Current()
	if cur.Size.Width != 800 || cur.Size.Height != 600 {
		t.Fatalf("current size = %+v, want 800x600", cur.Size)
	}

	nodes := rec.Nodes()
	for i, h := range nodes.Border {
		enabled, err := e.tree.IsEnabled(h)
		if err != nil {
			t.Fatalf("IsEnabled: %v", err)
		}
		if !enabled {
			t.Fatalf("border %d should be enabled (ssd && !fullscreen)", i)
		}
	}
}

// TestConfigureTimeoutUsesCommittedGeometry covers §8 scenario 2: if
// the client never acks, commit_transaction still runs after the
// timeout, using the surface's actually-committed geometry rather
// than the requested size.
func TestConfigureTimeoutUsesCommittedGeometry(t *testing.T) {
	e, bridge, events := newTestEngine()
	e.SetTimeout(20 * time.Millisecond)
	adapter := &fakeAdapter{tracked: true, committed: geom.Size{Width: 640, Height: 480}}
	rec := newTestWindow(t, e.tree, adapter)
	e.AddWindow(rec)

	winObj := bridge.RegisterWindow(rec)
	if err := winObj.ProposeDimensions(geom.Size{Width: 800, Height: 600}); err != nil {
		t.Fatalf("ProposeDimensions: %v", err)
	}
	bridge.MarkWindowingDirty()

	errCh := make(chan error, 1)
	go func() { errCh <- e.RunSequence(context.Background()) }()

	waitUntil(t, time.Second, func() bool { return events.count() == 1 })
	serial, _ := events.lastSerial()
	bridge.AckUpdate(serial)
	bridge.Commit()

	// Deliberately never call NotifyConfigured: the client never acks.
	if err := <-errCh; err != nil {
		t.Fatalf("RunSequence: %v", err)
	}

	cur := rec.Current()
	if cur.Size.Width != 640 || cur.Size.Height != 480 {
		t.Fatalf("current size after timeout = %+v, want the committed 640x480, not the requested 800x600", cur.Size)
	}
}

// TestCoalescedDirtyYieldsOneUpdate covers §8 scenario 6: marking
// windowing dirty multiple times within one idle cycle yields exactly
// one Update event.
func TestCoalescedDirtyYieldsOneUpdate(t *testing.T) {
	e, bridge, events := newTestEngine()

	bridge.MarkWindowingDirty()
	bridge.MarkWindowingDirty()
	bridge.MarkWindowingDirty()

	errCh := make(chan error, 1)
	go func() { errCh <- e.RunSequence(context.Background()) }()

	waitUntil(t, time.Second, func() bool { return events.count() == 1 })
	serial, _ := events.lastSerial()
	bridge.AckUpdate(serial)
	bridge.Commit()

	if err := <-errCh; err != nil {
		t.Fatalf("RunSequence: %v", err)
	}
	if got := events.count(); got != 1 {
		t.Fatalf("Update events = %d, want 1", got)
	}
}

// TestResizeAnchoredToLeftTopEdges covers §8 scenario 3.
func TestResizeAnchoredToLeftTopEdges(t *testing.T) {
	e, bridge, events := newTestEngine()
	adapter := &fakeAdapter{tracked: true, committed: geom.Size{Width: 480, Height: 340}, resizeEdges: geom.EdgeLeft | geom.EdgeTop}
	rec := newTestWindow(t, e.tree, adapter)
	// Seed the window's pre-resize current position/size: (100,100,400,300).
	rec.SetInflight(winrec.WmState{Pos: geom.Point{X: 100, Y: 100}, Size: geom.Size{Width: 400, Height: 300}})
	rec.CommitCurrent()
	e.AddWindow(rec)

	winObj := bridge.RegisterWindow(rec)
	winObj.InformResizeStart()
	if err := winObj.ProposeDimensions(geom.Size{Width: 500, Height: 350}); err != nil {
		t.Fatalf("ProposeDimensions: %v", err)
	}
	bridge.MarkWindowingDirty()

	errCh := make(chan error, 1)
	go func() { errCh <- e.RunSequence(context.Background()) }()

	waitUntil(t, time.Second, func() bool { return events.count() == 1 })
	serial, _ := events.lastSerial()
	bridge.AckUpdate(serial)
	bridge.Commit()

	waitUntil(t, time.Second, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return adapter.lastTarget.Size.Width == 500
	})
	if err := e.NotifyConfigured(rec.ID(), winrec.Serial(1)); err != nil {
		t.Fatalf("NotifyConfigured: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("RunSequence: %v", err)
	}

	cur := rec.Current()
	if cur.Pos.X != 120 || cur.Pos.Y != 110 || cur.Size.Width != 480 || cur.Size.Height != 340 {
		t.Fatalf("current = %+v, want pos (120,110) size 480x340 per §8 scenario 3", cur)
	}
}

// TestFullscreenWindowEvacuatesOnOutputDestroy covers §8 scenario 4: a
// window fullscreened on an output that gets destroyed must be
// evacuated to the hidden subtree with fullscreen cleared by the
// ensuing commit, rather than left rendering stale content against a
// gone output.
func TestFullscreenWindowEvacuatesOnOutputDestroy(t *testing.T) {
	e, _, _ := newTestEngine()

	// rejectAll keeps the output in disabled_hard rather than enabled,
	// so destroying it never requires a modeset and never touches the
	// (nil, in this test) swapchain manager.
	hw := &fakeHwOutput{hw: 1, rejectAll: true}
	outRec, err := e.outputs.OnNewOutput(1, hw)
	if err != nil {
		t.Fatalf("OnNewOutput: %v", err)
	}

	adapter := &fakeAdapter{}
	rec := newTestWindow(t, e.tree, adapter)
	e.AddWindow(rec)

	fullscreen := winrec.WmState{
		Size:                geom.Size{Width: 1920, Height: 1080},
		HasFullscreenOutput: true,
		FullscreenOutput:    outRec.ID(),
	}
	rec.SetInflight(fullscreen)
	rec.CommitCurrent()

	// Destroy the output and simulate the manage sequence having
	// already diffed it this cycle (diffOutput calls PromoteSent for
	// every output whose scheduled state differs from sent, so by the
	// time commitWindow runs in the same cycle, Sent() already reflects
	// destroying).
	e.outputs.OnOutputDestroy(1)
	outRec.PromoteSent()

	e.commitWindow(rec)

	cur := rec.Current()
	if cur.HasFullscreenOutput {
		t.Error("expected HasFullscreenOutput to be cleared after evacuation")
	}
	if !cur.Hidden {
		t.Error("expected window to be hidden after evacuation")
	}
	if !cur.Size.IsZero() {
		t.Errorf("expected size to be zeroed after evacuation, got %+v", cur.Size)
	}
}
