package lock

import (
	"testing"

	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/scene"
)

func newTestManager(t *testing.T) (*Manager, scene.Tree, scene.NodeHandle, scene.NodeHandle) {
	t.Helper()
	tree := scene.NewMemTree()
	normal, err := tree.CreateNode(tree.Root(), scene.NodeKindTree)
	if err != nil {
		t.Fatalf("create normal root: %v", err)
	}
	locked, err := tree.CreateNode(tree.Root(), scene.NodeKindTree)
	if err != nil {
		t.Fatalf("create locked root: %v", err)
	}
	m := NewManager(tree, normal, locked)
	return m, tree, normal, locked
}

// TestFullLockSequence covers §8 scenario 5: request_lock drives every
// tracked output through pending_blank → blanked, then
// waiting_for_lock_surfaces → lock_surface, and lock_manager reaches
// locked only once all outputs have settled, with I-L1 holding at
// every step along the way.
func TestFullLockSequence(t *testing.T) {
	m, tree, normal, _ := newTestManager(t)

	out1 := output.NewRecord(1, 1, nil, scene.NilNode)
	out2 := output.NewRecord(2, 2, nil, scene.NilNode)
	m.TrackOutput(out1)
	m.TrackOutput(out2)

	if err := m.RequestLock(); err != nil {
		t.Fatalf("RequestLock: %v", err)
	}
	if m.State() != WaitingForBlank {
		t.Fatalf("state = %s, want waiting_for_blank", m.State())
	}

	if p := m.RenderAndCommit(out1); p != PresentBlank {
		t.Fatalf("out1 policy = %s, want blank", p)
	}
	if err := m.CheckInvariant(); err != nil {
		t.Fatalf("I-L1 during waiting_for_blank: %v", err)
	}
	enabled, _ := tree.IsEnabled(normal)
	if enabled {
		t.Fatalf("normal subtree must be disabled once any output is blanking")
	}

	m.Present(out1)
	if m.State() != WaitingForBlank {
		t.Fatalf("lock_manager must not advance until every tracked output has blanked")
	}

	if p := m.RenderAndCommit(out2); p != PresentBlank {
		t.Fatalf("out2 policy = %s, want blank", p)
	}
	m.Present(out2)
	if m.State() != WaitingForBlank {
		t.Fatalf("request_lock_surfaces_ready has not been called yet, state should still be waiting_for_blank")
	}

	if err := m.RequestLockSurfacesReady(); err != nil {
		t.Fatalf("RequestLockSurfacesReady: %v", err)
	}
	if m.State() != WaitingForLockSurfaces {
		t.Fatalf("state = %s, want waiting_for_lock_surfaces", m.State())
	}

	if p := m.RenderAndCommit(out1); p != PresentLockSurface {
		t.Fatalf("out1 policy = %s, want lock_surface", p)
	}
	m.Present(out1)
	if m.State() != WaitingForLockSurfaces {
		t.Fatalf("lock_manager must wait for out2's lock surface too")
	}

	if p := m.RenderAndCommit(out2); p != PresentLockSurface {
		t.Fatalf("out2 policy = %s, want lock_surface", p)
	}
	m.Present(out2)

	if m.State() != Locked {
		t.Fatalf("state = %s, want locked once every output presented a lock surface", m.State())
	}
	if err := m.CheckInvariant(); err != nil {
		t.Fatalf("I-L1 while locked: %v", err)
	}
}

// TestUnlockRestoresNormalSubtree covers the reverse transition: once
// unlocked, RenderAndCommit must present normal content again and
// CheckInvariant must stop asserting I-L1.
func TestUnlockRestoresNormalSubtree(t *testing.T) {
	m, tree, normal, _ := newTestManager(t)
	out := output.NewRecord(1, 1, nil, scene.NilNode)
	m.TrackOutput(out)

	if err := m.RequestLock(); err != nil {
		t.Fatalf("RequestLock: %v", err)
	}
	m.RenderAndCommit(out)
	m.Present(out)

	m.Unlock()
	if m.State() != Unlocked {
		t.Fatalf("state = %s, want unlocked", m.State())
	}

	if p := m.RenderAndCommit(out); p != PresentNormal {
		t.Fatalf("policy after unlock = %s, want normal", p)
	}
	enabled, err := tree.IsEnabled(normal)
	if err != nil {
		t.Fatalf("IsEnabled: %v", err)
	}
	if !enabled {
		t.Fatalf("normal subtree should be re-enabled once unlocked")
	}
	if err := m.CheckInvariant(); err != nil {
		t.Fatalf("CheckInvariant should pass once unlocked: %v", err)
	}
}

// TestOutputEnableChangeForcesBlank covers the §4.5 rule that toggling
// an output's enable state always resets its lock_render_state to
// blanked.
func TestOutputEnableChangeForcesBlank(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	out := output.NewRecord(1, 1, nil, scene.NilNode)
	out.SetLockRenderState(output.LockRenderLockSurface)

	m.OnOutputEnableChanged(out)

	if out.LockRenderState() != output.LockRenderBlanked {
		t.Fatalf("lock_render_state = %s, want blanked after an output enable change", out.LockRenderState())
	}
}

// TestRequestLockRejectsDoubleLock asserts request_lock only applies
// from unlocked.
func TestRequestLockRejectsDoubleLock(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	if err := m.RequestLock(); err != nil {
		t.Fatalf("RequestLock: %v", err)
	}
	if err := m.RequestLock(); err == nil {
		t.Fatalf("expected error requesting lock twice")
	}
}
