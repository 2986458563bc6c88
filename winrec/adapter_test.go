package winrec

import "testing"

func TestConfigureTrackerHappyPath(t *testing.T) {
	var tr ConfigureTracker

	if err := tr.Begin(42); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if tr.State() != ConfigureInflight {
		t.Fatalf("State() = %v, want inflight", tr.State())
	}

	if err := tr.Ack(42); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	if tr.State() != ConfigureAcked {
		t.Fatalf("State() = %v, want acked", tr.State())
	}

	if err := tr.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !tr.Settled() {
		t.Error("expected Settled() after commit")
	}
}

func TestConfigureTrackerWrongSerial(t *testing.T) {
	var tr ConfigureTracker
	tr.Begin(1)
	if err := tr.Ack(2); err == nil {
		t.Error("expected Ack() with mismatched serial to error")
	}
}

func TestConfigureTrackerTimeoutBeforeAck(t *testing.T) {
	var tr ConfigureTracker
	tr.Begin(1)
	tr.Timeout()
	if tr.State() != ConfigureTimedOut {
		t.Fatalf("State() = %v, want timed_out", tr.State())
	}
	if !tr.Settled() {
		t.Error("expected Settled() once timed out")
	}

	// A late ack after timeout should still be accepted into
	// timed_out_acked per §4.2.
	if err := tr.Ack(1); err != nil {
		t.Fatalf("late Ack() error = %v", err)
	}
	if tr.State() != ConfigureTimedOutAcked {
		t.Fatalf("State() = %v, want timed_out_acked", tr.State())
	}
}

func TestConfigureTrackerTimeoutAfterAck(t *testing.T) {
	var tr ConfigureTracker
	tr.Begin(1)
	tr.Ack(1)
	tr.Timeout()
	if tr.State() != ConfigureTimedOutAcked {
		t.Fatalf("State() = %v, want timed_out_acked", tr.State())
	}
}

func TestConfigureTrackerCommitWithoutAck(t *testing.T) {
	var tr ConfigureTracker
	tr.Begin(1)
	if err := tr.Commit(); err == nil {
		t.Error("expected Commit() without a prior Ack to error")
	}
}

func TestConfigureTrackerResetReuse(t *testing.T) {
	var tr ConfigureTracker
	tr.Begin(1)
	tr.Ack(1)
	tr.Commit()
	tr.Reset()
	if tr.State() != ConfigureIdle {
		t.Fatalf("State() after Reset() = %v, want idle", tr.State())
	}
	if err := tr.Begin(2); err != nil {
		t.Fatalf("Begin() after Reset() error = %v", err)
	}
}
