package world

import (
	"testing"

	"github.com/quantarax/dispatch/internal/wire"
)

func moduleDescFixture(name string) wire.ModuleDescriptor {
	return wire.ModuleDescriptor{Name: name, Size: 4, ChunkSize: 4, TotalChunks: 1}
}

func TestSpawnDespawn(t *testing.T) {
	w := New()
	id := w.Spawn()
	if id == 0 {
		t.Fatal("Spawn returned zero entity")
	}
	w.SetTask(id, &Task{Module: "m"})
	w.SetTaskState(id, &TaskState{Phase: PhaseQueued})

	if _, ok := w.Task(id); !ok {
		t.Fatal("expected Task component present")
	}
	w.Despawn(id)
	if _, ok := w.Task(id); ok {
		t.Fatal("expected Task component gone after Despawn")
	}
	if _, ok := w.TaskState(id); ok {
		t.Fatal("expected TaskState component gone after Despawn")
	}
}

func TestQueuedTasksWithoutTransfer(t *testing.T) {
	w := New()
	queued := w.Spawn()
	w.SetTaskState(queued, &TaskState{Phase: PhaseQueued})

	withTransfer := w.Spawn()
	w.SetTaskState(withTransfer, &TaskState{Phase: PhaseQueued})
	w.SetTransfer(withTransfer, NewTransfer(1, 2))

	executing := w.Spawn()
	w.SetTaskState(executing, &TaskState{Phase: PhaseExecuting})

	got := w.QueuedTasksWithoutTransfer()
	if len(got) != 1 || got[0] != queued {
		t.Fatalf("got %v, want [%d]", got, queued)
	}
}

func TestConnectedSessions(t *testing.T) {
	w := New()
	connected := w.Spawn()
	w.SetSessionHealth(connected, &SessionHealth{Status: SessionConnected})

	occupied := w.Spawn()
	w.SetSessionHealth(occupied, &SessionHealth{Status: SessionOccupied})

	got := w.ConnectedSessions()
	if len(got) != 1 || got[0] != connected {
		t.Fatalf("got %v, want [%d]", got, connected)
	}
}

func TestTransferAckBitset(t *testing.T) {
	tr := NewTransfer(1, 10)
	if tr.AllAcked() {
		t.Fatal("freshly created transfer should not be all-acked")
	}
	indices := tr.UnackedIndices()
	if len(indices) != 10 {
		t.Fatalf("got %d unacked, want 10", len(indices))
	}

	for i := uint32(0); i < 10; i++ {
		tr.SetAcked(i, true)
	}
	if !tr.AllAcked() {
		t.Fatal("expected all-acked after marking every index")
	}

	tr.SetAcked(3, false)
	if tr.AllAcked() {
		t.Fatal("expected not all-acked after clearing one bit")
	}
}

func TestTransferSetAllAcked(t *testing.T) {
	tr := NewTransfer(1, 13)
	tr.SetAllAcked()
	if !tr.AllAcked() {
		t.Fatal("SetAllAcked should mark every chunk acknowledged, including a partial final byte")
	}
}

func TestModuleByName(t *testing.T) {
	w := New()
	id := w.Spawn()
	w.SetModule(id, &Module{Descriptor: moduleDescFixture("m")})

	gotID, m, ok := w.ModuleByName("m")
	if !ok || gotID != id || m.Descriptor.Name != "m" {
		t.Fatalf("ModuleByName lookup failed: id=%d ok=%v", gotID, ok)
	}

	if _, _, ok := w.ModuleByName("missing"); ok {
		t.Fatal("expected ModuleByName to miss for unregistered name")
	}
}

func TestSessionReplaceCachedModules(t *testing.T) {
	s := NewSession("10.0.0.1:9000")
	s.ReplaceCachedModules([]string{"a", "b"})
	if !s.HasModule("a") || !s.HasModule("b") {
		t.Fatal("expected both modules present")
	}
	s.ReplaceCachedModules([]string{"c"})
	if s.HasModule("a") {
		t.Fatal("expected stale module dropped after replace")
	}
	if !s.HasModule("c") {
		t.Fatal("expected new module present after replace")
	}
}
