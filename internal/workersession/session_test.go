package workersession

import (
	"testing"

	"github.com/quantarax/dispatch/internal/executor"
	"github.com/quantarax/dispatch/internal/modcache"
	"github.com/quantarax/dispatch/internal/moduledesc"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/wire"
)

func echoExecutor() *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register("m", func(binary []byte, params []wire.Value) ([]wire.Value, error) {
		return []wire.Value{wire.I32Value(42)}, nil
	})
	return reg
}

// read drains bytes written by the session's peer pipe end into a wire
// decoder and returns every complete message found so far.
func read(t *testing.T, peer transport.Transport, dec *wire.Decoder) []wire.Message {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer Read: %v", err)
	}
	dec.Feed(buf[:n])
	msgs, err := dec.DrainAll()
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	return msgs
}

func send(t *testing.T, peer transport.Transport, msg wire.Message) {
	t.Helper()
	if _, err := peer.Write(wire.Encode(msg)); err != nil {
		t.Fatalf("peer Write: %v", err)
	}
}

// TestTwoChunkTransfer mirrors spec.md §8 scenario 1: module "m" of 1024
// bytes, chunk_size 512, total_chunks 2, delivered in order.
func TestTwoChunkTransfer(t *testing.T) {
	local, peer := transport.NewPipe()
	cache := modcache.New(4096, nil)
	sess := New(local, cache, echoExecutor())

	if err := sess.SendReady(8192); err != nil {
		t.Fatalf("SendReady: %v", err)
	}
	if err := sess.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var dec wire.Decoder
	msgs := read(t, peer, &dec)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 ClientReady", len(msgs))
	}
	if _, ok := msgs[0].(wire.ClientReady); !ok {
		t.Fatalf("got %T, want ClientReady", msgs[0])
	}

	chunk0 := make([]byte, 512)
	chunk1 := make([]byte, 512)
	for i := range chunk0 {
		chunk0[i] = byte(i)
	}
	for i := range chunk1 {
		chunk1[i] = byte(i + 1)
	}
	// The descriptor carries the BLAKE3 digest of the module bytes, as the
	// dispatcher's does, since the worker verifies it before executing.
	desc, err := moduledesc.Compute("m", append(append([]byte(nil), chunk0...), chunk1...), 512)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	send(t, peer, wire.ServerTask{TaskID: 1, Module: desc, Params: nil})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll (task): %v", err)
	}
	if sess.State() != StateTransferring {
		t.Fatalf("state = %v, want Transferring", sess.State())
	}

	msgs = read(t, peer, &dec)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 ClientAck(Task)", len(msgs))
	}
	ack, ok := msgs[0].(wire.ClientAck)
	if !ok || ack.Info.Kind != wire.AckInfoTask {
		t.Fatalf("got %#v, want ClientAck{Task}", msgs[0])
	}

	send(t, peer, wire.ServerModule{TaskID: 1, ChunkIndex: 0, Data: chunk0})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll (chunk0): %v", err)
	}
	if sess.State() != StateTransferring {
		t.Fatalf("state after chunk0 = %v, want Transferring", sess.State())
	}

	send(t, peer, wire.ServerModule{TaskID: 1, ChunkIndex: 1, Data: chunk1})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll (chunk1): %v", err)
	}
	if sess.State() != StateExecuting {
		t.Fatalf("state after chunk1 = %v, want Executing", sess.State())
	}

	msgs = read(t, peer, &dec)
	var gotResult *wire.ClientResult
	for _, m := range msgs {
		if r, ok := m.(wire.ClientResult); ok {
			gotResult = &r
		}
	}
	if gotResult == nil {
		t.Fatal("did not observe ClientResult")
	}
	if len(gotResult.Results) != 1 || gotResult.Results[0].I32 != 42 {
		t.Fatalf("got results %#v, want [I32(42)]", gotResult.Results)
	}

	send(t, peer, wire.ServerAck{TaskID: 1, Success: true})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll (ack): %v", err)
	}
	if sess.State() != StateReady {
		t.Fatalf("state after ServerAck = %v, want Ready", sess.State())
	}
}

// TestCacheHitShortcut covers the already-cached path: the worker executes
// immediately without entering Transferring.
func TestCacheHitShortcut(t *testing.T) {
	local, peer := transport.NewPipe()
	cache := modcache.New(4096, nil)
	if err := cache.PutSlot("m", 4); err != nil {
		t.Fatalf("PutSlot: %v", err)
	}
	if err := cache.WriteSlice("m", 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}
	sess := New(local, cache, echoExecutor())

	desc, err := moduledesc.Compute("m", []byte{1, 2, 3, 4}, 4)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	send(t, peer, wire.ServerTask{TaskID: 7, Module: desc})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sess.State() != StateExecuting {
		t.Fatalf("state = %v, want Executing", sess.State())
	}

	var dec wire.Decoder
	msgs := read(t, peer, &dec)
	var gotAck, gotResult bool
	for _, m := range msgs {
		switch mm := m.(type) {
		case wire.ClientAck:
			gotAck = mm.Info.Kind == wire.AckInfoTask
		case wire.ClientResult:
			gotResult = true
		}
	}
	if !gotAck || !gotResult {
		t.Fatalf("expected both ClientAck(Task) and ClientResult, got %#v", msgs)
	}
}

// TestModuleTooLargeFails covers the CacheFull rejection path (§4.D).
func TestModuleTooLargeFails(t *testing.T) {
	local, peer := transport.NewPipe()
	cache := modcache.New(8, nil)
	sess := New(local, cache, echoExecutor())

	desc := wire.ModuleDescriptor{Name: "m", Size: 4096, ChunkSize: 512, TotalChunks: 8}
	send(t, peer, wire.ServerTask{TaskID: 1, Module: desc})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %v, want Failed", sess.State())
	}
}

// TestServerModuleRetryExhaustion covers the retry-exhaustion path: a chunk
// that repeatedly fails to assemble (wrong size) fails the transfer after
// three retries.
func TestServerModuleRetryExhaustion(t *testing.T) {
	local, peer := transport.NewPipe()
	cache := modcache.New(4096, nil)
	sess := New(local, cache, echoExecutor())

	desc := wire.ModuleDescriptor{Name: "m", Size: 8, ChunkSize: 4, TotalChunks: 2}
	send(t, peer, wire.ServerTask{TaskID: 1, Module: desc})
	if err := sess.Poll(); err != nil {
		t.Fatalf("Poll (task): %v", err)
	}

	for i := 0; i < 4; i++ {
		send(t, peer, wire.ServerModule{TaskID: 1, ChunkIndex: 0, Data: []byte{1, 2, 3}}) // wrong size
		if err := sess.Poll(); err != nil {
			t.Fatalf("Poll (bad chunk %d): %v", i, err)
		}
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %v, want Failed after exceeding retries", sess.State())
	}
}

func TestServerModuleUnexpectedWhenReady(t *testing.T) {
	local, peer := transport.NewPipe()
	cache := modcache.New(4096, nil)
	sess := New(local, cache, echoExecutor())

	send(t, peer, wire.ServerModule{TaskID: 99, ChunkIndex: 0, Data: []byte{1}})
	if err := sess.Poll(); err != ErrUnexpectedMessage {
		t.Fatalf("want ErrUnexpectedMessage, got %v", err)
	}
}
