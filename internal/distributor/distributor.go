// Package distributor implements the dispatcher's chunk distributor
// (§4.H): for each task whose transfer is Requested, it streams out every
// unacknowledged chunk exactly once and transitions the transfer to
// Transferring; once a transfer's ack bitset later goes all-ones, the task
// moves to Executing and the transfer record is torn down. It is grounded
// on the teacher repository's priorities.go chunk-scheduling pass, narrowed
// from byte-range priority queues to the simple ascending unacked-index
// scan this specification calls for. Per-session pacing of how fast those
// enqueued chunks actually leave the wire is the outbound network pass's
// concern (internal/netio), which already leaves unsent bytes buffered
// across ticks on a non-blocking write (§4.F) — the distributor itself
// never resends, matching the reliable-byte-stream transport contract (§6).
package distributor

import (
	"github.com/quantarax/dispatch/internal/modulestore"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/world"
)

// Distributor streams module chunks to newly Requested transfers each tick.
type Distributor struct {
	store   *modulestore.Store
	metrics *observability.Metrics
}

// New returns a Distributor reading module binaries from store. metrics may
// be nil, in which case chunk-sent counting is skipped.
func New(store *modulestore.Store, metrics *observability.Metrics) *Distributor {
	return &Distributor{store: store, metrics: metrics}
}

// Run performs one distribution pass. The caller must hold w's lock for
// the duration and must run this after the scheduler (§4.H).
func (d *Distributor) Run(w *world.World) error {
	if err := d.emitRequested(w); err != nil {
		return err
	}
	d.completeTransferring(w)
	return nil
}

// emitRequested enumerates unacknowledged chunk indices ascending for every
// Requested transfer, emits one ServerModule per unacked chunk, and
// transitions the transfer to Transferring (§4.H).
func (d *Distributor) emitRequested(w *world.World) error {
	for _, taskID := range w.TransfersInSubState(world.TransferRequested) {
		transfer, ok := w.Transfer(taskID)
		if !ok {
			continue
		}
		task, ok := w.Task(taskID)
		if !ok {
			continue
		}
		_, module, ok := w.ModuleByName(task.Module)
		if !ok {
			continue
		}
		session, ok := w.Session(transfer.Device)
		if !ok {
			continue
		}

		_, binary, err := d.store.Get(task.Module)
		if err != nil {
			return err
		}

		for _, idx := range transfer.UnackedIndices() {
			session.Outbox = append(session.Outbox, wire.ServerModule{
				TaskID:     uint64(taskID),
				ChunkIndex: idx,
				Data:       chunkBytes(binary, module.Descriptor, idx),
			})
			if d.metrics != nil {
				d.metrics.RecordChunkSent()
			}
		}
		transfer.SubState = world.TransferTransferring
	}
	return nil
}

// completeTransferring scans every Transferring transfer for an all-ones
// ack bitset: on completion it records the module as cached on the device,
// moves the task to Executing, and removes the Transfer record.
func (d *Distributor) completeTransferring(w *world.World) {
	for _, taskID := range w.TransfersInSubState(world.TransferTransferring) {
		transfer, ok := w.Transfer(taskID)
		if !ok || !transfer.AllAcked() {
			continue
		}
		task, ok := w.Task(taskID)
		if !ok {
			continue
		}
		if session, ok := w.Session(transfer.Device); ok {
			session.CachedModules[task.Module] = true
		}
		if state, ok := w.TaskState(taskID); ok {
			state.Phase = world.PhaseExecuting
		}
		w.RemoveTransfer(taskID)
	}
}

func chunkBytes(binary []byte, desc wire.ModuleDescriptor, index uint32) []byte {
	start := int(index) * int(desc.ChunkSize)
	if start > len(binary) {
		return []byte{}
	}
	end := start + int(desc.ChunkSize)
	if end > len(binary) {
		end = len(binary)
	}
	return binary[start:end]
}
