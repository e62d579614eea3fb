// Package scheduler implements the dispatcher's task scheduler (§4.G):
// bin-packing queued tasks onto connected devices with a cache-affinity
// preference, each tick. It is grounded on the teacher repository's
// SessionStore.List filtering pattern, generalized from a single filter
// predicate to the two-sided match (task requirement vs. device capacity)
// this specification calls for.
package scheduler

import (
	"sort"

	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/world"
)

// overheadBytes is the per-task working-memory estimate added to a
// module's binary size when computing required device RAM (§4.G).
const overheadBytes = 2048

// Run performs one scheduling pass: binds as many Queued, transfer-less
// tasks to Connected devices as the candidate pool allows. The caller must
// hold w's lock for the duration.
func Run(w *world.World) {
	tasks := queuedTasksBySize(w)
	candidates := connectedDeviceSet(w)

	for _, taskID := range tasks {
		if len(candidates) == 0 {
			return
		}
		task, ok := w.Task(taskID)
		if !ok {
			continue
		}
		_, module, ok := w.ModuleByName(task.Module)
		if !ok {
			continue
		}
		required := module.Descriptor.Size + overheadBytes

		deviceID, chosen := pickDevice(w, candidates, task.Module, required)
		if !chosen {
			continue
		}
		delete(candidates, deviceID)
		bindTask(w, taskID, deviceID, module.Descriptor, task)
	}
}

// queuedTasksBySize returns every eligible task entity, sorted by
// descending (binary_size + overhead) — step 1 of the bin-packing pass.
// Tasks whose module cannot be resolved sort last so they never block
// eligible work, but Run still skips them via the ModuleByName check above.
func queuedTasksBySize(w *world.World) []world.EntityID {
	ids := w.QueuedTasksWithoutTransfer()
	size := func(id world.EntityID) uint32 {
		task, ok := w.Task(id)
		if !ok {
			return 0
		}
		_, module, ok := w.ModuleByName(task.Module)
		if !ok {
			return 0
		}
		return module.Descriptor.Size + overheadBytes
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := size(ids[i]), size(ids[j])
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j] // deterministic tie-break (§4.G)
	})
	return ids
}

// connectedDeviceSet returns the candidate pool of Connected sessions.
func connectedDeviceSet(w *world.World) map[world.EntityID]bool {
	set := make(map[world.EntityID]bool)
	for _, id := range w.ConnectedSessions() {
		set[id] = true
	}
	return set
}

// pickDevice selects, among devices in candidates with enough RAM, the one
// reporting moduleName cached (cache-affinity shortcut), breaking ties by
// largest RAM then entity handle order; failing that, the largest-RAM
// candidate regardless of cache state (§4.G step 2).
func pickDevice(w *world.World, candidates map[world.EntityID]bool, moduleName string, required uint32) (world.EntityID, bool) {
	var bestAffine, bestAny world.EntityID
	var haveAffine, haveAny bool
	var bestAffineRAM, bestAnyRAM uint32

	for id := range candidates {
		session, ok := w.Session(id)
		if !ok || session.FreeRAMBytes < required {
			continue
		}
		if session.HasModule(moduleName) {
			if !haveAffine || session.FreeRAMBytes > bestAffineRAM ||
				(session.FreeRAMBytes == bestAffineRAM && id < bestAffine) {
				bestAffine, bestAffineRAM, haveAffine = id, session.FreeRAMBytes, true
			}
		}
		if !haveAny || session.FreeRAMBytes > bestAnyRAM ||
			(session.FreeRAMBytes == bestAnyRAM && id < bestAny) {
			bestAny, bestAnyRAM, haveAny = id, session.FreeRAMBytes, true
		}
	}

	if haveAffine {
		return bestAffine, true
	}
	if haveAny {
		return bestAny, true
	}
	return 0, false
}

// bindTask transitions taskID to Distributing on deviceID: marks the
// session Occupied, enqueues a ServerTask advertisement, and attaches a
// fresh Transfer record (§4.G step 3).
func bindTask(w *world.World, taskID, deviceID world.EntityID, desc wire.ModuleDescriptor, task *world.Task) {
	state, ok := w.TaskState(taskID)
	if !ok {
		return
	}
	state.Phase = world.PhaseDistributing
	state.Device = deviceID

	if health, ok := w.SessionHealth(deviceID); ok {
		health.Status = world.SessionOccupied
	}
	if session, ok := w.Session(deviceID); ok {
		session.Outbox = append(session.Outbox, wire.ServerTask{
			TaskID: uint64(taskID),
			Module: desc,
			Params: task.Params,
		})
	}
	w.SetTransfer(taskID, world.NewTransfer(deviceID, desc.TotalChunks))
}
