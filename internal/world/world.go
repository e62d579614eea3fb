// Package world implements the dispatcher's entity-component store (§4.E):
// every task, transfer, and session is an opaque 64-bit handle carrying some
// subset of seven component kinds. It is grounded on the teacher
// repository's SessionStore — a single mutex-guarded map keyed by ID — with
// one map per component kind instead of one struct per session, since the
// scheduler, distributor, and network passes each touch a different subset
// of a session's state and the spec calls that subset out explicitly.
package world

import (
	"sync"
	"time"

	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/wire"
)

// EntityID is an opaque handle, stable until Despawn. The zero value never
// names a live entity.
type EntityID uint64

// TaskPhase is one of the five phases a task's TaskState may hold (§3).
type TaskPhase int

const (
	PhaseQueued TaskPhase = iota
	PhaseDistributing
	PhaseExecuting
	PhaseCompleted
	PhaseFailed
)

func (p TaskPhase) String() string {
	switch p {
	case PhaseQueued:
		return "Queued"
	case PhaseDistributing:
		return "Distributing"
	case PhaseExecuting:
		return "Executing"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TransferSubState is one of the three sub-states a Transfer record holds
// while its module is in flight (§3).
type TransferSubState int

const (
	TransferPending TransferSubState = iota
	TransferRequested
	TransferTransferring
)

// SessionStatus is one of the four health states a Session may be in (§3).
type SessionStatus int

const (
	SessionConnected SessionStatus = iota
	SessionOccupied
	SessionDisconnected
	SessionZombie
)

func (s SessionStatus) String() string {
	switch s {
	case SessionConnected:
		return "Connected"
	case SessionOccupied:
		return "Occupied"
	case SessionDisconnected:
		return "Disconnected"
	case SessionZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// Task is the task identity component: module reference, parameters, and
// the result vector, filled in once execution completes (§3).
type Task struct {
	Module    string
	Params    []wire.Value
	Results   []wire.Value
	CreatedAt time.Time
	Priority  uint8
}

// TaskState is a task's phase plus its optional assigned device and
// execution deadline (§3).
type TaskState struct {
	Phase    TaskPhase
	Device   EntityID // zero means unassigned
	Deadline *time.Time
}

// Transfer tracks one task's in-flight module delivery: the acknowledged-
// chunk bitset, sub-state, retry counter, and target device (§3).
type Transfer struct {
	Acked       []byte
	TotalChunks uint32
	SubState    TransferSubState
	Retries     int
	Device      EntityID
}

// NewTransfer returns a Transfer with a freshly zeroed ack bitset sized for
// totalChunks (§4.G: "attach a Transfer record ... with a fresh zeroed ack
// bitset").
func NewTransfer(device EntityID, totalChunks uint32) *Transfer {
	return &Transfer{
		Acked:       make([]byte, (totalChunks+7)/8),
		TotalChunks: totalChunks,
		SubState:    TransferPending,
		Device:      device,
	}
}

// SetAcked marks chunk index as acknowledged (or not, per success).
func (t *Transfer) SetAcked(index uint32, success bool) {
	if index >= t.TotalChunks {
		return
	}
	if success {
		t.Acked[index/8] |= 1 << (index % 8)
	} else {
		t.Acked[index/8] &^= 1 << (index % 8)
	}
}

// SetAllAcked marks every chunk acknowledged — the cache-hit shortcut
// (§4.F) where a worker's ClientAck{Task} already lists the module as
// cached.
func (t *Transfer) SetAllAcked() {
	for i := range t.Acked {
		t.Acked[i] = 0xFF
	}
}

// UnackedIndices returns the indices, ascending, of every chunk not yet
// acknowledged (§4.H).
func (t *Transfer) UnackedIndices() []uint32 {
	var out []uint32
	for i := uint32(0); i < t.TotalChunks; i++ {
		if t.Acked[i/8]&(1<<(i%8)) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// AllAcked reports whether every chunk's bit is set.
func (t *Transfer) AllAcked() bool {
	return len(t.UnackedIndices()) == 0
}

// Session is a connected worker's address, reported free RAM, latency, the
// module names it reports caching, and its pending-encode outbound queue
// (§3).
type Session struct {
	Address       string
	FreeRAMBytes  uint32
	Latency       time.Duration
	CachedModules map[string]bool
	Outbox        []wire.Message
}

// NewSession returns a Session with an empty cached-modules set.
func NewSession(address string) *Session {
	return &Session{Address: address, CachedModules: make(map[string]bool)}
}

// HasModule reports whether name is in the session's reported cache.
func (s *Session) HasModule(name string) bool {
	return s.CachedModules[name]
}

// ReplaceCachedModules overwrites the session's reported cache contents
// (§4.F: "replace session.modules with the given list").
func (s *Session) ReplaceCachedModules(names []string) {
	s.CachedModules = make(map[string]bool, len(names))
	for _, n := range names {
		s.CachedModules[n] = true
	}
}

// SessionHealth is a session's liveness status, last heartbeat, and zombie
// retry counter (§3).
type SessionHealth struct {
	Status        SessionStatus
	LastHeartbeat time.Time
	Retries       int
}

// SessionStream owns the transport and the two byte buffers the network
// passes drain into and out of (§3). The incoming buffer lives inside
// Decoder; Outgoing holds encoded bytes not yet accepted by a non-blocking
// write.
type SessionStream struct {
	Transport transport.Transport
	Decoder   wire.Decoder
	Outgoing  []byte
}

// Module is a registered module's descriptor, looked up by the scheduler
// for cache-affinity and by the distributor for chunking (§3, §4.G).
type Module struct {
	Descriptor wire.ModuleDescriptor
}

// World is the dispatcher's entity-component store, guarded by a single
// exclusive lock per §5: callers take World.Lock() once per tick, run every
// pass against the unlocked-contract accessors below, then World.Unlock().
type World struct {
	sync.Mutex

	nextID EntityID

	tasks          map[EntityID]*Task
	taskStates     map[EntityID]*TaskState
	transfers      map[EntityID]*Transfer
	sessions       map[EntityID]*Session
	sessionStreams map[EntityID]*SessionStream
	sessionHealth  map[EntityID]*SessionHealth
	modules        map[EntityID]*Module
}

// New returns an empty World.
func New() *World {
	return &World{
		tasks:          make(map[EntityID]*Task),
		taskStates:     make(map[EntityID]*TaskState),
		transfers:      make(map[EntityID]*Transfer),
		sessions:       make(map[EntityID]*Session),
		sessionStreams: make(map[EntityID]*SessionStream),
		sessionHealth:  make(map[EntityID]*SessionHealth),
		modules:        make(map[EntityID]*Module),
	}
}

// Spawn allocates a fresh entity handle. It carries no components until the
// caller attaches some.
func (w *World) Spawn() EntityID {
	w.nextID++
	return w.nextID
}

// Despawn removes every component attached to id.
func (w *World) Despawn(id EntityID) {
	delete(w.tasks, id)
	delete(w.taskStates, id)
	delete(w.transfers, id)
	delete(w.sessions, id)
	delete(w.sessionStreams, id)
	delete(w.sessionHealth, id)
	delete(w.modules, id)
}

// Task component accessors.

func (w *World) SetTask(id EntityID, t *Task)   { w.tasks[id] = t }
func (w *World) Task(id EntityID) (*Task, bool) { t, ok := w.tasks[id]; return t, ok }
func (w *World) RemoveTask(id EntityID)         { delete(w.tasks, id) }

// TaskState component accessors.

func (w *World) SetTaskState(id EntityID, s *TaskState)   { w.taskStates[id] = s }
func (w *World) TaskState(id EntityID) (*TaskState, bool) { s, ok := w.taskStates[id]; return s, ok }
func (w *World) RemoveTaskState(id EntityID)              { delete(w.taskStates, id) }

// Transfer component accessors.

func (w *World) SetTransfer(id EntityID, t *Transfer) { w.transfers[id] = t }
func (w *World) Transfer(id EntityID) (*Transfer, bool) {
	t, ok := w.transfers[id]
	return t, ok
}
func (w *World) RemoveTransfer(id EntityID) { delete(w.transfers, id) }

// Session component accessors.

func (w *World) SetSession(id EntityID, s *Session) { w.sessions[id] = s }
func (w *World) Session(id EntityID) (*Session, bool) {
	s, ok := w.sessions[id]
	return s, ok
}
func (w *World) RemoveSession(id EntityID) { delete(w.sessions, id) }

// SessionStream component accessors.

func (w *World) SetSessionStream(id EntityID, s *SessionStream) { w.sessionStreams[id] = s }
func (w *World) SessionStream(id EntityID) (*SessionStream, bool) {
	s, ok := w.sessionStreams[id]
	return s, ok
}
func (w *World) RemoveSessionStream(id EntityID) { delete(w.sessionStreams, id) }

// SessionHealth component accessors.

func (w *World) SetSessionHealth(id EntityID, h *SessionHealth) { w.sessionHealth[id] = h }
func (w *World) SessionHealth(id EntityID) (*SessionHealth, bool) {
	h, ok := w.sessionHealth[id]
	return h, ok
}
func (w *World) RemoveSessionHealth(id EntityID) { delete(w.sessionHealth, id) }

// Module component accessors.

func (w *World) SetModule(id EntityID, m *Module) { w.modules[id] = m }
func (w *World) Module(id EntityID) (*Module, bool) {
	m, ok := w.modules[id]
	return m, ok
}
func (w *World) RemoveModule(id EntityID) { delete(w.modules, id) }

// ModuleByName returns the entity and component for the module registered
// under name, if any. Module registration is rare (once per build) next to
// the hot task/session paths, so a linear scan over the typically-small
// module table is acceptable.
func (w *World) ModuleByName(name string) (EntityID, *Module, bool) {
	for id, m := range w.modules {
		if m.Descriptor.Name == name {
			return id, m, true
		}
	}
	return 0, nil, false
}

// QueuedTasksWithoutTransfer returns every entity whose TaskState is Queued
// and that has no Transfer component (§4.G scheduler input).
func (w *World) QueuedTasksWithoutTransfer() []EntityID {
	var out []EntityID
	for id, s := range w.taskStates {
		if s.Phase != PhaseQueued {
			continue
		}
		if _, ok := w.transfers[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ConnectedSessions returns every entity whose SessionHealth is Connected
// (§4.G scheduler input).
func (w *World) ConnectedSessions() []EntityID {
	var out []EntityID
	for id, h := range w.sessionHealth {
		if h.Status == SessionConnected {
			out = append(out, id)
		}
	}
	return out
}

// TransfersInSubState returns every entity whose Transfer is in sub-state
// state (§4.H distributor input).
func (w *World) TransfersInSubState(state TransferSubState) []EntityID {
	var out []EntityID
	for id, t := range w.transfers {
		if t.SubState == state {
			out = append(out, id)
		}
	}
	return out
}

// AllSessions returns every entity carrying a Session component, for passes
// (network I/O, lifecycle, inspector) that must visit every session.
func (w *World) AllSessions() []EntityID {
	out := make([]EntityID, 0, len(w.sessions))
	for id := range w.sessions {
		out = append(out, id)
	}
	return out
}

// AllTasks returns every entity carrying a Task component, for the
// inspector snapshot.
func (w *World) AllTasks() []EntityID {
	out := make([]EntityID, 0, len(w.tasks))
	for id := range w.tasks {
		out = append(out, id)
	}
	return out
}
