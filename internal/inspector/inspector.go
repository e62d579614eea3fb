// Package inspector implements the dispatcher's read-only HTTP surface
// (§4.J): a consistent snapshot of every session and task, taken under the
// world's lock for exactly the duration of one pass, plus health and
// metrics endpoints. It is grounded on the teacher repository's
// DaemonAPIServer.RegisterHTTP / writeJSON pattern, narrowed from a
// mutating transfer-control REST API to a pure snapshot projection.
package inspector

import (
	"encoding/json"
	"net/http"

	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/world"
)

// SessionView is one session's read-only projection (§4.J).
type SessionView struct {
	ID            uint64   `json:"id"`
	Address       string   `json:"address"`
	FreeRAMBytes  uint32   `json:"free_ram_bytes"`
	LatencyMS     int64    `json:"latency_ms"`
	Status        string   `json:"status"`
	CachedModules []string `json:"cached_modules"`
}

// TaskProgress is the optional (acked, total) chunk progress a task in
// Distributing reports.
type TaskProgress struct {
	Acked uint32 `json:"acked"`
	Total uint32 `json:"total"`
}

// TaskView is one task's read-only projection (§4.J).
type TaskView struct {
	ID       uint64        `json:"id"`
	Module   string        `json:"module"`
	Phase    string        `json:"phase"`
	Progress *TaskProgress `json:"progress,omitempty"`
	Results  []string      `json:"results,omitempty"`
}

// Snapshot is a consistent point-in-time view of the dispatcher's world.
type Snapshot struct {
	Sessions []SessionView `json:"sessions"`
	Tasks    []TaskView    `json:"tasks"`
}

// Server exposes Snapshot over plain net/http, plus health and metrics.
type Server struct {
	w       *world.World
	health  *observability.HealthChecker
	metrics *observability.Metrics
}

// New returns a Server reading from w.
func New(w *world.World, health *observability.HealthChecker, metrics *observability.Metrics) *Server {
	return &Server{w: w, health: health, metrics: metrics}
}

// RegisterHTTP mounts the inspector's routes on mux.
func (s *Server) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.health.Handler())
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/tasks", s.handleTasks)
}

// Snapshot takes the world lock for the duration of one consistent read of
// every session and task (§5: "the inspector read view acquires the same
// lock for the duration of its snapshot").
func (s *Server) Snapshot() Snapshot {
	s.w.Lock()
	defer s.w.Unlock()

	snap := Snapshot{}
	for _, id := range s.w.AllSessions() {
		session, ok := s.w.Session(id)
		if !ok {
			continue
		}
		status := "Unknown"
		if health, ok := s.w.SessionHealth(id); ok {
			status = health.Status.String()
		}
		names := make([]string, 0, len(session.CachedModules))
		for name := range session.CachedModules {
			names = append(names, name)
		}
		snap.Sessions = append(snap.Sessions, SessionView{
			ID:            uint64(id),
			Address:       session.Address,
			FreeRAMBytes:  session.FreeRAMBytes,
			LatencyMS:     session.Latency.Milliseconds(),
			Status:        status,
			CachedModules: names,
		})
	}

	for _, id := range s.w.AllTasks() {
		task, ok := s.w.Task(id)
		if !ok {
			continue
		}
		view := TaskView{ID: uint64(id), Module: task.Module}
		if state, ok := s.w.TaskState(id); ok {
			view.Phase = state.Phase.String()
		}
		if transfer, ok := s.w.Transfer(id); ok {
			view.Progress = &TaskProgress{
				Acked: transfer.TotalChunks - uint32(len(transfer.UnackedIndices())),
				Total: transfer.TotalChunks,
			}
		}
		for _, r := range task.Results {
			view.Results = append(view.Results, r.String())
		}
		snap.Tasks = append(snap.Tasks, view)
	}

	return snap
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Snapshot().Sessions)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Snapshot().Tasks)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
