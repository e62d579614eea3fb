// Package lifecycle implements the dispatcher's lifecycle monitor (§4.I):
// heartbeat-timeout detection, zombie retirement, deadline expiry on
// Executing tasks, and reconnection of Disconnected sessions. It is
// grounded on the teacher repository's SessionStore.CleanupOldSessions
// sweep, generalized from a single "drop if stale" rule to the three-state
// Connected/Zombie/Disconnected progression this specification calls for.
package lifecycle

import (
	"time"

	"github.com/quantarax/dispatch/internal/clock"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/world"
)

// heartbeatTimeout is how long a Connected (or Occupied) session may go
// without a Heartbeat before it is presumed unresponsive (§4.I).
const heartbeatTimeout = 32 * time.Second

// maxZombieRetries is how many consecutive ticks a session may spend
// Zombie before it is despawned outright (§4.I).
const maxZombieRetries = 5

// Monitor runs the per-tick lifecycle pass against a World, given a clock
// for heartbeat/deadline comparisons and a dialer used to attempt
// reconnection of Disconnected sessions.
type Monitor struct {
	clk     clock.Clock
	dialer  transport.Dialer
	metrics *observability.Metrics
}

// New returns a Monitor backed by clk and dialer. A nil dialer disables
// reconnection attempts — Disconnected sessions then simply wait for an
// operator or accept loop to replace them. metrics may be nil.
func New(clk clock.Clock, dialer transport.Dialer, metrics *observability.Metrics) *Monitor {
	return &Monitor{clk: clk, dialer: dialer, metrics: metrics}
}

// Run performs one lifecycle pass over every session and Executing task.
// The caller must hold w's lock for the duration and must run this first
// among the five per-tick passes (§5: lifecycle, inbound, scheduler,
// distributor, outbound).
func (m *Monitor) Run(w *world.World) {
	now := m.clk.Now()

	for _, id := range w.AllSessions() {
		health, ok := w.SessionHealth(id)
		if !ok {
			continue
		}

		switch health.Status {
		case world.SessionConnected, world.SessionOccupied:
			if !health.LastHeartbeat.IsZero() && now.Sub(health.LastHeartbeat) > heartbeatTimeout {
				health.Status = world.SessionZombie
				health.Retries = 0
				if m.metrics != nil {
					m.metrics.RecordSessionZombied()
				}
			}

		case world.SessionZombie:
			health.Retries++
			if health.Retries >= maxZombieRetries {
				w.Despawn(id)
				if m.metrics != nil {
					m.metrics.RecordSessionDespawned()
				}
			}

		case world.SessionDisconnected:
			m.reconnect(w, id, health)
		}
	}

	m.expireDeadlines(w, now)
}

// reconnect attempts to re-establish a session's stream via the configured
// dialer; on success the session's stream is replaced and its health reset
// to Connected (§4.I, §7 reconnect path).
func (m *Monitor) reconnect(w *world.World, id world.EntityID, health *world.SessionHealth) {
	if m.dialer == nil {
		return
	}
	session, ok := w.Session(id)
	if !ok {
		return
	}
	tr, err := m.dialer.Dial(session.Address)
	if err != nil {
		return
	}
	w.SetSessionStream(id, &world.SessionStream{Transport: tr, Decoder: wire.Decoder{}})
	health.Status = world.SessionConnected
	health.Retries = 0
	health.LastHeartbeat = m.clk.Now()
}

// expireDeadlines marks Failed any Executing task whose deadline has
// passed (§5 Cancellation/timeouts: "on expiry the lifecycle pass may mark
// it Failed").
func (m *Monitor) expireDeadlines(w *world.World, now time.Time) {
	for _, id := range w.AllTasks() {
		state, ok := w.TaskState(id)
		if !ok || state.Phase != world.PhaseExecuting {
			continue
		}
		if state.Deadline != nil && now.After(*state.Deadline) {
			state.Phase = world.PhaseFailed
		}
	}
}
