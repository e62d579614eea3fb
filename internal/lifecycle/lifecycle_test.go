package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quantarax/dispatch/internal/clock"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/world"
)

type fakeDialer struct {
	tr  transport.Transport
	err error
}

func (d fakeDialer) Dial(addr string) (transport.Transport, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tr, nil
}

func TestConnectedSessionGoesZombieAfterHeartbeatTimeout(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	fake := clock.NewFake(time.Unix(1000, 0))
	w.SetSessionHealth(id, &world.SessionHealth{
		Status:        world.SessionConnected,
		LastHeartbeat: fake.Now().Add(-40 * time.Second),
		Retries:       3,
	})

	metrics := observability.NewMetrics()
	New(fake, nil, metrics).Run(w)

	health, _ := w.SessionHealth(id)
	if health.Status != world.SessionZombie {
		t.Fatalf("status = %v, want Zombie", health.Status)
	}
	if health.Retries != 0 {
		t.Fatalf("retries = %d, want reset to 0", health.Retries)
	}
	if got := testutil.ToFloat64(metrics.SessionsZombied); got != 1 {
		t.Fatalf("SessionsZombied = %v, want 1", got)
	}
}

func TestConnectedSessionWithinTimeoutStaysConnected(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	fake := clock.NewFake(time.Unix(1000, 0))
	w.SetSessionHealth(id, &world.SessionHealth{
		Status:        world.SessionConnected,
		LastHeartbeat: fake.Now().Add(-10 * time.Second),
	})

	New(fake, nil, nil).Run(w)

	health, _ := w.SessionHealth(id)
	if health.Status != world.SessionConnected {
		t.Fatalf("status = %v, want still Connected", health.Status)
	}
}

func TestZombieDespawnsAfterMaxRetries(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	w.SetSessionHealth(id, &world.SessionHealth{Status: world.SessionZombie, Retries: 4})

	New(clock.NewFake(time.Unix(0, 0)), nil, nil).Run(w)

	if _, ok := w.SessionHealth(id); ok {
		t.Fatal("expected session despawned once retries reach 5")
	}
}

func TestZombieSurvivesBelowMaxRetries(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	w.SetSessionHealth(id, &world.SessionHealth{Status: world.SessionZombie, Retries: 1})

	New(clock.NewFake(time.Unix(0, 0)), nil, nil).Run(w)

	health, ok := w.SessionHealth(id)
	if !ok {
		t.Fatal("expected session to survive")
	}
	if health.Retries != 2 {
		t.Fatalf("retries = %d, want 2", health.Retries)
	}
}

func TestDisconnectedReconnectsOnSuccess(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	w.SetSessionHealth(id, &world.SessionHealth{Status: world.SessionDisconnected, Retries: 2})

	local, _ := transport.NewPipe()
	fake := clock.NewFake(time.Unix(500, 0))
	New(fake, fakeDialer{tr: local}, nil).Run(w)

	health, _ := w.SessionHealth(id)
	if health.Status != world.SessionConnected {
		t.Fatalf("status = %v, want Connected after reconnect", health.Status)
	}
	if health.Retries != 0 {
		t.Fatalf("retries = %d, want reset to 0", health.Retries)
	}
	if !health.LastHeartbeat.Equal(fake.Now()) {
		t.Fatalf("last heartbeat = %v, want %v", health.LastHeartbeat, fake.Now())
	}
	if _, ok := w.SessionStream(id); !ok {
		t.Fatal("expected a stream component attached after reconnect")
	}
}

func TestDisconnectedStaysDisconnectedOnDialFailure(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	w.SetSession(id, world.NewSession("10.0.0.1:4000"))
	w.SetSessionHealth(id, &world.SessionHealth{Status: world.SessionDisconnected})

	New(clock.NewFake(time.Unix(0, 0)), fakeDialer{err: errors.New("refused")}, nil).Run(w)

	health, _ := w.SessionHealth(id)
	if health.Status != world.SessionDisconnected {
		t.Fatalf("status = %v, want still Disconnected", health.Status)
	}
}

func TestExecutingTaskPastDeadlineFails(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	fake := clock.NewFake(time.Unix(1000, 0))
	deadline := fake.Now().Add(-1 * time.Second)
	w.SetTask(id, &world.Task{Module: "m"})
	w.SetTaskState(id, &world.TaskState{Phase: world.PhaseExecuting, Deadline: &deadline})

	New(fake, nil, nil).Run(w)

	state, _ := w.TaskState(id)
	if state.Phase != world.PhaseFailed {
		t.Fatalf("phase = %v, want Failed", state.Phase)
	}
}

func TestExecutingTaskBeforeDeadlineUnaffected(t *testing.T) {
	w := world.New()
	id := w.Spawn()
	fake := clock.NewFake(time.Unix(1000, 0))
	deadline := fake.Now().Add(1 * time.Minute)
	w.SetTask(id, &world.Task{Module: "m"})
	w.SetTaskState(id, &world.TaskState{Phase: world.PhaseExecuting, Deadline: &deadline})

	New(fake, nil, nil).Run(w)

	state, _ := w.TaskState(id)
	if state.Phase != world.PhaseExecuting {
		t.Fatalf("phase = %v, want still Executing", state.Phase)
	}
}
