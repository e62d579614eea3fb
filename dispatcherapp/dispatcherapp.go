// Package dispatcherapp wires the dispatcher's five per-tick passes, its
// accept loop, and the durable stores into one runnable process (§5). It is
// grounded on the teacher repository's main.go: the same signal-driven
// graceful-shutdown shape, generalized from one-goroutine-per-connection
// handling to the single-lock cooperative tick loop this specification
// calls for, coordinated with golang.org/x/sync/errgroup.
package dispatcherapp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantarax/dispatch/internal/clock"
	"github.com/quantarax/dispatch/internal/distributor"
	"github.com/quantarax/dispatch/internal/lifecycle"
	"github.com/quantarax/dispatch/internal/moduledesc"
	"github.com/quantarax/dispatch/internal/modulestore"
	"github.com/quantarax/dispatch/internal/netio"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/ratelimit"
	"github.com/quantarax/dispatch/internal/scheduler"
	"github.com/quantarax/dispatch/internal/taskhistory"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/validation"
	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/world"
)

// tickInterval paces the cooperative loop between passes; it is not a spec
// constant, only the polling cadence for non-blocking I/O.
const tickInterval = 20 * time.Millisecond

// acceptRate and acceptBurst bound how fast newly accepted connections may
// spawn session entities (internal/ratelimit), so a burst of reconnecting
// devices cannot flood a single tick's world-lock acquisition.
const (
	acceptRate  = 50 // connections/second
	acceptBurst = 100
)

// Dispatcher holds every component the tick loop and accept loop need.
type Dispatcher struct {
	World   *world.World
	Monitor *lifecycle.Monitor
	Distrib *distributor.Distributor
	Store   *modulestore.Store
	History *taskhistory.Store
	Logger  *observability.Logger
	Metrics *observability.Metrics

	limiter *ratelimit.TokenBucket
	clk     clock.Clock
}

// New assembles a Dispatcher from its already-opened stores and a clock,
// repopulating the world's Module entities from every module already on
// disk in store (§3 [EXPANDED]: the module store exists "so the dispatcher
// process can restart without the out-of-scope build pipeline re-uploading
// every module" — a restart that left those modules invisible to
// World.ModuleByName would defeat the point of persisting them).
func New(store *modulestore.Store, history *taskhistory.Store, clk clock.Clock, dialer transport.Dialer, logger *observability.Logger, metrics *observability.Metrics) (*Dispatcher, error) {
	d := &Dispatcher{
		World:   world.New(),
		Monitor: lifecycle.New(clk, dialer, metrics),
		Distrib: distributor.New(store, metrics),
		Store:   store,
		History: history,
		Logger:  logger,
		Metrics: metrics,
		limiter: ratelimit.NewTokenBucket(acceptRate, acceptBurst),
		clk:     clk,
	}
	if err := d.loadModules(); err != nil {
		return nil, err
	}
	return d, nil
}

// loadModules walks every module name persisted in the store and spawns a
// Module entity for it, so modules registered before a restart remain
// bindable by the scheduler afterward.
func (d *Dispatcher) loadModules() error {
	names, err := d.Store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		desc, _, err := d.Store.Get(name)
		if err != nil {
			return err
		}
		id := d.World.Spawn()
		d.World.SetModule(id, &world.Module{Descriptor: desc})
	}
	return nil
}

// RegisterModule loads a module's binary into the module store and world
// so the scheduler/distributor can assign tasks against it (§3, §4.G).
func (d *Dispatcher) RegisterModule(name string, binary []byte, chunkSize uint32) error {
	if err := validation.ValidateStringNonEmpty(name); err != nil {
		return err
	}
	desc, err := moduledesc.Compute(name, binary, chunkSize)
	if err != nil {
		return err
	}
	if err := d.Store.Put(desc, binary); err != nil {
		return err
	}
	id := d.World.Spawn()
	d.World.SetModule(id, &world.Module{Descriptor: desc})
	return nil
}

// SubmitTask enqueues a new task entity in the Queued phase (§3). It
// returns the task's entity handle, transmitted as the wire protocol's
// TaskID.
func (d *Dispatcher) SubmitTask(module string, params []wire.Value, priority uint8) (world.EntityID, error) {
	if err := validation.ValidateStringNonEmpty(module); err != nil {
		return 0, err
	}
	id := d.World.Spawn()
	d.World.SetTask(id, &world.Task{Module: module, Params: params, CreatedAt: d.clk.Now(), Priority: priority})
	d.World.SetTaskState(id, &world.TaskState{Phase: world.PhaseQueued})
	return id, nil
}

// Tick runs the five per-tick passes under one exclusive lock (§5:
// lifecycle, inbound, scheduler, distributor, outbound).
func (d *Dispatcher) Tick() error {
	d.World.Lock()
	defer d.World.Unlock()

	d.Monitor.Run(d.World)
	netio.RunInbound(d.World, d.clk, d.Metrics)
	d.archiveTerminalTasks()
	scheduler.Run(d.World)
	if err := d.Distrib.Run(d.World); err != nil {
		return err
	}
	netio.RunOutbound(d.World)
	return nil
}

// archiveTerminalTasks appends newly Completed/Failed tasks to the durable
// task history store and removes their Task/TaskState components once
// recorded, so the in-memory world does not grow unbounded (§3 [EXPANDED]).
// Called under World's lock as part of Tick.
func (d *Dispatcher) archiveTerminalTasks() {
	for _, id := range d.World.AllTasks() {
		state, ok := d.World.TaskState(id)
		if !ok {
			continue
		}
		if state.Phase != world.PhaseCompleted && state.Phase != world.PhaseFailed {
			continue
		}
		task, ok := d.World.Task(id)
		if !ok {
			continue
		}

		summary := "ok"
		if state.Phase == world.PhaseFailed {
			summary = "failed"
		}
		finished := d.clk.Now()
		rec := taskhistory.Record{
			TaskID:        uint64(id),
			Module:        task.Module,
			Phase:         state.Phase.String(),
			CreatedAt:     task.CreatedAt,
			FinishedAt:    finished,
			ResultSummary: summary,
		}
		if err := d.History.Append(rec); err != nil && d.Logger != nil {
			d.Logger.Error(err, "failed to append task history record")
		}
		if d.Metrics != nil {
			d.Metrics.RecordTaskTerminal(state.Phase.String(), finished.Sub(task.CreatedAt).Seconds())
		}

		d.World.RemoveTask(id)
		d.World.RemoveTaskState(id)
	}
}

// Run drives the cooperative tick loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Tick(); err != nil {
				return err
			}
		}
	}
}

// AcceptLoop accepts new worker connections on listener, rate-limited by
// the token bucket, and spawns a Connected session for each (§5: "a second
// cooperative task that briefly takes the lock to spawn a new session
// entity").
func (d *Dispatcher) AcceptLoop(ctx context.Context, listener transport.Listener) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !d.limiter.Allow(1) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		tr, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if d.Metrics != nil {
				d.Metrics.RecordSessionAccept(false)
			}
			if d.Logger != nil {
				d.Logger.Error(err, "failed to accept worker connection")
			}
			continue
		}

		address := "unknown"
		if addressable, ok := tr.(transport.AddressableTransport); ok {
			address = addressable.RemoteAddr()
		}

		d.World.Lock()
		id := d.World.Spawn()
		d.World.SetSession(id, world.NewSession(address))
		d.World.SetSessionStream(id, &world.SessionStream{Transport: tr})
		d.World.SetSessionHealth(id, &world.SessionHealth{Status: world.SessionConnected, LastHeartbeat: d.clk.Now()})
		d.World.Unlock()

		if d.Metrics != nil {
			d.Metrics.RecordSessionAccept(true)
		}
		if d.Logger != nil {
			d.Logger.SessionConnected(address, address)
		}
	}
}

// RunGroup starts the tick loop and accept loop together, coordinated with
// errgroup so either's fatal error stops both (§5 [EXPANDED]).
func RunGroup(ctx context.Context, d *Dispatcher, listener transport.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return d.AcceptLoop(gctx, listener) })
	return g.Wait()
}
