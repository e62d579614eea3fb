// Package workerapp drives the worker side's single cooperative loop: poll
// the transport, let the session state machine parse and handle whatever
// arrived, flush any queued outbound messages, and repeat — no
// parallelism (§5 "the worker runs a single cooperative loop with no
// parallelism"). It is grounded on the teacher repository's client main
// loop, narrowed from a reconnect-and-stream file client to one that polls
// workersession.Session each tick.
package workerapp

import (
	"context"
	"time"

	"github.com/quantarax/dispatch/internal/executor"
	"github.com/quantarax/dispatch/internal/modcache"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/workersession"
)

// pollInterval is the worker's cooperative-loop cadence.
const pollInterval = 10 * time.Millisecond

// dialRetryInterval is how long Connect waits between failed dial attempts
// (§4.D: "opens the channel, retrying every 10 seconds until success").
const dialRetryInterval = 10 * time.Second

// Worker owns one persistent session to the dispatcher, the module cache
// its session reads and writes, and the registry of modules it can execute.
type Worker struct {
	Cache   *modcache.Cache
	Exec    *executor.Registry
	session *workersession.Session

	freeRAMBytes uint32
}

// New builds a Worker with the given module cache capacity and executor
// registry. metrics may be nil. Connect must be called before Run to
// attach a transport.
func New(cacheCapacityBytes int, exec *executor.Registry, freeRAMBytes uint32, metrics *observability.Metrics) *Worker {
	return &Worker{
		Cache:        modcache.New(cacheCapacityBytes, metrics),
		Exec:         exec,
		freeRAMBytes: freeRAMBytes,
	}
}

// Connect dials the dispatcher, retrying every 10 seconds until a dial
// succeeds or ctx is cancelled (§4.D), then starts a new session over the
// resulting transport and announces this device's free RAM (§4.A
// ClientReady).
func (w *Worker) Connect(ctx context.Context, dialer transport.Dialer, addr string) error {
	for {
		tr, err := dialer.Dial(addr)
		if err == nil {
			w.session = workersession.New(tr, w.Cache, w.Exec)
			if err := w.session.SendReady(w.freeRAMBytes); err != nil {
				return err
			}
			return w.session.Flush()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
}

// Run drives the poll/flush loop until ctx is cancelled or Poll returns a
// fatal error (a malformed frame or a closed transport — §7 Protocol error
// handling: the session itself decides whether an error is recoverable by
// how it updates its own state; Run simply stops on any reported error).
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.session.Poll(); err != nil {
				return err
			}
			if err := w.session.Flush(); err != nil {
				return err
			}
		}
	}
}

// State reports the worker session's current lifecycle state (§4.A).
func (w *Worker) State() workersession.State {
	return w.session.State()
}
