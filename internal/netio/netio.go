// Package netio implements the dispatcher's per-tick network passes
// (§4.F): a non-blocking inbound pass that drains and dispatches framed
// messages into world state, and a non-blocking outbound pass that drains
// each session's pending-encode queue onto the wire. It is grounded on the
// teacher repository's control_stream.go read/dispatch loop, generalized
// from file-transfer control frames to the seven task-protocol variants.
package netio

import (
	"time"

	"github.com/quantarax/dispatch/internal/clock"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/world"
)

const readBufSize = 64 * 1024

// RunInbound performs one inbound pass over every session owning a stream
// component (§4.F). The caller must hold w's lock for the duration.
// metrics may be nil.
func RunInbound(w *world.World, clk clock.Clock, metrics *observability.Metrics) {
	for _, id := range w.AllSessions() {
		stream, ok := w.SessionStream(id)
		if !ok {
			continue
		}
		health, ok := w.SessionHealth(id)
		if !ok {
			continue
		}
		inboundOne(w, clk, metrics, id, stream, health)
	}
}

func inboundOne(w *world.World, clk clock.Clock, metrics *observability.Metrics, id world.EntityID, stream *world.SessionStream, health *world.SessionHealth) {
	buf := make([]byte, readBufSize)
	n, err := stream.Transport.Read(buf)
	if err != nil {
		// Any read failure, including ErrClosed, maps to Disconnected
		// (§7 Transport errors); the lifecycle pass drives reconnection.
		health.Status = world.SessionDisconnected
		return
	}
	if n > 0 {
		stream.Decoder.Feed(buf[:n])
	}

	msgs, err := stream.Decoder.DrainAll()
	if err != nil {
		// Malformed frame: discard everything still buffered and mark the
		// session Disconnected. This happens on the first malformed frame;
		// no count of earlier protocol failures is kept and no attempt is
		// made to resynchronize at a later frame boundary.
		stream.Decoder.Reset()
		health.Status = world.SessionDisconnected
		return
	}

	for _, m := range msgs {
		dispatch(w, clk, metrics, id, health, m)
	}
}

func dispatch(w *world.World, clk clock.Clock, metrics *observability.Metrics, sessionID world.EntityID, health *world.SessionHealth, msg wire.Message) {
	session, ok := w.Session(sessionID)
	if !ok {
		return
	}

	switch m := msg.(type) {
	case wire.Heartbeat:
		handleHeartbeat(clk, session, health, m)

	case wire.ClientReady:
		if health.Status != world.SessionConnected {
			return
		}
		session.ReplaceCachedModules(m.CachedModules)
		session.FreeRAMBytes = m.FreeRAMBytes

	case wire.ClientAck:
		handleClientAck(w, metrics, health, m)

	case wire.ClientResult:
		handleClientResult(w, health, sessionID, m)
	}
}

func handleHeartbeat(clk clock.Clock, session *world.Session, health *world.SessionHealth, m wire.Heartbeat) {
	now := clk.Now()
	sentAt := time.Unix(0, m.TimestampNanos)
	session.Latency = now.Sub(sentAt)
	health.LastHeartbeat = now
}

func handleClientAck(w *world.World, metrics *observability.Metrics, health *world.SessionHealth, m wire.ClientAck) {
	if health.Status != world.SessionOccupied {
		return
	}
	taskID := world.EntityID(m.TaskID)
	task, ok := w.Task(taskID)
	if !ok {
		return
	}
	transfer, ok := w.Transfer(taskID)
	if !ok {
		return
	}

	switch m.Info.Kind {
	case wire.AckInfoTask:
		session, ok := w.Session(transfer.Device)
		if !ok {
			return
		}
		session.ReplaceCachedModules(m.Info.CachedModules)
		if session.HasModule(task.Module) {
			transfer.SetAllAcked()
		}
		transfer.SubState = world.TransferRequested

	case wire.AckInfoModule:
		transfer.SetAcked(m.Info.ChunkIndex, m.Info.Success)
		if metrics != nil {
			metrics.RecordChunkAck(m.Info.Success)
		}
	}
}

func handleClientResult(w *world.World, health *world.SessionHealth, sessionID world.EntityID, m wire.ClientResult) {
	taskID := world.EntityID(m.TaskID)
	task, ok := w.Task(taskID)
	if !ok {
		return
	}
	state, ok := w.TaskState(taskID)
	if !ok {
		return
	}

	task.Results = m.Results
	state.Phase = world.PhaseCompleted
	health.Status = world.SessionConnected

	if session, ok := w.Session(sessionID); ok {
		session.Outbox = append(session.Outbox, wire.ServerAck{TaskID: m.TaskID, Success: true})
	}
}

// RunOutbound performs one outbound pass over every session owning a stream
// component (§4.F): drain the message queue into the outgoing buffer via
// encode, then attempt a non-blocking write, leaving any unsent bytes
// buffered for the next tick.
func RunOutbound(w *world.World) {
	for _, id := range w.AllSessions() {
		stream, ok := w.SessionStream(id)
		if !ok {
			continue
		}
		session, ok := w.Session(id)
		if !ok {
			continue
		}
		health, ok := w.SessionHealth(id)
		if !ok {
			continue
		}
		outboundOne(stream, session, health)
	}
}

func outboundOne(stream *world.SessionStream, session *world.Session, health *world.SessionHealth) {
	for _, m := range session.Outbox {
		stream.Outgoing = append(stream.Outgoing, wire.Encode(m)...)
	}
	session.Outbox = session.Outbox[:0]

	for len(stream.Outgoing) > 0 {
		n, err := stream.Transport.Write(stream.Outgoing)
		if err != nil {
			health.Retries++
			return
		}
		if n == 0 {
			return
		}
		stream.Outgoing = stream.Outgoing[n:]
	}
}
