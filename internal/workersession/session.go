// Package workersession implements the worker side of the protocol (§4.D):
// a single session state machine driving task handling, chunk assembly, and
// execution over one Transport. It is grounded on the teacher repository's
// control_stream.go connection loop — non-blocking drain, decode, dispatch,
// flush — generalized from file-transfer control messages to the task
// lifecycle this specification defines.
package workersession

import (
	"errors"

	"github.com/zeebo/blake3"

	"github.com/quantarax/dispatch/internal/assembler"
	"github.com/quantarax/dispatch/internal/executor"
	"github.com/quantarax/dispatch/internal/modcache"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/wire"
)

// State is one of the five worker session states (§4.D).
type State int

const (
	StateReady State = iota
	StateTransferring
	StateExecuting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateTransferring:
		return "Transferring"
	case StateExecuting:
		return "Executing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// maxRetries is the transfer retry budget before a task transitions to
// Failed (§4.D retry policy: "exceeding three retries").
const maxRetries = 3

// ErrUnexpectedMessage means a ServerModule arrived for a task that is not
// currently being transferred, or whose id does not match the one being
// transferred.
var ErrUnexpectedMessage = errors.New("workersession: unexpected message for current state")

type activeTask struct {
	id      uint64
	module  wire.ModuleDescriptor
	params  []wire.Value
	asm     *assembler.Assembler
	retries int
}

// Session drives one worker's connection to the dispatcher: receiving
// tasks, assembling chunked modules into cache, executing, and replying.
type Session struct {
	tr    transport.Transport
	dec   wire.Decoder
	out   []byte
	cache *modcache.Cache
	exec  executor.Executor

	state  State
	active *activeTask
}

// New returns a Session in the Ready state, bound to tr, cache, and exec.
// The caller is responsible for opening tr (§4.D: "retrying every 10
// seconds until success" is a connection-level concern outside this type).
func New(tr transport.Transport, cache *modcache.Cache, exec executor.Executor) *Session {
	return &Session{tr: tr, cache: cache, exec: exec, state: StateReady}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// SendReady enqueues the one-time ClientReady handshake message (§4.D).
func (s *Session) SendReady(freeRAMBytes uint32) error {
	return s.enqueue(wire.ClientReady{
		CachedModules: s.cache.Names(),
		FreeRAMBytes:  freeRAMBytes,
	})
}

func (s *Session) enqueue(msg wire.Message) error {
	s.out = append(s.out, wire.Encode(msg)...)
	return nil
}

// Flush drains as much of the outgoing buffer as the transport accepts
// without blocking, leaving the rest buffered for the next call (§4.D: "drain
// outgoing bytes to the channel").
func (s *Session) Flush() error {
	for len(s.out) > 0 {
		n, err := s.tr.Write(s.out)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		s.out = s.out[n:]
	}
	return nil
}

// Poll performs one iteration of the session loop (§4.D): non-blocking
// drain of incoming bytes, decode as many framed messages as possible,
// handle each in order, then flush outgoing bytes.
func (s *Session) Poll() error {
	buf := make([]byte, 64*1024)
	n, err := s.tr.Read(buf)
	if err != nil {
		return err
	}
	if n > 0 {
		s.dec.Feed(buf[:n])
	}

	msgs, err := s.dec.DrainAll()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := s.handle(m); err != nil {
			return err
		}
	}
	return s.Flush()
}

func (s *Session) handle(msg wire.Message) error {
	switch m := msg.(type) {
	case wire.ServerTask:
		return s.handleServerTask(m)
	case wire.ServerModule:
		return s.handleServerModule(m)
	case wire.ServerAck:
		return s.handleServerAck(m)
	case wire.Heartbeat:
		// Echoing is left to implementation's discretion (§4.D); this
		// worker does not echo.
		return nil
	default:
		return nil
	}
}

func (s *Session) handleServerTask(m wire.ServerTask) error {
	if err := s.enqueue(wire.ClientAck{
		TaskID: m.TaskID,
		Info: wire.AckInfo{
			Kind:          wire.AckInfoTask,
			CachedModules: s.cache.Names(),
		},
	}); err != nil {
		return err
	}

	if s.cache.Contains(m.Module.Name) {
		return s.executeAndReply(m.TaskID, m.Module.Name, m.Module.Digest, m.Params)
	}

	if err := s.cache.PutSlot(m.Module.Name, int(m.Module.Size)); err != nil {
		if errors.Is(err, modcache.ErrCacheFull) {
			s.state = StateFailed
			return nil
		}
		return err
	}

	s.active = &activeTask{
		id:     m.TaskID,
		module: m.Module,
		params: m.Params,
		asm:    assembler.New(m.Module, s.cache),
	}
	s.state = StateTransferring
	return nil
}

func (s *Session) handleServerModule(m wire.ServerModule) error {
	if s.state != StateTransferring || s.active == nil || s.active.id != m.TaskID {
		return ErrUnexpectedMessage
	}

	complete, err := s.active.asm.AddChunk(m.ChunkIndex, m.Data)
	if err != nil {
		s.active.retries++
		if ackErr := s.enqueue(wire.ClientAck{
			TaskID: m.TaskID,
			Info:   wire.AckInfo{Kind: wire.AckInfoModule, ChunkIndex: m.ChunkIndex, Success: false},
		}); ackErr != nil {
			return ackErr
		}
		if s.active.retries > maxRetries {
			s.state = StateFailed
		}
		return nil
	}

	if err := s.enqueue(wire.ClientAck{
		TaskID: m.TaskID,
		Info:   wire.AckInfo{Kind: wire.AckInfoModule, ChunkIndex: m.ChunkIndex, Success: true},
	}); err != nil {
		return err
	}

	if complete {
		return s.executeAndReply(m.TaskID, s.active.module.Name, s.active.module.Digest, s.active.params)
	}
	return nil
}

// executeAndReply runs the now fully-resident module and sends its result,
// entering Executing to await the dispatcher's ServerAck (§4.D). Before
// executing it recomputes the BLAKE3 digest of the assembled binary and
// compares it against the descriptor's digest; a mismatch fails the task
// the same way an executor error would, without spending an executor call
// on bytes that didn't arrive intact.
func (s *Session) executeAndReply(taskID uint64, name string, digest [32]byte, params []wire.Value) error {
	binary, err := s.cache.Read(name)
	if err != nil {
		return err
	}

	h := blake3.New()
	h.Write(binary)
	var got [32]byte
	copy(got[:], h.Sum(nil))
	if got != digest {
		s.state = StateFailed
		return nil
	}

	results, err := s.exec.Execute(name, binary, params)
	if err != nil {
		s.state = StateFailed
		return nil
	}

	if err := s.enqueue(wire.ClientResult{TaskID: taskID, Results: results}); err != nil {
		return err
	}
	s.state = StateExecuting
	return nil
}

func (s *Session) handleServerAck(m wire.ServerAck) error {
	// §4.D: ServerAck clears any pending tracking and returns to Ready; a
	// task that reached Executing passes through Completed on the way.
	if s.state == StateExecuting {
		s.state = StateCompleted
	}
	s.active = nil
	s.state = StateReady
	return nil
}
