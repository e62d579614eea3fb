// Package executor defines the worker-side contract for running a module
// binary against a parameter vector (§6 Executor contract). The real
// bytecode engine is explicitly out of scope (§1); this package only
// specifies the seam and ships a host-process stand-in used by tests and by
// cmd/worker until a real engine is wired in.
package executor

import (
	"errors"
	"fmt"

	"github.com/quantarax/dispatch/internal/wire"
)

// ErrEntryPointNotFound means the binary did not export a "run" entry point
// the executor recognizes.
var ErrEntryPointNotFound = errors.New("executor: entry point not found")

// ExecErr wraps a failure the executor itself reports, as distinct from a
// binary that the cache or assembler rejected before it ever reached here.
type ExecErr struct {
	Module string
	Err    error
}

func (e *ExecErr) Error() string {
	return fmt.Sprintf("executor: module %q: %v", e.Module, e.Err)
}

func (e *ExecErr) Unwrap() error { return e.Err }

// Executor maps a binary plus typed parameters to typed results (§6).
type Executor interface {
	Execute(module string, binary []byte, params []wire.Value) ([]wire.Value, error)
}

// Func is a registered host-process stand-in for one module's exported
// "run" entry point.
type Func func(binary []byte, params []wire.Value) ([]wire.Value, error)

// Registry is a minimal Executor that looks up a Func by module name. It
// stands in for the opaque bytecode engine the way the teacher repository
// stubs out its CAS garbage collector behind a local interface rather than
// inventing a fake external dependency.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register associates a module name with the Go function that stands in for
// its "run" entry point.
func (r *Registry) Register(module string, fn Func) {
	r.funcs[module] = fn
}

func (r *Registry) Execute(module string, binary []byte, params []wire.Value) ([]wire.Value, error) {
	fn, ok := r.funcs[module]
	if !ok {
		return nil, &ExecErr{Module: module, Err: ErrEntryPointNotFound}
	}
	results, err := fn(binary, params)
	if err != nil {
		return nil, &ExecErr{Module: module, Err: err}
	}
	return results, nil
}
