package workerapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantarax/dispatch/internal/executor"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/wire"
	"github.com/quantarax/dispatch/internal/workersession"
)

type fakeDialer struct {
	tr  transport.Transport
	err error
}

func (d fakeDialer) Dial(addr string) (transport.Transport, error) {
	return d.tr, d.err
}

var errDialRefused = errors.New("connection refused")

func TestConnectSendsWorkerReady(t *testing.T) {
	mine, theirs := transport.NewPipe()
	defer mine.Close()
	defer theirs.Close()

	registry := executor.NewRegistry()
	w := New(64*1024, registry, 32*1024, nil)

	if err := w.Connect(context.Background(), fakeDialer{tr: mine}, "dispatcher:3000"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if w.State() != workersession.StateReady {
		t.Fatalf("State = %v, want Ready", w.State())
	}

	dec := wire.Decoder{}
	buf := make([]byte, 4096)
	n, err := theirs.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	dec.Feed(buf[:n])
	msgs, err := dec.DrainAll()
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if _, ok := msgs[0].(wire.ClientReady); !ok {
		t.Fatalf("expected ClientReady, got %T", msgs[0])
	}
}

func TestConnectStopsRetryingOnContextCancel(t *testing.T) {
	registry := executor.NewRegistry()
	w := New(64*1024, registry, 32*1024, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- w.Connect(ctx, fakeDialer{err: errDialRefused}, "dispatcher:3000") }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Connect error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Connect did not stop retrying after context cancellation")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mine, theirs := transport.NewPipe()
	defer mine.Close()
	defer theirs.Close()

	registry := executor.NewRegistry()
	w := New(64*1024, registry, 32*1024, nil)
	if err := w.Connect(context.Background(), fakeDialer{tr: mine}, "dispatcher:3000"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after context cancellation")
	}
}
