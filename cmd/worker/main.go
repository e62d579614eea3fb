// Command worker runs the worker-side stand-in: it dials the dispatcher
// over QUIC, announces its free RAM, and then drives the single
// cooperative poll/flush loop (§5) until told to stop. The real bytecode
// engine that would execute received modules is out of scope (§1); this
// binary registers no modules, so every ServerTask fails fast as an
// executor error until a real engine is wired into the registry.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantarax/dispatch/internal/config"
	"github.com/quantarax/dispatch/internal/executor"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/quicutil"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/validation"

	"github.com/quantarax/dispatch/workerapp"
)

func main() {
	dispatcherAddr := flag.String("dispatcher-addr", "", "dispatcher QUIC address, overrides HOST/PORT")
	freeRAM := flag.Uint("free-ram-bytes", 512*1024, "free RAM reported on connect")
	flag.Parse()

	logger := observability.NewLogger("worker", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()

	cfg := config.LoadWorker()
	addr := *dispatcherAddr
	if addr == "" {
		addr = cfg.Host + ":" + itoa(cfg.Port)
	}
	if err := validation.ValidateAddr(addr); err != nil {
		logger.Fatal(err, "invalid dispatcher address")
	}

	registry := executor.NewRegistry()

	w := workerapp.New(int(cfg.ModuleCacheBytes), registry, uint32(*freeRAM), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down gracefully")
		cancel()
	}()

	dialer := transport.QUICDialer{TLSConfig: quicutil.MakeClientTLSConfig()}
	if err := w.Connect(ctx, dialer, addr); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("worker stopped before connecting")
			return
		}
		logger.Fatal(err, "failed to connect to dispatcher")
	}
	logger.Info("connected to dispatcher at " + addr)

	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error(err, "worker loop stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("worker stopped")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
