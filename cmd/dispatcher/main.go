// Command dispatcher runs the task dispatcher: the tick loop, the
// rate-limited QUIC accept loop, the module/task-history stores, and the
// read-only inspector HTTP surface. It is grounded on the teacher
// repository's daemon/main.go — the same flag parsing, self-signed
// certificate bring-up, and signal-driven graceful shutdown — narrowed
// from a gRPC+REST+SSE API surface to the plain net/http inspector this
// specification calls for.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantarax/dispatch/internal/clock"
	"github.com/quantarax/dispatch/internal/config"
	"github.com/quantarax/dispatch/internal/inspector"
	"github.com/quantarax/dispatch/internal/modulestore"
	"github.com/quantarax/dispatch/internal/observability"
	"github.com/quantarax/dispatch/internal/quicutil"
	"github.com/quantarax/dispatch/internal/taskhistory"
	"github.com/quantarax/dispatch/internal/transport"
	"github.com/quantarax/dispatch/internal/validation"

	"github.com/quantarax/dispatch/dispatcherapp"
)

func main() {
	quicAddr := flag.String("quic-addr", "", "QUIC listener address, overrides PORT")
	webAddr := flag.String("web-addr", "", "Inspector HTTP address, overrides WEB_PORT")
	flag.Parse()

	logger := observability.NewLogger("dispatcher", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("1.0.0")

	if shutdown, err := observability.InitTracing(context.Background(), "dispatcher"); err == nil {
		defer shutdown(context.Background())
	}

	cfg := config.LoadDispatcher()
	listenAddr := addrFromConfig(cfg.Host, cfg.Port)
	if *quicAddr != "" {
		listenAddr = *quicAddr
	}
	webListenAddr := addrFromConfig(cfg.Host, cfg.WebPort)
	if *webAddr != "" {
		webListenAddr = *webAddr
	}

	if err := validation.ValidateAddr(listenAddr); err != nil {
		logger.Fatal(err, "invalid QUIC listen address")
	}
	if err := validation.ValidateAddr(webListenAddr); err != nil {
		logger.Fatal(err, "invalid inspector listen address")
	}

	store, err := modulestore.Open(cfg.ModuleStorePath)
	if err != nil {
		logger.Fatal(err, "failed to open module store")
	}
	defer store.Close()

	history, err := taskhistory.Open(cfg.TaskHistoryPath)
	if err != nil {
		logger.Fatal(err, "failed to open task history store")
	}
	defer history.Close()

	certPEM, keyPEM, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		logger.Fatal(err, "failed to generate TLS certificate")
	}
	tlsConfig, err := quicutil.MakeTLSConfig(certPEM, keyPEM)
	if err != nil {
		logger.Fatal(err, "failed to create TLS config")
	}

	listener, err := transport.ListenQUIC(listenAddr, tlsConfig)
	if err != nil {
		logger.Fatal(err, "failed to start QUIC listener")
	}
	defer listener.Close()
	logger.Info("QUIC listener started on " + listenAddr)

	dialer := transport.QUICDialer{TLSConfig: quicutil.MakeClientTLSConfig()}

	d, err := dispatcherapp.New(store, history, clock.Real{}, dialer, logger, metrics)
	if err != nil {
		logger.Fatal(err, "failed to load persisted modules")
	}

	health.RegisterCheck("quic_listener", observability.QUICListenerCheck(listenAddr))
	health.RegisterCheck("module_store", observability.ModuleStoreCheck(func() error {
		_, err := store.Names()
		return err
	}))
	health.RegisterCheck("task_history", observability.TaskHistoryCheck(func() error {
		_, err := history.RecentByModule("", 1)
		return err
	}))
	health.RegisterCheck("world", observability.WorldCheck(d.World.TryLock, d.World.Unlock))

	insp := inspector.New(d.World, health, metrics)
	mux := http.NewServeMux()
	insp.RegisterHTTP(mux)

	webServer := &http.Server{Addr: webListenAddr, Handler: mux}
	go func() {
		logger.Info("Inspector listening on " + webListenAddr)
		if err := webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "inspector server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := dispatcherapp.RunGroup(ctx, d, listener); err != nil {
			logger.Error(err, "dispatcher run group stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	cancel()
	_ = webServer.Shutdown(context.Background())
	logger.Info("dispatcher stopped")
}

func addrFromConfig(host string, port int) string {
	return host + ":" + itoa(port)
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
