// Command st2110d runs one ST 2110 TX or RX session: it opens the
// configured framebuffer ring, drives an RX session's tasklet side from a
// UDP socket (joining multicast via golang.org/x/net/ipv4 when applicable),
// and optionally exports Prometheus metrics over HTTP. A TX session is
// created but no tasklet drives it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/st2110/core/internal/logger"
	"github.com/st2110/core/internal/pipeline"
	"github.com/st2110/core/internal/stats"
	"github.com/st2110/core/internal/st2110_40"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	registry := stats.NewRegistry()

	sess, err := pipeline.Create(cfg.toPipelineConfig(), registry)
	if err != nil {
		log.Error("failed to create session", "error", err)
		os.Exit(1)
	}
	log.Info("session created", "id", sess.ID(), "mode", cfg.mode, "kind", cfg.kind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.metricsAddr != "" {
		metricsSrv = startMetricsServer(ctx, cfg.metricsAddr, registry, log)
	}

	if cfg.mode == "rx" {
		if err := startRXTasklet(sess, cfg, log); err != nil {
			log.Error("failed to start rx tasklet", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("tx mode has no built-in packetizer in this build; use the pipeline API directly to drive GetFrame/PutFrame")
	}

	log.Info("st2110d running", "version", version)
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.WakeBlock()
		if err := sess.Free(); err != nil {
			log.Error("session free error", "error", err)
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(context.Background())
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("st2110d stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// startRXTasklet opens the session's RX socket and launches the goroutine
// that feeds the session's buffer ring, registering it on the session's
// WaitGroup so Free() waits for it to observe ctx cancellation.
func startRXTasklet(sess *pipeline.Session, cfg *cliConfig, log interface {
	Info(string, ...any)
}) error {
	conn, err := listenRX(pipeline.Endpoint{IP: cfg.rxIP, Port: uint16(cfg.rxPort)})
	if err != nil {
		return err
	}
	log.Info("rx listening", "addr", conn.LocalAddr().String())

	sess.WG().Add(1)
	if cfg.kind == "anc" {
		asm := st2110_40.NewAssembler(st2110_40.AssemblerConfig{AutoDetectInterlaced: cfg.autoDetectInterlaced})
		go runAncRX(sess.Context(), conn, sess, asm)
	} else {
		go runRawRX(sess.Context(), conn, sess)
	}
	return nil
}

// startMetricsServer serves the session registry's Prometheus collectors on
// addr's /metrics endpoint, returning the server so the caller can shut it
// down alongside the session. A background goroutine copies the registry's
// atomic counters into the exported gauges once a second until ctx is done.
func startMetricsServer(ctx context.Context, addr string, registry *stats.Registry, log interface {
	Error(string, ...any)
	Info(string, ...any)
}) *http.Server {
	promReg := prometheus.NewRegistry()
	registry.MustRegisterCollectors(promReg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.Export()
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}
