package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/linematch"
	"github.com/oarkflow/linematch/utils"
)

func main() {
	configPath := flag.String("config", "", "path to the JSON config file")
	flag.Parse()

	cfg, err := linematch.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var source any
	if cfg.Database != nil {
		source = cfg.Database
	} else {
		source = cfg.FilePath
		if n, err := utils.RowCount(cfg.FilePath); err == nil {
			log.Printf("corpus %s has %d lines", cfg.FilePath, n)
		}
	}

	registry := prometheus.NewRegistry()
	monitor := linematch.NewMonitor()
	telemetry := linematch.Telemetries{
		monitor,
		linematch.NewPrometheusTelemetry(registry),
	}

	builder := linematch.NewBuilder(
		linematch.WithMaxLineBytes(cfg.MaxQueryBytes),
	)
	engine, err := linematch.NewSearchEngine(context.Background(), builder, source,
		linematch.WithPolicy(cfg.Policy()),
		linematch.WithCache(linematch.NewResultCache(cfg.CacheSize)),
		linematch.WithTelemetry(telemetry),
	)
	if err != nil {
		log.Fatalf("initial index build: %v", err)
	}
	log.Printf("index ready: %d lines, generation %d", engine.ActiveIndex().Len(), engine.Generation())

	opts := []linematch.ServerOption{
		linematch.WithMaxWorkers(cfg.MaxWorkers),
		linematch.WithMaxQueryBytes(cfg.MaxQueryBytes),
		linematch.WithIdleTimeout(cfg.IdleTimeout()),
		linematch.WithServerTelemetry(telemetry),
	}

	var limiter *linematch.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = linematch.NewRateLimiter(cfg.RequestsPerMinute,
			linematch.WithCleanupInterval(time.Duration(cfg.RateCleanupSeconds)*time.Second),
		)
		opts = append(opts, linematch.WithRateLimiter(limiter))
	}

	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsConfig != nil {
		opts = append(opts, linematch.WithTLS(tlsConfig))
	}

	srv := linematch.NewServer(cfg.Addr(), engine, opts...)

	if cfg.MetricsAddr != "" {
		admin := linematch.NewAdminServer(engine, monitor, limiter, registry)
		go func() {
			if err := admin.StartHTTP(cfg.MetricsAddr); err != nil {
				log.Printf("admin server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
