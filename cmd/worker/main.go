package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crm-sync-gateway/crmsync"
	"crm-sync-gateway/crmsync/infra"
	"crm-sync-gateway/crmsync/rules"
	"crm-sync-gateway/internal/config"
	"crm-sync-gateway/internal/logging"
	rinfra "crm-sync-gateway/resilience/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogVerbosity, cfg.LogDev)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb, err := cfg.NewRedisClient(ctx)
	if err != nil {
		logging.Fatal(logger, err, "redis unavailable", "addr", cfg.RedisAddr)
	}

	ruleCfg, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		logging.Fatal(logger, err, "rules error", "file", cfg.RulesFile)
	}

	queue := infra.NewRedisQueue(rdb, infra.WithQueuePrefix(cfg.QueuePrefix), infra.WithWorkerID(cfg.WorkerID))
	// entregas sem ack de uma execução anterior com o mesmo WORKER_ID
	if n, err := queue.Recover(ctx, cfg.WorkerID); err != nil {
		logger.Error(err, "recover in-flight jobs failed")
	} else if n > 0 {
		logger.Info("recovered in-flight jobs", "count", n)
	}

	prom := infra.NewPrometheusStats()
	if err := prom.Register(prometheus.DefaultRegisterer); err != nil {
		logging.Fatal(logger, err, "metrics registration failed")
	}
	stats := infra.TeeStats{prom}
	if cfg.StatsEnabled {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
		))
	}

	d, err := crmsync.New(crmsync.Options{
		Store:            rinfra.NewRedisStore(rdb),
		Queue:            queue,
		Contacts:         infra.NewRedisContacts(rdb, ""),
		Rules:            &ruleCfg,
		Stats:            stats,
		DefaultRateLimit: cfg.DefaultRateLimit,
		RateWindow:       cfg.RateWindow,
		FailureThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
		RateLimitDelay:   cfg.RateLimitDelay,
		CircuitOpenDelay: cfg.CircuitOpenDelay,
		Concurrency:      cfg.Concurrency,
		AcquireTimeout:   cfg.AcquireTimeout,
		PacerRPS:         cfg.PacerRPS,
		PacerBurst:       cfg.PacerBurst,
		MaxRetries:       cfg.Retries(),
		PollInterval:     cfg.PollInterval,
		Logger:           logger,
	})
	if err != nil {
		logging.Fatal(logger, err, "dispatcher setup failed")
	}

	srv := newMetricsServer(cfg.MetricsAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server error")
		}
	}()

	logger.Info("worker started", "workerID", cfg.WorkerID, "redis", cfg.RedisAddr, "metrics", cfg.MetricsAddr, "targets", d.Targets())
	logger.Info("resilience", "rateLimit", cfg.DefaultRateLimit, "window", cfg.RateWindow, "breakerThreshold", cfg.BreakerThreshold, "breakerTimeout", cfg.BreakerTimeout)
	logger.Info("concurrency", "max", cfg.Concurrency, "acquireTimeout", cfg.AcquireTimeout, "queueRPS", cfg.PacerRPS, "maxRetries", cfg.MaxRetries)

	runErr := d.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := multierr.Combine(runErr, srv.Shutdown(shutdownCtx), rdb.Close()); err != nil {
		logging.Fatal(logger, err, "shutdown error")
	}
	logger.Info("worker stopped")
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
