package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hmis-api/internal/app"
	"github.com/jwalitptl/hmis-api/internal/config"
	internalworker "github.com/jwalitptl/hmis-api/internal/worker"
	"github.com/jwalitptl/hmis-api/pkg/logger"
	"github.com/jwalitptl/hmis-api/pkg/worker"
)

func setupHealthCheck(c *app.Container, port int, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.DB.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := c.Broker.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger := app.SetupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to initialize dependencies")
	}
	defer c.Close()

	processor := worker.NewOutboxProcessor(
		c.Repos.Outbox,
		c.Broker,
		cfg.Outbox.ToWorkerConfig(),
		logger.WithFields(map[string]interface{}{"worker": "outbox"}),
		c.Metrics,
	)
	poller := internalworker.NewDuePoller(
		c.Repos.Doses,
		c.Broker,
		cfg.Poller.Interval,
		logger.WithFields(map[string]interface{}{"worker": "due_poller"}),
		c.Metrics,
	)
	cleanup := internalworker.NewOutboxCleanupWorker(
		c.Repos.Outbox,
		cfg.Outbox.Retention,
		cfg.Worker.CleanupInterval,
		logger.WithFields(map[string]interface{}{"worker": "outbox_cleanup"}),
	)

	health := setupHealthCheck(c, cfg.Worker.HealthPort, logger)

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){processor.Start, poller.Start, cleanup.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health check server shutdown failed")
	}
}
