package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hmis-api/internal/app"
	"github.com/jwalitptl/hmis-api/internal/config"
	auditHandler "github.com/jwalitptl/hmis-api/internal/handler/audit"
	authHandler "github.com/jwalitptl/hmis-api/internal/handler/auth"
	authzHandler "github.com/jwalitptl/hmis-api/internal/handler/authz"
	"github.com/jwalitptl/hmis-api/internal/handler/health"
	medicationHandler "github.com/jwalitptl/hmis-api/internal/handler/medication"
	"github.com/jwalitptl/hmis-api/internal/handler/prometheus"
	rbacHandler "github.com/jwalitptl/hmis-api/internal/handler/rbac"
	reminderHandler "github.com/jwalitptl/hmis-api/internal/handler/reminder"
	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := app.SetupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer c.Close()

	go watchPermissionChanges(ctx, c)

	authMiddleware := middleware.NewAuthMiddleware(c.Auth, c.Resolver, c.Engine)

	healthH := health.NewHandler(map[string]health.Pinger{
		"database": health.PingFunc(c.DB.PingContext),
		"redis":    c.Broker,
	})
	metricsH := prometheus.New(c.Registry, app.MetricsNamespace)

	r := router.NewRouter(
		authMiddleware,
		healthH,
		metricsH,
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.RateLimit.Burst,
			RateLimitOn:    cfg.RateLimit.Enabled,
			AllowedOrigins: cfg.Security.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		},
		authHandler.NewHandler(c.Auth),
		authzHandler.NewHandler(c.Engine),
		rbacHandler.NewHandler(c.RBAC),
		medicationHandler.NewHandler(c.Medication, c.Broker),
		reminderHandler.NewHandler(c.Reminder),
		auditHandler.NewHandler(c.Audit),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // the due-dose stream is long lived; handlers carry their own deadline
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

// watchPermissionChanges keeps this replica's permission cache in step with
// changes relayed from other processes. CacheTTL bounds staleness while the
// subscription is down.
func watchPermissionChanges(ctx context.Context, c *app.Container) {
	for {
		err := c.Engine.WatchChanges(ctx, c.Broker)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("permission change subscription ended, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
