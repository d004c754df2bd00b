// Package app wires configuration, stores and services into the object graph
// shared by the API server, the background worker and the admin CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hmis-api/internal/config"
	"github.com/jwalitptl/hmis-api/internal/email"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/repository/postgres"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	authsvc "github.com/jwalitptl/hmis-api/internal/service/auth"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/internal/service/event"
	"github.com/jwalitptl/hmis-api/internal/service/medication"
	"github.com/jwalitptl/hmis-api/internal/service/rbac"
	"github.com/jwalitptl/hmis-api/internal/service/reminder"
	"github.com/jwalitptl/hmis-api/pkg/auth"
	"github.com/jwalitptl/hmis-api/pkg/logger"
	"github.com/jwalitptl/hmis-api/pkg/messaging/redis"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
	"github.com/jwalitptl/hmis-api/pkg/security"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "hmis"

// Repositories groups the postgres-backed stores.
type Repositories struct {
	Users             repository.UserRepository
	Roles             repository.RoleRepository
	Permissions       repository.PermissionRepository
	Prescriptions     repository.PrescriptionRepository
	Doses             repository.DoseRepository
	AdministrationLog repository.AdministrationLogRepository
	Audit             repository.AuditRepository
	Outbox            repository.OutboxRepository
	Reminders         repository.ReminderLogRepository
}

func NewRepositories(db *sqlx.DB) Repositories {
	base := postgres.NewBaseRepository(db)
	return Repositories{
		Users:             postgres.NewUserRepository(base),
		Roles:             postgres.NewRoleRepository(base),
		Permissions:       postgres.NewPermissionRepository(base),
		Prescriptions:     postgres.NewPrescriptionRepository(base),
		Doses:             postgres.NewDoseRepository(base),
		AdministrationLog: postgres.NewAdministrationLogRepository(base),
		Audit:             postgres.NewAuditRepository(base),
		Outbox:            postgres.NewOutboxRepository(base),
		Reminders:         postgres.NewReminderLogRepository(base),
	}
}

// Services holds the domain services built on a set of repositories.
type Services struct {
	Audit      *audit.Service
	Events     *event.EventService
	Engine     *authz.Engine
	Resolver   *authz.Resolver
	Auth       *authsvc.Service
	RBAC       *rbac.Service
	Medication *medication.Service
	Reminder   *reminder.Service
}

func NewServices(cfg *config.Config, repos Repositories, m *metrics.Metrics, zl zerolog.Logger) *Services {
	auditSvc := audit.NewService(repos.Audit, zl)
	events := event.NewEventService(repos.Outbox, zl)
	engine := authz.NewEngine(repos.Permissions, cfg.Authz.CacheTTL, m, zl)

	return &Services{
		Audit:    auditSvc,
		Events:   events,
		Engine:   engine,
		Resolver: authz.NewResolver(repos.Roles, cfg.Authz.ResolveTimeout, zl),
		Auth: authsvc.NewService(
			repos.Users,
			auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL()),
			security.NewBcryptHasher(cfg.Security.BcryptCost),
			auditSvc,
			zl,
		),
		RBAC: rbac.NewService(repos.Permissions, repos.Roles, auditSvc, events, engine),
		Medication: medication.NewService(
			repos.Prescriptions,
			repos.Doses,
			repos.AdministrationLog,
			engine,
			auditSvc,
			events,
			m,
			zl,
		),
		Reminder: reminder.NewService(
			reminder.NewSMSGateway(cfg.Reminder.SMS, zl),
			email.NewSMTPService(cfg.Reminder.SMTP),
			repos.Reminders,
			m,
			zl,
		),
	}
}

// Container is the full object graph of a running process.
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *sqlx.DB
	Broker   *redis.RedisBroker
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Repos    Repositories
	*Services
}

// SetupLogging configures the global zerolog logger from cfg and returns the
// wrapper the workers take.
func SetupLogging(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
	log.Logger = l.ZL
	zerolog.DefaultContextLogger = &log.Logger
	return l
}

// New connects to postgres and redis and builds every service. Close releases
// both connections.
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*Container, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), l.ZL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create Redis broker: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(MetricsNamespace, "", registry)
	repos := NewRepositories(db)

	return &Container{
		Config:   cfg,
		Logger:   l,
		DB:       db,
		Broker:   broker,
		Registry: registry,
		Metrics:  m,
		Repos:    repos,
		Services: NewServices(cfg, repos, m, l.ZL),
	}, nil
}

func (c *Container) Close() error {
	brokerErr := c.Broker.Close()
	if err := c.DB.Close(); err != nil {
		return err
	}
	return brokerErr
}
