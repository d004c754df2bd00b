package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

const defaultCacheTTL = 5 * time.Minute

// Engine answers permission questions for a principal. Permission rows are
// cached per principal and role set; any store failure resolves to deny.
type Engine struct {
	perms   repository.PermissionRepository
	cache   *gocache.Cache
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewEngine(perms repository.PermissionRepository, cacheTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	if m == nil {
		m = metrics.New("hmis")
	}
	return &Engine{
		perms:   perms,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		metrics: m,
		logger:  logger.With().Str("component", "authz").Logger(),
	}
}

// Invalidate drops every cached permission set. Called after any change to
// role permissions or role assignments.
func (e *Engine) Invalidate() {
	e.cache.Flush()
}

func cacheKey(userID uuid.UUID, roles model.RoleSet) string {
	return userID.String() + "|" + roles.Key()
}

// rows returns the permission rows for roles. The caller treats an error as
// an empty grant set.
func (e *Engine) rows(ctx context.Context, p Principal, roles model.RoleSet) ([]*model.RolePermission, error) {
	key := cacheKey(p.UserID, roles)
	if cached, ok := e.cache.Get(key); ok {
		e.metrics.AuthzCacheHits.Inc()
		return cached.([]*model.RolePermission), nil
	}

	rows, err := e.perms.ListByRoles(ctx, roles.Slice())
	if err != nil {
		e.metrics.AuthzStoreErrors.Inc()
		e.logger.Error().Err(err).
			Str("user_id", p.UserID.String()).
			Str("roles", roles.Key()).
			Msg("failed to load role permissions, denying")
		return nil, err
	}
	e.cache.SetDefault(key, rows)
	return rows, nil
}

// Check evaluates one (module, action) pair and reports the deciding rule.
func (e *Engine) Check(ctx context.Context, p Principal, module model.Module, action model.Action) Decision {
	d := e.check(ctx, p, module, action)
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	e.metrics.AuthzDecisions.WithLabelValues(string(module), string(action), result).Inc()
	return d
}

func (e *Engine) check(ctx context.Context, p Principal, module model.Module, action model.Action) Decision {
	roles, ok := p.Roles()
	if !ok {
		return Decision{Rule: RuleNotReady}
	}
	if !module.Valid() || !action.Valid() {
		return Decision{Rule: RuleNoGrant}
	}
	if name, ok := matchShortCircuit(roles, module); ok {
		return Decision{Allowed: true, Rule: name}
	}
	if len(roles) == 0 {
		return Decision{Rule: RuleNoGrant}
	}

	rows, err := e.rows(ctx, p, roles)
	if err != nil {
		return Decision{Rule: RuleStoreError}
	}
	return Explain(roles, rows, module, action)
}

// HasPermission reports whether any of the principal's roles may perform
// action on module. Never errors: every failure is a deny.
func (e *Engine) HasPermission(ctx context.Context, p Principal, module model.Module, action model.Action) bool {
	return e.Check(ctx, p, module, action).Allowed
}

// CanAccessModule is HasPermission for the view action.
func (e *Engine) CanAccessModule(ctx context.Context, p Principal, module model.Module) bool {
	return e.HasPermission(ctx, p, module, model.ActionView)
}

// GetModulePermissions aggregates all four actions for module. Each flag
// equals HasPermission for that action.
func (e *Engine) GetModulePermissions(ctx context.Context, p Principal, module model.Module) model.Capability {
	roles, ok := p.Roles()
	if !ok || !module.Valid() {
		return model.Capability{}
	}
	if _, ok := matchShortCircuit(roles, module); ok {
		return model.FullCapability()
	}
	if len(roles) == 0 {
		return model.Capability{}
	}

	rows, err := e.rows(ctx, p, roles)
	if err != nil {
		return model.Capability{}
	}
	return Aggregate(roles, rows, module)
}

// Matrix returns the capability on every module, reading the store at most once.
func (e *Engine) Matrix(ctx context.Context, p Principal) map[model.Module]model.Capability {
	out := make(map[model.Module]model.Capability, len(model.AllModules))
	roles, ok := p.Roles()
	if !ok {
		for _, m := range model.AllModules {
			out[m] = model.Capability{}
		}
		return out
	}

	var rows []*model.RolePermission
	if !roles.Has(model.RoleAdmin) && len(roles) > 0 {
		// a failed fetch leaves rows empty, so only the wildcards grant
		rows, _ = e.rows(ctx, p, roles)
	}
	for _, m := range model.AllModules {
		out[m] = Aggregate(roles, rows, m)
	}
	return out
}
