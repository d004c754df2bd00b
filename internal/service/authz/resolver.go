package authz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/repository"
)

// Resolver loads a principal's role set. A lookup that does not finish within
// the timeout leaves the principal loading; any other failure marks it failed.
type Resolver struct {
	roles   repository.RoleRepository
	timeout time.Duration
	logger  zerolog.Logger
}

func NewResolver(roles repository.RoleRepository, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{roles: roles, timeout: timeout, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, email string) Principal {
	if userID == uuid.Nil {
		return Uninitialized()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	roles, err := r.roles.ListUserRoles(ctx, userID)
	switch {
	case err == nil:
		return Ready(userID, email, roles...)
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Warn().Str("user_id", userID.String()).Msg("role resolution timed out")
		return Loading(userID, email)
	default:
		r.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to resolve roles")
		return Failed(userID, email, err)
	}
}
