package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
)

// Status is the lifecycle of a principal's role resolution.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "uninitialized"
}

// Principal is the authenticated caller together with the state of its role
// set. A ready principal with no roles is distinct from one still loading.
type Principal struct {
	UserID uuid.UUID
	Email  string
	status Status
	roles  model.RoleSet
	err    error
}

func Uninitialized() Principal {
	return Principal{}
}

func Loading(userID uuid.UUID, email string) Principal {
	return Principal{UserID: userID, Email: email, status: StatusLoading}
}

func Ready(userID uuid.UUID, email string, roles ...model.Role) Principal {
	return Principal{UserID: userID, Email: email, status: StatusReady, roles: model.NewRoleSet(roles...)}
}

func Failed(userID uuid.UUID, email string, err error) Principal {
	if err == nil {
		err = errors.New("role resolution failed")
	}
	return Principal{UserID: userID, Email: email, status: StatusError, err: err}
}

func (p Principal) Status() Status { return p.status }

// Roles returns the resolved role set. ok is false unless the principal is ready.
func (p Principal) Roles() (roles model.RoleSet, ok bool) {
	if p.status != StatusReady {
		return nil, false
	}
	return p.roles, true
}

func (p Principal) Err() error { return p.err }

// HasRole reports whether the principal is ready and holds role.
func (p Principal) HasRole(role model.Role) bool {
	roles, ok := p.Roles()
	return ok && roles.Has(role)
}

// Authenticated reports whether a user id has been established, whatever the
// state of its roles.
func (p Principal) Authenticated() bool {
	return p.status != StatusUninitialized && p.UserID != uuid.Nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or an uninitialized one.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Uninitialized()
}
