package authz

import (
	"context"

	"github.com/jwalitptl/hmis-api/internal/model"
)

// GateResult is what a guarded surface should render.
type GateResult int

const (
	// GateLoading means roles are not resolved yet. Neither content nor a
	// denial may be shown.
	GateLoading GateResult = iota
	GateDenied
	GateAllowed
)

func (r GateResult) String() string {
	switch r {
	case GateDenied:
		return "denied"
	case GateAllowed:
		return "allowed"
	}
	return "loading"
}

// Requirement is what a guarded surface asks of the principal. Zero fields
// are not checked.
type Requirement struct {
	Role   model.Role
	Module model.Module
	Action model.Action
}

// Gate combines the principal's lifecycle with the permission rules.
// An admin satisfies any role requirement.
func (e *Engine) Gate(ctx context.Context, p Principal, req Requirement) GateResult {
	switch p.Status() {
	case StatusUninitialized, StatusLoading:
		return GateLoading
	case StatusError:
		return GateDenied
	}

	roles, _ := p.Roles()
	if req.Role != "" && !roles.Has(req.Role) && !roles.Has(model.RoleAdmin) {
		return GateDenied
	}
	if req.Module != "" {
		action := req.Action
		if action == "" {
			action = model.ActionView
		}
		if !e.HasPermission(ctx, p, req.Module, action) {
			return GateDenied
		}
	}
	return GateAllowed
}
