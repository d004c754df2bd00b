package authz

import (
	"github.com/jwalitptl/hmis-api/internal/model"
)

// Rule names reported with every decision.
const (
	RuleAdminWildcard     = "admin_wildcard"
	RuleDashboardWildcard = "dashboard_wildcard"
	RuleRoleLookup        = "role_lookup"
	RuleNoGrant           = "no_grant"
	RuleNotReady          = "not_ready"
	RuleStoreError        = "store_error"
)

// shortCircuit is a rule that allows without reading any permission rows.
type shortCircuit struct {
	name  string
	match func(roles model.RoleSet, module model.Module) bool
}

// shortCircuits run in this order before the role lookup:
//  1. admin holds every capability on every module, stored rows are ignored
//  2. every resolved principal may view, and act on, the dashboard
var shortCircuits = []shortCircuit{
	{
		name: RuleAdminWildcard,
		match: func(roles model.RoleSet, _ model.Module) bool {
			return roles.Has(model.RoleAdmin)
		},
	},
	{
		name: RuleDashboardWildcard,
		match: func(_ model.RoleSet, module model.Module) bool {
			return module == model.ModuleDashboard
		},
	},
}

// Decision is the outcome of one check together with the rule that produced it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
}

func matchShortCircuit(roles model.RoleSet, module model.Module) (string, bool) {
	for _, r := range shortCircuits {
		if r.match(roles, module) {
			return r.name, true
		}
	}
	return "", false
}

// Explain evaluates the rules in order. rows may contain grants for roles
// outside roles; those are ignored.
func Explain(roles model.RoleSet, rows []*model.RolePermission, module model.Module, action model.Action) Decision {
	if name, ok := matchShortCircuit(roles, module); ok {
		return Decision{Allowed: true, Rule: name}
	}

	for _, row := range rows {
		if row == nil || row.Module != module || !roles.Has(row.Role) {
			continue
		}
		if row.Grants(action) {
			return Decision{Allowed: true, Rule: RuleRoleLookup}
		}
	}
	return Decision{Allowed: false, Rule: RuleNoGrant}
}

// Decide is the pure form of HasPermission: OR across roles after the wildcards.
func Decide(roles model.RoleSet, rows []*model.RolePermission, module model.Module, action model.Action) bool {
	return Explain(roles, rows, module, action).Allowed
}

// Aggregate applies Decide to all four actions.
func Aggregate(roles model.RoleSet, rows []*model.RolePermission, module model.Module) model.Capability {
	return model.Capability{
		CanView:   Decide(roles, rows, module, model.ActionView),
		CanCreate: Decide(roles, rows, module, model.ActionCreate),
		CanEdit:   Decide(roles, rows, module, model.ActionEdit),
		CanDelete: Decide(roles, rows, module, model.ActionDelete),
	}
}
