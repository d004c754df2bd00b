package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a tag attached to a principal. A principal may hold several.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleReceptionist  Role = "receptionist"
	RoleLabTechnician Role = "lab_technician"
	RolePharmacist    Role = "pharmacist"
)

// AllRoles lists every known role in display order.
var AllRoles = []Role{
	RoleAdmin,
	RoleDoctor,
	RoleNurse,
	RoleReceptionist,
	RoleLabTechnician,
	RolePharmacist,
}

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Module is the unit of permission granularity.
type Module string

const (
	ModuleDashboard      Module = "dashboard"
	ModulePatients       Module = "patients"
	ModuleAppointments   Module = "appointments"
	ModuleLaboratory     Module = "laboratory"
	ModulePharmacy       Module = "pharmacy"
	ModuleBilling        Module = "billing"
	ModuleReports        Module = "reports"
	ModuleAccounts       Module = "accounts"
	ModuleStaff          Module = "staff"
	ModuleUserManagement Module = "user_management"
	ModuleNursing        Module = "nursing"
	ModuleMedications    Module = "medications"
	ModuleSettings       Module = "settings"
)

var AllModules = []Module{
	ModuleDashboard,
	ModulePatients,
	ModuleAppointments,
	ModuleLaboratory,
	ModulePharmacy,
	ModuleBilling,
	ModuleReports,
	ModuleAccounts,
	ModuleStaff,
	ModuleUserManagement,
	ModuleNursing,
	ModuleMedications,
	ModuleSettings,
}

func (m Module) Valid() bool {
	for _, known := range AllModules {
		if m == known {
			return true
		}
	}
	return false
}

// Action is one of the four capabilities a role can hold on a module.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var AllActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// RolePermission is the stored grant for one (role, module) pair.
type RolePermission struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Role      Role      `db:"role" json:"role"`
	Module    Module    `db:"module" json:"module"`
	CanView   bool      `db:"can_view" json:"can_view"`
	CanCreate bool      `db:"can_create" json:"can_create"`
	CanEdit   bool      `db:"can_edit" json:"can_edit"`
	CanDelete bool      `db:"can_delete" json:"can_delete"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Grants reports whether the row sets the flag for action.
func (p *RolePermission) Grants(action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionCreate:
		return p.CanCreate
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	}
	return false
}

// Capability is the derived view of what a principal may do on a module.
type Capability struct {
	CanView   bool `json:"can_view"`
	CanCreate bool `json:"can_create"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// FullCapability grants every action.
func FullCapability() Capability {
	return Capability{CanView: true, CanCreate: true, CanEdit: true, CanDelete: true}
}

// Allows reports whether the capability covers action.
func (c Capability) Allows(action Action) bool {
	switch action {
	case ActionView:
		return c.CanView
	case ActionCreate:
		return c.CanCreate
	case ActionEdit:
		return c.CanEdit
	case ActionDelete:
		return c.CanDelete
	}
	return false
}

// UserRole links a user to one role.
type UserRole struct {
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Role       Role      `db:"role" json:"role"`
	AssignedBy uuid.UUID `db:"assigned_by" json:"assigned_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RoleSet is a deduplicated set of roles.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Slice returns the roles sorted by name.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key is a stable string form usable as a cache key component.
func (s RoleSet) Key() string {
	roles := s.Slice()
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
