package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
)

// defaultMatrix lists the grants each role starts with, as a subset of "vced".
// Admin is absent: the admin wildcard makes stored rows irrelevant.
var defaultMatrix = map[model.Role]map[model.Module]string{
	model.RoleDoctor: {
		model.ModulePatients:     "vce",
		model.ModuleAppointments: "vce",
		model.ModuleLaboratory:   "vc",
		model.ModulePharmacy:     "v",
		model.ModuleReports:      "v",
		model.ModuleNursing:      "v",
		model.ModuleMedications:  "vce",
	},
	model.RoleNurse: {
		model.ModulePatients:     "ve",
		model.ModuleAppointments: "v",
		model.ModuleLaboratory:   "v",
		model.ModuleNursing:      "vce",
		model.ModuleMedications:  "ve",
	},
	model.RoleReceptionist: {
		model.ModulePatients:     "vce",
		model.ModuleAppointments: "vced",
		model.ModuleBilling:      "v",
	},
	model.RoleLabTechnician: {
		model.ModulePatients:   "v",
		model.ModuleLaboratory: "vce",
		model.ModuleReports:    "v",
	},
	model.RolePharmacist: {
		model.ModulePatients:    "v",
		model.ModulePharmacy:    "vced",
		model.ModuleMedications: "vce",
	},
}

// DefaultPermissions expands the default matrix into rows, ordered by role
// then module.
func DefaultPermissions() []*model.RolePermission {
	var out []*model.RolePermission
	for _, role := range model.AllRoles {
		grants, ok := defaultMatrix[role]
		if !ok {
			continue
		}
		for _, module := range model.AllModules {
			flags, ok := grants[module]
			if !ok {
				continue
			}
			out = append(out, &model.RolePermission{
				Role:      role,
				Module:    module,
				CanView:   strings.ContainsRune(flags, 'v'),
				CanCreate: strings.ContainsRune(flags, 'c'),
				CanEdit:   strings.ContainsRune(flags, 'e'),
				CanDelete: strings.ContainsRune(flags, 'd'),
			})
		}
	}
	return out
}

// SeedDefaults inserts the default rows that do not exist yet. Rows already
// present, edited or not, are left alone. It returns the number inserted.
func (s *Service) SeedDefaults(ctx context.Context, actorID uuid.UUID) (int, error) {
	created := 0
	for _, perm := range DefaultPermissions() {
		_, err := s.perms.Get(ctx, perm.Role, perm.Module)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, storeError("permission", err)
		}
		if err := s.perms.Upsert(ctx, perm); err != nil {
			return created, storeError("permission", err)
		}
		created++
	}

	if created > 0 {
		s.cache.Invalidate()
		s.auditor.Record(ctx, actorID, model.AuditActionCreate, model.AuditEntityRolePermission, "defaults", &audit.LogOptions{
			Metadata: map[string]int{"created": created},
		})
		s.events.Publish(ctx, model.EventRolePermissionChanged, map[string]interface{}{
			"action":  "seed",
			"created": created,
		})
	}
	return created, nil
}
