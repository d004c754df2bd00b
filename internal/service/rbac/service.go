package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/internal/service/event"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
)

// ErrAdminImmutable is returned for any attempt to change admin permission rows.
var ErrAdminImmutable = errors.New("admin permissions cannot be modified")

// ErrAdminRequired is returned when a non-admin changes role assignments.
var ErrAdminRequired = errors.New("role assignments are managed by administrators")

// Invalidator drops cached permission decisions.
type Invalidator interface {
	Invalidate()
}

type Service struct {
	perms   repository.PermissionRepository
	roles   repository.RoleRepository
	auditor *audit.Service
	events  *event.EventService
	cache   Invalidator
}

func NewService(perms repository.PermissionRepository, roles repository.RoleRepository,
	auditor *audit.Service, events *event.EventService, cache Invalidator) *Service {
	return &Service{
		perms:   perms,
		roles:   roles,
		auditor: auditor,
		events:  events,
		cache:   cache,
	}
}

func storeError(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Unavailable(err)
}

func validatePair(role model.Role, module model.Module) error {
	if !role.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("unknown role %q", role), nil)
	}
	if !module.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("unknown module %q", module), nil)
	}
	if role == model.RoleAdmin {
		return apperrors.Forbidden(ErrAdminImmutable)
	}
	return nil
}

// requireAdmin guards role assignment. No permission row can grant it.
func requireAdmin(actor authz.Principal) error {
	if !actor.HasRole(model.RoleAdmin) {
		return apperrors.Forbidden(ErrAdminRequired)
	}
	return nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]*model.RolePermission, error) {
	perms, err := s.perms.ListAll(ctx)
	if err != nil {
		return nil, storeError("permissions", err)
	}
	return perms, nil
}

func (s *Service) GetPermission(ctx context.Context, role model.Role, module model.Module) (*model.RolePermission, error) {
	perm, err := s.perms.Get(ctx, role, module)
	if err != nil {
		return nil, storeError("permission", err)
	}
	return perm, nil
}

// UpsertPermission replaces the flags of one (role, module) row.
func (s *Service) UpsertPermission(ctx context.Context, actorID uuid.UUID, perm *model.RolePermission) error {
	if err := validatePair(perm.Role, perm.Module); err != nil {
		return err
	}

	if err := s.perms.Upsert(ctx, perm); err != nil {
		return storeError("permission", err)
	}
	s.changed(ctx, actorID, model.AuditActionUpdate, perm.Role, perm.Module, perm)
	return nil
}

func (s *Service) DeletePermission(ctx context.Context, actorID uuid.UUID, role model.Role, module model.Module) error {
	if err := validatePair(role, module); err != nil {
		return err
	}

	if err := s.perms.Delete(ctx, role, module); err != nil {
		return storeError("permission", err)
	}
	s.changed(ctx, actorID, model.AuditActionDelete, role, module, nil)
	return nil
}

func (s *Service) changed(ctx context.Context, actorID uuid.UUID, action string, role model.Role, module model.Module, perm *model.RolePermission) {
	s.cache.Invalidate()

	entityID := string(role) + "/" + string(module)
	var opts *audit.LogOptions
	if perm != nil {
		opts = &audit.LogOptions{Changes: perm}
	}
	s.auditor.Record(ctx, actorID, action, model.AuditEntityRolePermission, entityID, opts)
	s.events.Publish(ctx, model.EventRolePermissionChanged, map[string]interface{}{
		"action":     action,
		"role":       role,
		"module":     module,
		"changed_by": actorID,
	})
}

func (s *Service) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	roles, err := s.roles.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, storeError("user roles", err)
	}
	return roles, nil
}

func (s *Service) AssignRole(ctx context.Context, actor authz.Principal, userID uuid.UUID, role model.Role) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if !role.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("unknown role %q", role), nil)
	}

	assignment := &model.UserRole{
		UserID:     userID,
		Role:       role,
		AssignedBy: actor.UserID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.roles.AssignRole(ctx, assignment); err != nil {
		return storeError("user", err)
	}

	s.cache.Invalidate()
	s.auditor.Record(ctx, actor.UserID, model.AuditActionAssignRole, model.AuditEntityUser, userID.String(), &audit.LogOptions{
		Changes: map[string]interface{}{"role": role},
	})
	s.events.Publish(ctx, model.EventUserRoleAssigned, map[string]interface{}{
		"user_id":     userID,
		"role":        role,
		"assigned_by": actor.UserID,
	})
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, actor authz.Principal, userID uuid.UUID, role model.Role) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if !role.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("unknown role %q", role), nil)
	}

	if err := s.roles.RemoveRole(ctx, userID, role); err != nil {
		return storeError("role assignment", err)
	}

	s.cache.Invalidate()
	s.auditor.Record(ctx, actor.UserID, model.AuditActionRemoveRole, model.AuditEntityUser, userID.String(), &audit.LogOptions{
		Changes: map[string]interface{}{"role": role},
	})
	s.events.Publish(ctx, model.EventUserRoleRemoved, map[string]interface{}{
		"user_id":    userID,
		"role":       role,
		"removed_by": actor.UserID,
	})
	return nil
}
