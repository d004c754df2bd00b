package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/internal/service/event"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
)

type countingCache struct{ n int }

func (c *countingCache) Invalidate() { c.n++ }

func newService(t *testing.T) (*Service, *memory.Store, *countingCache) {
	t.Helper()
	store := memory.NewStore()
	cache := &countingCache{}
	svc := NewService(store.Permissions(), store.Roles(),
		audit.NewService(store.Audit(), zerolog.Nop()),
		event.NewEventService(store.Outbox(), zerolog.Nop()),
		cache)
	return svc, store, cache
}

func TestService_UpsertPermission(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()
	actor := uuid.New()

	perm := &model.RolePermission{Role: model.RoleNurse, Module: model.ModulePatients, CanView: true}
	require.NoError(t, svc.UpsertPermission(ctx, actor, perm))

	got, err := svc.GetPermission(ctx, model.RoleNurse, model.ModulePatients)
	require.NoError(t, err)
	assert.True(t, got.CanView)
	assert.False(t, got.CanCreate)

	assert.Equal(t, 1, cache.n)
	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "nurse/patients", entries[0].EntityID)
	assert.Equal(t, actor, entries[0].UserID)
	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRolePermissionChanged, events[0].EventType)
}

func TestService_RejectsInvalidAndAdmin(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()

	err := svc.UpsertPermission(ctx, uuid.New(), &model.RolePermission{Role: model.RoleAdmin, Module: model.ModuleBilling})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
	assert.ErrorIs(t, err, ErrAdminImmutable)

	err = svc.DeletePermission(ctx, uuid.New(), model.RoleAdmin, model.ModuleBilling)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	err = svc.UpsertPermission(ctx, uuid.New(), &model.RolePermission{Role: "janitor", Module: model.ModuleBilling})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	err = svc.UpsertPermission(ctx, uuid.New(), &model.RolePermission{Role: model.RoleNurse, Module: "canteen"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	assert.Zero(t, cache.n)
	assert.Empty(t, store.AuditEntries())
	assert.Empty(t, store.OutboxEvents())
}

func TestService_DeletePermission(t *testing.T) {
	svc, _, cache := newService(t)
	ctx := context.Background()

	err := svc.DeletePermission(ctx, uuid.New(), model.RoleNurse, model.ModulePatients)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	require.NoError(t, svc.UpsertPermission(ctx, uuid.New(), &model.RolePermission{Role: model.RoleNurse, Module: model.ModulePatients, CanView: true}))
	require.NoError(t, svc.DeletePermission(ctx, uuid.New(), model.RoleNurse, model.ModulePatients))
	assert.Equal(t, 2, cache.n)

	_, err = svc.GetPermission(ctx, model.RoleNurse, model.ModulePatients)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestService_Roles(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()
	user := uuid.New()
	admin := authz.Ready(uuid.New(), "admin@example.com", model.RoleAdmin)

	require.NoError(t, svc.AssignRole(ctx, admin, user, model.RoleNurse))
	require.NoError(t, svc.AssignRole(ctx, admin, user, model.RoleDoctor))
	roles, err := svc.ListUserRoles(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Role{model.RoleNurse, model.RoleDoctor}, roles)

	require.NoError(t, svc.RemoveRole(ctx, admin, user, model.RoleNurse))
	roles, err = svc.ListUserRoles(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleDoctor}, roles)

	err = svc.RemoveRole(ctx, admin, user, model.RoleNurse)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	err = svc.AssignRole(ctx, admin, user, "janitor")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	assert.Equal(t, 3, cache.n)
	assert.Len(t, store.OutboxEvents(), 3)

	var assigned int
	for _, e := range store.AuditEntries() {
		if e.Action == model.AuditActionAssignRole && e.UserID == admin.UserID {
			assigned++
		}
	}
	assert.Equal(t, 2, assigned)
}

func TestService_RolesRequireAdmin(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()
	self := uuid.New()
	require.NoError(t, store.Roles().AssignRole(ctx, &model.UserRole{UserID: self, Role: model.RoleNurse}))

	tests := []struct {
		name  string
		actor authz.Principal
	}{
		{"nurse", authz.Ready(self, "nurse@example.com", model.RoleNurse)},
		{"no roles", authz.Ready(self, "nurse@example.com")},
		{"loading", authz.Loading(self, "nurse@example.com")},
		{"failed", authz.Failed(self, "nurse@example.com", errors.New("timeout"))},
		{"anonymous", authz.Uninitialized()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AssignRole(ctx, tt.actor, self, model.RoleAdmin)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
			assert.ErrorIs(t, err, ErrAdminRequired)

			err = svc.RemoveRole(ctx, tt.actor, self, model.RoleNurse)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
		})
	}

	roles, err := svc.ListUserRoles(ctx, self)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleNurse}, roles)
	assert.Zero(t, cache.n)
	assert.Empty(t, store.OutboxEvents())
}

func TestService_StoreUnavailable(t *testing.T) {
	svc, store, _ := newService(t)
	store.FailWith = errors.New("connection refused")

	_, err := svc.ListPermissions(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnavailable))
}

func TestService_SeedDefaultsIdempotent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	created, err := svc.SeedDefaults(ctx, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPermissions()), created)

	// an edited row survives a reseed
	require.NoError(t, svc.UpsertPermission(ctx, uuid.Nil, &model.RolePermission{Role: model.RoleNurse, Module: model.ModulePatients}))
	created, err = svc.SeedDefaults(ctx, uuid.Nil)
	require.NoError(t, err)
	assert.Zero(t, created)

	got, err := svc.GetPermission(ctx, model.RoleNurse, model.ModulePatients)
	require.NoError(t, err)
	assert.False(t, got.CanView)

	for _, p := range DefaultPermissions() {
		assert.NotEqual(t, model.RoleAdmin, p.Role)
	}
}
