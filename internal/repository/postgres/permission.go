package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type permissionRepository struct {
	BaseRepository
}

func NewPermissionRepository(base BaseRepository) repository.PermissionRepository {
	return &permissionRepository{base}
}

const permissionColumns = `id, role, module, can_view, can_create, can_edit, can_delete, created_at, updated_at`

func (r *permissionRepository) ListByRoles(ctx context.Context, roles []model.Role) ([]*model.RolePermission, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+permissionColumns+` FROM role_permissions WHERE role IN (?) ORDER BY role, module`, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to build permission query: %w", err)
	}

	var perms []*model.RolePermission
	if err := r.db.SelectContext(ctx, &perms, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return perms, nil
}

func (r *permissionRepository) ListAll(ctx context.Context) ([]*model.RolePermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM role_permissions ORDER BY role, module`

	var perms []*model.RolePermission
	if err := r.db.SelectContext(ctx, &perms, query); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return perms, nil
}

func (r *permissionRepository) Get(ctx context.Context, role model.Role, module model.Module) (*model.RolePermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM role_permissions WHERE role = $1 AND module = $2`

	var perm model.RolePermission
	if err := r.db.GetContext(ctx, &perm, query, role, module); err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", notFound(err))
	}
	return &perm, nil
}

func (r *permissionRepository) Upsert(ctx context.Context, perm *model.RolePermission) error {
	query := `
		INSERT INTO role_permissions (` + permissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (role, module) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_create = EXCLUDED.can_create,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	now := time.Now()

	row := r.db.QueryRowxContext(ctx, query,
		perm.ID,
		perm.Role,
		perm.Module,
		perm.CanView,
		perm.CanCreate,
		perm.CanEdit,
		perm.CanDelete,
		now,
	)
	if err := row.Scan(&perm.ID, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

func (r *permissionRepository) Delete(ctx context.Context, role model.Role, module model.Module) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = $1 AND module = $2`, role, module)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
