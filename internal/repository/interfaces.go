package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDoseNotOpen is returned when a dose transition loses the status check.
	ErrDoseNotOpen = errors.New("dose is not pending or due")
	// ErrDuplicate is returned when a write collides with a unique key.
	ErrDuplicate = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
	}

	// RoleRepository stores role assignments. Assignments are added or removed,
	// never edited.
	RoleRepository interface {
		ListUserRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error)
		AssignRole(ctx context.Context, assignment *model.UserRole) error
		RemoveRole(ctx context.Context, userID uuid.UUID, role model.Role) error
	}

	PermissionRepository interface {
		ListByRoles(ctx context.Context, roles []model.Role) ([]*model.RolePermission, error)
		ListAll(ctx context.Context) ([]*model.RolePermission, error)
		Get(ctx context.Context, role model.Role, module model.Module) (*model.RolePermission, error)
		Upsert(ctx context.Context, perm *model.RolePermission) error
		Delete(ctx context.Context, role model.Role, module model.Module) error
	}

	PrescriptionRepository interface {
		GetItem(ctx context.Context, id uuid.UUID) (*model.PrescriptionItem, error)
	}

	DoseRepository interface {
		// InsertBatch inserts doses, ignoring any that collide on
		// (prescription_item_id, scheduled_time). It returns the number inserted.
		InsertBatch(ctx context.Context, doses []*model.ScheduledDose) (int, error)
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduledDose, error)
		// List returns doses ordered by scheduled time ascending.
		List(ctx context.Context, filters *model.DoseFilters) ([]*model.ScheduledDose, error)
		// RecordAdministration moves an open dose to administered and appends the
		// log row in one transaction. ErrDoseNotOpen leaves both untouched.
		RecordAdministration(ctx context.Context, rec *model.AdministrationRecord) (*model.ScheduledDose, *model.MedicationAdministrationLog, error)
		// Skip moves an open dose to skipped with reason as its notes. No
		// administration log row is written.
		Skip(ctx context.Context, doseID uuid.UUID, reason string, at time.Time) (*model.ScheduledDose, error)
		CancelOpen(ctx context.Context, itemID uuid.UUID, at time.Time) (int, error)
		// MarkDue moves pending doses scheduled at or before asOf to due and
		// returns them.
		MarkDue(ctx context.Context, asOf time.Time) ([]*model.ScheduledDose, error)
	}

	AdministrationLogRepository interface {
		// List returns log rows newest first.
		List(ctx context.Context, filters *model.AdministrationLogFilters) ([]*model.MedicationAdministrationLog, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending leases up to limit pending or retryable events so that
		// concurrent processors do not pick the same rows.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	ReminderLogRepository interface {
		Create(ctx context.Context, log *model.ReminderLog) error
	}
)
