// Package memory holds single-process implementations of the repository
// interfaces. Every method takes the store lock, so dose transitions are
// compare-and-set just like the conditional updates in postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type doseKey struct {
	itemID uuid.UUID
	at     int64
}

type Store struct {
	mu sync.Mutex

	users       map[uuid.UUID]*model.User
	userRoles   map[uuid.UUID]map[model.Role]*model.UserRole
	permissions map[model.Role]map[model.Module]*model.RolePermission
	items       map[uuid.UUID]*model.PrescriptionItem
	doses       map[uuid.UUID]*model.ScheduledDose
	doseIndex   map[doseKey]uuid.UUID
	adminLog    []*model.MedicationAdministrationLog
	audit       []*model.AuditLog
	outbox      []*model.OutboxEvent
	reminders   []*model.ReminderLog

	// FailWith, when set, is returned by every call. Tests use it to simulate
	// an unavailable store.
	FailWith error
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*model.User),
		userRoles:   make(map[uuid.UUID]map[model.Role]*model.UserRole),
		permissions: make(map[model.Role]map[model.Module]*model.RolePermission),
		items:       make(map[uuid.UUID]*model.PrescriptionItem),
		doses:       make(map[uuid.UUID]*model.ScheduledDose),
		doseIndex:   make(map[doseKey]uuid.UUID),
	}
}

func (s *Store) Users() repository.UserRepository                 { return (*userRepo)(s) }
func (s *Store) Roles() repository.RoleRepository                 { return (*roleRepo)(s) }
func (s *Store) Permissions() repository.PermissionRepository     { return (*permissionRepo)(s) }
func (s *Store) Prescriptions() repository.PrescriptionRepository { return (*prescriptionRepo)(s) }
func (s *Store) Doses() repository.DoseRepository                 { return (*doseRepo)(s) }
func (s *Store) AdministrationLog() repository.AdministrationLogRepository {
	return (*adminLogRepo)(s)
}
func (s *Store) Audit() repository.AuditRepository             { return (*auditRepo)(s) }
func (s *Store) Outbox() repository.OutboxRepository           { return (*outboxRepo)(s) }
func (s *Store) ReminderLog() repository.ReminderLogRepository { return (*reminderRepo)(s) }

// PutItem seeds a prescription item.
func (s *Store) PutItem(item *model.PrescriptionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
}

// AdministrationLogLen returns the number of log rows, for tests.
func (s *Store) AdministrationLogLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.adminLog)
}

// AuditEntries returns a copy of the generic audit trail, for tests.
func (s *Store) AuditEntries() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditLog, len(s.audit))
	for i, a := range s.audit {
		out[i] = *a
	}
	return out
}

// OutboxEvents returns a copy of the outbox, for tests.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEvent, len(s.outbox))
	for i, e := range s.outbox {
		out[i] = *e
	}
	return out
}

// ReminderLogs returns a copy of the reminder log, for tests.
func (s *Store) ReminderLogs() []model.ReminderLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReminderLog, len(s.reminders))
	for i, r := range s.reminders {
		out[i] = *r
	}
	return out
}

func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if s.FailWith != nil {
		err := s.FailWith
		s.mu.Unlock()
		return nil, err
	}
	return s.mu.Unlock, nil
}

// users

type userRepo Store

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

// roles

type roleRepo Store

func (r *roleRepo) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	roles := make([]model.Role, 0, len(r.userRoles[userID]))
	for role := range r.userRoles[userID] {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

func (r *roleRepo) AssignRole(ctx context.Context, assignment *model.UserRole) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	if r.userRoles[assignment.UserID] == nil {
		r.userRoles[assignment.UserID] = make(map[model.Role]*model.UserRole)
	}
	if _, ok := r.userRoles[assignment.UserID][assignment.Role]; ok {
		return nil
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now()
	}
	cp := *assignment
	r.userRoles[assignment.UserID][assignment.Role] = &cp
	return nil
}

func (r *roleRepo) RemoveRole(ctx context.Context, userID uuid.UUID, role model.Role) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.userRoles[userID][role]; !ok {
		return repository.ErrNotFound
	}
	delete(r.userRoles[userID], role)
	return nil
}

// permissions

type permissionRepo Store

func (r *permissionRepo) ListByRoles(ctx context.Context, roles []model.Role) ([]*model.RolePermission, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.RolePermission
	for _, role := range model.NewRoleSet(roles...).Slice() {
		out = append(out, sortedPermissions(r.permissions[role])...)
	}
	return out, nil
}

func (r *permissionRepo) ListAll(ctx context.Context) ([]*model.RolePermission, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	roles := make([]model.Role, 0, len(r.permissions))
	for role := range r.permissions {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	var out []*model.RolePermission
	for _, role := range roles {
		out = append(out, sortedPermissions(r.permissions[role])...)
	}
	return out, nil
}

func sortedPermissions(byModule map[model.Module]*model.RolePermission) []*model.RolePermission {
	out := make([]*model.RolePermission, 0, len(byModule))
	for _, p := range byModule {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}

func (r *permissionRepo) Get(ctx context.Context, role model.Role, module model.Module) (*model.RolePermission, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := r.permissions[role][module]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *permissionRepo) Upsert(ctx context.Context, perm *model.RolePermission) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	now := time.Now()
	if r.permissions[perm.Role] == nil {
		r.permissions[perm.Role] = make(map[model.Module]*model.RolePermission)
	}
	if existing, ok := r.permissions[perm.Role][perm.Module]; ok {
		perm.ID = existing.ID
		perm.CreatedAt = existing.CreatedAt
	} else {
		if perm.ID == uuid.Nil {
			perm.ID = uuid.New()
		}
		perm.CreatedAt = now
	}
	perm.UpdatedAt = now
	cp := *perm
	r.permissions[perm.Role][perm.Module] = &cp
	return nil
}

func (r *permissionRepo) Delete(ctx context.Context, role model.Role, module model.Module) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.permissions[role][module]; !ok {
		return repository.ErrNotFound
	}
	delete(r.permissions[role], module)
	return nil
}

// prescriptions

type prescriptionRepo Store

func (r *prescriptionRepo) GetItem(ctx context.Context, id uuid.UUID) (*model.PrescriptionItem, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *item
	return &cp, nil
}
