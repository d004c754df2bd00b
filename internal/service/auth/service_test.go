package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/pkg/auth"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/security"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Users(),
		auth.NewJWTService("test-secret", "hmis-test", time.Hour),
		security.NewBcryptHasher(bcrypt.MinCost),
		audit.NewService(store.Audit(), zerolog.Nop()),
		zerolog.Nop())
	return svc, store
}

func TestService_LoginAndValidate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: " Nurse@Example.com ", Name: "Asha", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "nurse@example.com", user.Email)

	tokens, err := svc.Login(ctx, "nurse@example.com", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)

	claims, err := svc.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "nurse@example.com", claims.Email)

	var logins int
	for _, e := range store.AuditEntries() {
		if e.Action == model.AuditActionLogin {
			logins++
		}
	}
	assert.Equal(t, 1, logins)

	_, err = svc.ValidateToken(ctx, "garbage")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestService_LoginFailures(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "short@example.com", Password: "short"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestService_CreateUserDuplicateEmail(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	admin := uuid.New()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: "nurse@example.com", Password: "correct-horse", CreatedBy: admin})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: " NURSE@example.com", Password: "another-horse", CreatedBy: admin})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	var created []model.AuditLog
	for _, e := range store.AuditEntries() {
		if e.Action == model.AuditActionCreate && e.EntityType == model.AuditEntityUser {
			created = append(created, e)
		}
	}
	require.Len(t, created, 1)
	assert.Equal(t, admin, created[0].UserID)
	assert.Equal(t, user.ID.String(), created[0].EntityID)
}

func TestService_Lockout(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.CreateUser(ctx, CreateUserRequest{Email: "doc@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(ctx, "doc@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = svc.Login(ctx, "doc@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(lockoutDuration + time.Second)
	_, err = svc.Login(ctx, "doc@example.com", "correct-horse")
	assert.NoError(t, err)
}
