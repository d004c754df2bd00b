package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	base, mock := setupMock(t)
	repo := NewUserRepository(base)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &model.User{Email: "nurse@example.com", Status: model.UserStatusActive})
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestUserRepository_CreateOtherErrorsPassThrough(t *testing.T) {
	base, mock := setupMock(t)
	repo := NewUserRepository(base)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &model.User{Email: "nurse@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicate)

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Create(context.Background(), &model.User{Email: "doctor@example.com"}))
}
