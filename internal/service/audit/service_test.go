package audit

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
)

func TestService_Log(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Audit(), zerolog.Nop())
	userID := uuid.New()

	ctx := WithClient(context.Background(), "10.0.0.1", "curl/8")
	err := svc.Log(ctx, userID, model.AuditActionUpdate, model.AuditEntityRolePermission, "nurse/patients", &LogOptions{
		Changes: map[string]bool{"can_view": true},
	})
	require.NoError(t, err)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, userID, entries[0].UserID)
	assert.Equal(t, "nurse/patients", entries[0].EntityID)
	assert.JSONEq(t, `{"can_view":true}`, string(entries[0].Changes))
	assert.Nil(t, entries[0].Metadata)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
	assert.Equal(t, "curl/8", entries[0].UserAgent)
}

func TestService_RecordSwallowsStoreError(t *testing.T) {
	store := memory.NewStore()
	store.FailWith = errors.New("down")
	svc := NewService(store.Audit(), zerolog.Nop())

	assert.Error(t, svc.Log(context.Background(), uuid.New(), "x", "y", "z", nil))
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), uuid.New(), "x", "y", "z", nil)
	})
}

func TestService_List(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Audit(), zerolog.Nop())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, svc.Log(ctx, a, model.AuditActionSkip, model.AuditEntityScheduledDose, uuid.NewString(), nil))
	require.NoError(t, svc.Log(ctx, b, model.AuditActionCancel, model.AuditEntityPrescription, uuid.NewString(), nil))

	logs, total, err := svc.List(ctx, &model.AuditFilters{UserID: &a})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionSkip, logs[0].Action)
}
