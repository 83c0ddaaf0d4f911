package repository

import (
	"context"
	"testing"

	"rifas/internal/model"
	"rifas/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestOutboxLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	first := &model.OutboxMessage{MessageKey: "a", Topic: "t", EventType: model.EventSaleBooked, Payload: datatypes.JSON(`{}`), Status: model.OutboxStatusPending}
	second := &model.OutboxMessage{MessageKey: "b", Topic: "t", EventType: model.EventSaleBooked, Payload: datatypes.JSON(`{}`), Status: model.OutboxStatusPending}
	require.NoError(t, repo.Create(ctx, nil, first))
	require.NoError(t, repo.Create(ctx, nil, second))

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].MessageKey)

	require.NoError(t, repo.MarkAsSent(ctx, first.ID))

	exhausted, err := repo.RecordFailure(ctx, second, 2)
	require.NoError(t, err)
	assert.False(t, exhausted)

	second.RetryCount = 1
	exhausted, err = repo.RecordFailure(ctx, second, 2)
	require.NoError(t, err)
	assert.True(t, exhausted)

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
