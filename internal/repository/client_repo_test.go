package repository

import (
	"context"
	"testing"

	"rifas/internal/model"
	"rifas/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLookup(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	nationalID := "1020304050"
	client := &model.Client{Name: "Ana", Phone: "3001234567", NationalID: &nationalID}
	require.NoError(t, repo.Create(ctx, nil, client))

	found, err := repo.FindByPhone(ctx, nil, " 3001234567 ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, client.ID, found.ID)

	found, err = repo.FindByNationalID(ctx, db, nationalID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, client.ID, found.ID)

	found, err = repo.FindByPhone(ctx, nil, "3119999999")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.FindByNationalID(ctx, nil, "")
	require.NoError(t, err)
	assert.Nil(t, found)

	// 手机号唯一，重复建档可重试
	dup := &model.Client{Name: "Otra", Phone: "3001234567"}
	err = repo.Create(ctx, nil, dup)
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.True(t, model.IsRetryable(err))

	dupID := &model.Client{Name: "Otra", Phone: "3005550000", NationalID: &nationalID}
	assert.ErrorIs(t, repo.Create(ctx, db, dupID), model.ErrBusy)
}
