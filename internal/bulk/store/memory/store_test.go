package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/bulk/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
)

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(2)
	result := models.Result{BatchID: id.NewBatchID(), Results: []models.Record{{Index: 0, Status: models.StatusIssued}}}
	require.NoError(t, store.Save(ctx, result))
	assert.ErrorIs(t, store.Save(ctx, result), sentinel.ErrConflict)

	got, err := store.Get(ctx, result.BatchID)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)

	got.Results[0].Status = models.StatusFailed
	again, err := store.Get(ctx, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIssued, again.Results[0].Status)
}

func TestResultClaimsAreNotShared(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(2)
	credentialID := id.NewCredentialID()
	tags := []any{"go"}
	result := models.Result{BatchID: id.NewBatchID(), Results: []models.Record{{
		Index:        0,
		Claims:       map[string]any{"technologies": tags},
		Status:       models.StatusIssued,
		CredentialID: &credentialID,
	}}}
	require.NoError(t, store.Save(ctx, result))
	tags[0] = "changed-by-caller"

	got, err := store.Get(ctx, result.BatchID)
	require.NoError(t, err)
	got.Results[0].Claims["technologies"].([]any)[0] = "changed-by-reader"
	*got.Results[0].CredentialID = id.NewCredentialID()

	again, err := store.Get(ctx, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, []any{"go"}, again.Results[0].Claims["technologies"])
	assert.Equal(t, credentialID, *again.Results[0].CredentialID)
}

func TestEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(2)
	first := models.Result{BatchID: id.NewBatchID()}
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, models.Result{BatchID: id.NewBatchID()}))
	require.NoError(t, store.Save(ctx, models.Result{BatchID: id.NewBatchID()}))

	_, err := store.Get(ctx, first.BatchID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
