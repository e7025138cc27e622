package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/credential/models"
	"credreg/internal/credential/store/memory"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

func put(t *testing.T, store Store, schemaID id.SchemaID, recipient id.DID) models.Record {
	t.Helper()
	r := models.Record{
		ID:           id.NewCredentialID(),
		SchemaID:     schemaID,
		IssuerDID:    "did:x:iss",
		RecipientDID: recipient,
		Claims:       models.Claims{},
		IssuedAt:     time.Now(),
		Status:       models.StatusActive,
	}
	require.NoError(t, store.Put(context.Background(), r))
	return r
}

func TestGetTranslatesNotFound(t *testing.T) {
	svc := New(memory.NewInMemory())
	_, err := svc.Get(context.Background(), id.NewCredentialID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestIssuerStats(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	svc := New(store)

	put(t, store, "web3-bootcamp", "did:x:1")
	put(t, store, "web3-bootcamp", "did:x:2")
	revoked := put(t, store, "professional-cert", "did:x:1")
	put(t, store, "project-verification", "did:x:3")
	_, _, err := store.SetStatus(ctx, revoked.ID, models.StatusRevoked)
	require.NoError(t, err)

	stats, err := svc.IssuerStats(ctx, "did:x:iss")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalIssued)
	assert.Equal(t, 3, stats.ActiveCredentials)
	assert.Equal(t, 1, stats.RevokedCredentials)
	assert.Equal(t, []models.SchemaCount{
		{SchemaID: "web3-bootcamp", Count: 2},
		{SchemaID: "professional-cert", Count: 1},
		{SchemaID: "project-verification", Count: 1},
	}, stats.PopularSchemas)
}

func TestIssuerStatsForUnknownIssuer(t *testing.T) {
	stats, err := New(memory.NewInMemory()).IssuerStats(context.Background(), "did:x:nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalIssued)
	assert.Empty(t, stats.PopularSchemas)
}
