//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credreg/internal/credential/models"
	"credreg/internal/credential/store/postgres"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
	"credreg/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background(), "credentials"))
}

func (s *PostgresStoreSuite) record(recipient string) models.Record {
	return models.Record{
		ID:           id.NewCredentialID(),
		SchemaID:     "cert",
		IssuerDID:    "did:x:iss",
		RecipientDID: id.DID(recipient),
		Claims:       models.Claims{"name": "Alice", "score": 92.5},
		IssuedAt:     time.Now().UTC().Truncate(time.Microsecond),
		Status:       models.StatusActive,
	}
}

func (s *PostgresStoreSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	record := s.record("did:x:1")
	record.TransactionReference = "0xabc"
	s.Require().NoError(s.store.Put(ctx, record))

	got, err := s.store.Get(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)
	s.Equal(record.IssuedAt, got.IssuedAt)
	s.Equal("Alice", got.Claims["name"])
	s.Equal(92.5, got.Claims["score"])
	s.Equal("0xabc", got.TransactionReference)

	s.ErrorIs(s.store.Put(ctx, record), sentinel.ErrConflict)

	_, err = s.store.Get(ctx, id.NewCredentialID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListingsFollowCommitOrder() {
	ctx := context.Background()
	var ids []id.CredentialID
	for range 3 {
		r := s.record("did:x:1")
		s.Require().NoError(s.store.Put(ctx, r))
		ids = append(ids, r.ID)
	}
	_, changed, err := s.store.SetStatus(ctx, ids[0], models.StatusRevoked)
	s.Require().NoError(err)
	s.True(changed)

	active, err := s.store.ListByRecipient(ctx, "did:x:1", models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(ids[1], active[0].ID)
	s.Equal(ids[2], active[1].ID)

	all, err := s.store.ListByRecipient(ctx, "did:x:1", models.ListFilter{IncludeRevoked: true})
	s.Require().NoError(err)
	s.Len(all, 3)

	issued, err := s.store.ListByIssuer(ctx, "did:x:iss")
	s.Require().NoError(err)
	s.Len(issued, 3)
}

func (s *PostgresStoreSuite) TestSetStatusOneWay() {
	ctx := context.Background()
	record := s.record("did:x:1")
	s.Require().NoError(s.store.Put(ctx, record))

	_, changed, err := s.store.SetStatus(ctx, record.ID, models.StatusRevoked)
	s.Require().NoError(err)
	s.True(changed)

	got, changed, err := s.store.SetStatus(ctx, record.ID, models.StatusRevoked)
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(models.StatusRevoked, got.Status)

	_, _, err = s.store.SetStatus(ctx, record.ID, models.StatusActive)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, _, err = s.store.SetStatus(ctx, id.NewCredentialID(), models.StatusRevoked)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
