package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credreg/internal/schema/models"
	"credreg/internal/schema/store/memory"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
	"credreg/pkg/requestcontext"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
	emitter  *recordingEmitter
	ctx      context.Context
	now      time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.emitter = &recordingEmitter{}
	s.registry = New(memory.NewInMemory(), WithAuditPublisher(s.emitter))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func certSchema() models.Schema {
	return models.Schema{
		ID:       "cert",
		Name:     "Certificate",
		Version:  "1.0",
		IsActive: true,
		Fields:   []models.Field{{Name: "name", Type: models.FieldString, Required: true}},
	}
}

func (s *RegistrySuite) TestRegister() {
	s.Run("publishes and stamps timestamps", func() {
		schema, err := s.registry.Register(s.ctx, certSchema())
		s.Require().NoError(err)
		s.Equal(s.now, schema.CreatedAt)
		s.Equal([]audit.Action{audit.ActionSchemaPublished}, s.emitter.actions())
	})

	s.Run("duplicate id is a conflict", func() {
		_, err := s.registry.Register(s.ctx, certSchema())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid definition is a validation error", func() {
		bad := certSchema()
		bad.ID = "other"
		bad.Fields[0].Type = "blob"
		_, err := s.registry.Register(s.ctx, bad)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistrySuite) TestGet() {
	_, err := s.registry.Register(s.ctx, certSchema())
	s.Require().NoError(err)

	s.Run("unknown id is not found", func() {
		_, err := s.registry.Get(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive schema is not found", func() {
		_, err := s.registry.SetActive(s.ctx, "cert", false)
		s.Require().NoError(err)

		_, err = s.registry.Get(s.ctx, "cert")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		described, err := s.registry.Describe(s.ctx, "cert")
		s.Require().NoError(err)
		s.False(described.IsActive)
	})
}

func (s *RegistrySuite) TestValidate() {
	_, err := s.registry.Register(s.ctx, certSchema())
	s.Require().NoError(err)

	s.Run("satisfying claims pass", func() {
		s.NoError(s.registry.Validate(s.ctx, "cert", models.Claims{"name": "Alice"}))
	})

	s.Run("missing required field is reported", func() {
		err := s.registry.Validate(s.ctx, "cert", models.Claims{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeSchemaValidation))
		s.Equal("required field is missing", dErrors.FieldsOf(err)["name"])
	})

	s.Run("unknown schema is not found", func() {
		err := s.registry.Validate(s.ctx, "nope", models.Claims{"name": "Alice"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrySuite) TestSetActiveRecordsHistory() {
	_, err := s.registry.Register(s.ctx, certSchema())
	s.Require().NoError(err)

	_, err = s.registry.SetActive(s.ctx, "cert", false)
	s.Require().NoError(err)
	_, err = s.registry.SetActive(s.ctx, "cert", false)
	s.Require().NoError(err)
	_, err = s.registry.SetActive(s.ctx, "cert", true)
	s.Require().NoError(err)

	history, err := s.registry.History(s.ctx, "cert")
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(models.HistoryPublished, history[0].Action)
	s.Equal(models.HistoryDeactivated, history[1].Action)
	s.Equal(models.HistoryActivated, history[2].Action)

	s.Equal([]audit.Action{
		audit.ActionSchemaPublished,
		audit.ActionSchemaDeactivated,
		audit.ActionSchemaActivated,
	}, s.emitter.actions())

	_, err = s.registry.SetActive(s.ctx, "missing", true)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.registry.History(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistrySuite) TestSeedIsIdempotent() {
	s.Require().NoError(s.registry.Seed(s.ctx, models.Predefined()))
	s.Require().NoError(s.registry.Seed(s.ctx, models.Predefined()))

	list, err := s.registry.List(s.ctx, false)
	s.Require().NoError(err)
	s.Len(list, 3)
}

func (s *RegistrySuite) TestListFiltersInactive() {
	s.Require().NoError(s.registry.Seed(s.ctx, models.Predefined()))
	_, err := s.registry.SetActive(s.ctx, "web3-bootcamp", false)
	s.Require().NoError(err)

	active, err := s.registry.List(s.ctx, false)
	s.Require().NoError(err)
	s.Len(active, 2)

	all, err := s.registry.List(s.ctx, true)
	s.Require().NoError(err)
	s.Len(all, 3)
}
