package issuance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	credmodels "credreg/internal/credential/models"
	credstore "credreg/internal/credential/store/memory"
	"credreg/internal/providers"
	"credreg/internal/providers/mocks"
	schemamodels "credreg/internal/schema/models"
	schemaservice "credreg/internal/schema/service"
	schemastore "credreg/internal/schema/store/memory"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	audit "credreg/pkg/platform/audit"
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

type OrchestratorSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	sessions *mocks.MockSessionProvider
	crypto   *mocks.MockCryptoProvider
	ledger   *mocks.MockLedger
	store    *credstore.InMemory
	schemas  *schemaservice.Registry
	emitter  *recordingEmitter
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sessions = mocks.NewMockSessionProvider(s.ctrl)
	s.crypto = mocks.NewMockCryptoProvider(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.store = credstore.NewInMemory()
	s.schemas = schemaservice.New(schemastore.NewInMemory())
	s.emitter = &recordingEmitter{}

	_, err := s.schemas.Register(context.Background(), schemamodels.Schema{
		ID:      "cert",
		Name:    "Certificate",
		Version: "1.0",
		Fields: []schemamodels.Field{
			{Name: "name", Type: schemamodels.FieldString, Required: true},
			{Name: "score", Type: schemamodels.FieldNumber},
		},
		IsActive: true,
	})
	s.Require().NoError(err)

	s.sessions.EXPECT().Session(gomock.Any()).Return(&providers.Session{
		DID:         "did:moca:registry",
		AccessToken: "service-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil).AnyTimes()
}

func (s *OrchestratorSuite) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithAuditPublisher(s.emitter)}, opts...)
	o, err := New(s.schemas, s.store, s.sessions, s.crypto, opts...)
	s.Require().NoError(err)
	return o
}

func validRequest() Request {
	return Request{
		SchemaID:     "cert",
		IssuerDID:    "did:x:iss",
		RecipientDID: "did:x:1",
		Claims:       map[string]any{"name": "Alice"},
	}
}

func (s *OrchestratorSuite) listRecipient(did id.DID) []credmodels.Record {
	records, err := s.store.ListByRecipient(context.Background(), did, credmodels.ListFilter{IncludeRevoked: true})
	s.Require().NoError(err)
	return records
}

func (s *OrchestratorSuite) TestIssueCommitsActiveRecord() {
	s.crypto.EXPECT().
		IssueCredential(gomock.Any(), "service-token", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req providers.IssueRequest) (*providers.IssueResult, error) {
			s.Equal(id.DID("did:x:iss"), req.IssuerDID)
			s.Equal("Alice", req.Claims["name"])
			return &providers.IssueResult{ProofReference: "proof-1"}, nil
		})

	result, err := s.orchestrator().Issue(context.Background(), validRequest())
	s.Require().NoError(err)
	s.Equal(credmodels.StatusActive, result.Record.Status)
	s.False(result.Record.ID.IsNil())
	s.Equal("proof-1", result.ProofReference)

	stored, err := s.store.Get(context.Background(), result.Record.ID)
	s.Require().NoError(err)
	s.Equal(result.Record.RecipientDID, stored.RecipientDID)
	s.Equal([]audit.Action{audit.ActionCredentialIssued}, s.emitter.actions())
}

func (s *OrchestratorSuite) TestProviderFailureCommitsNothing() {
	attempted := id.NewCredentialID()
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("signer unavailable"))

	_, err := s.orchestrator(WithIDGenerator(func() id.CredentialID { return attempted })).
		Issue(context.Background(), validRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExternalService))
	s.Contains(err.Error(), "cryptography provider")

	_, getErr := s.store.Get(context.Background(), attempted)
	s.Error(getErr)
	s.Empty(s.listRecipient("did:x:1"))
	s.Equal([]audit.Action{audit.ActionIssuanceFailed}, s.emitter.actions())
}

func (s *OrchestratorSuite) TestProviderTimeoutCommitsNothing() {
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ providers.IssueRequest) (*providers.IssueResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := s.orchestrator(WithProviderTimeout(20*time.Millisecond)).Issue(context.Background(), validRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExternalService))
	s.Equal(providers.ErrorTimeout, providers.CategoryOf(err))
	s.Empty(s.listRecipient("did:x:1"))
}

func (s *OrchestratorSuite) TestSchemaViolationsPropagateWithoutProviderCall() {
	req := validRequest()
	req.Claims = map[string]any{"score": "high"}

	_, err := s.orchestrator().Issue(context.Background(), req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSchemaValidation))
	fields := dErrors.FieldsOf(err)
	s.Contains(fields, "name")
	s.Contains(fields, "score")
}

func (s *OrchestratorSuite) TestRejectsMalformedInput() {
	tests := []struct {
		name   string
		mutate func(*Request)
		code   dErrors.Code
	}{
		{"empty recipient", func(r *Request) { r.RecipientDID = "" }, dErrors.CodeValidation},
		{"malformed issuer", func(r *Request) { r.IssuerDID = "issuer" }, dErrors.CodeValidation},
		{"unknown schema", func(r *Request) { r.SchemaID = "missing" }, dErrors.CodeNotFound},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := validRequest()
			tt.mutate(&req)
			_, err := s.orchestrator().Issue(context.Background(), req)
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func (s *OrchestratorSuite) TestRepeatedIssuanceYieldsDistinctIDs() {
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&providers.IssueResult{}, nil).Times(20)

	o := s.orchestrator()
	seen := make(map[id.CredentialID]struct{})
	for range 20 {
		result, err := o.Issue(context.Background(), validRequest())
		s.Require().NoError(err)
		seen[result.Record.ID] = struct{}{}
	}
	s.Len(seen, 20)
	s.Len(s.listRecipient("did:x:1"), 20)
}

func (s *OrchestratorSuite) TestIDCollisionIsConflict() {
	fixed := id.NewCredentialID()
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&providers.IssueResult{}, nil).Times(2)

	o := s.orchestrator(WithIDGenerator(func() id.CredentialID { return fixed }))
	_, err := o.Issue(context.Background(), validRequest())
	s.Require().NoError(err)

	_, err = o.Issue(context.Background(), validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Len(s.listRecipient("did:x:1"), 1)
}

func (s *OrchestratorSuite) TestLedgerAnchoring() {
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).Return(&providers.IssueResult{}, nil)
	s.ledger.EXPECT().RecordIssuance(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, anchor providers.Anchor) (string, error) {
			s.Equal("Alice", anchor.SubjectSkill)
			s.Equal(id.DID("did:x:1"), anchor.RecipientDID)
			s.NotEmpty(anchor.SubjectID)
			return "0xabc", nil
		})

	result, err := s.orchestrator(WithLedger(s.ledger)).Issue(context.Background(), validRequest())
	s.Require().NoError(err)
	s.Equal("0xabc", result.Record.TransactionReference)
}

func (s *OrchestratorSuite) TestLedgerFailureCommitsNothing() {
	s.crypto.EXPECT().IssueCredential(gomock.Any(), gomock.Any(), gomock.Any()).Return(&providers.IssueResult{}, nil)
	s.ledger.EXPECT().RecordIssuance(gomock.Any(), gomock.Any()).Return("", errors.New("reverted"))

	_, err := s.orchestrator(WithLedger(s.ledger)).Issue(context.Background(), validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeExternalService))
	s.Contains(err.Error(), "ledger")
	s.Empty(s.listRecipient("did:x:1"))
}

func (s *OrchestratorSuite) TestSessionFailureIsExternal() {
	sessions := mocks.NewMockSessionProvider(s.ctrl)
	sessions.EXPECT().Session(gomock.Any()).Return(nil, providers.ErrNotAuthenticated)
	sessions.EXPECT().Login(gomock.Any()).Return(nil, errors.New("identity down"))

	o, err := New(s.schemas, s.store, sessions, s.crypto)
	s.Require().NoError(err)
	_, err = o.Issue(context.Background(), validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeExternalService))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected construction error")
	}
}
