package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	bulkservice "credreg/internal/bulk/service"
	batchstore "credreg/internal/bulk/store/memory"
	credhandler "credreg/internal/credential/handler"
	credmodels "credreg/internal/credential/models"
	credservice "credreg/internal/credential/service"
	credstore "credreg/internal/credential/store/memory"
	"credreg/internal/issuance"
	"credreg/internal/platform/logger"
	"credreg/internal/platform/metrics"
	"credreg/internal/providers/crypto"
	"credreg/internal/providers/identity"
	ratelimit "credreg/internal/ratelimit/middleware"
	"credreg/internal/ratelimit/store/bucket"
	"credreg/internal/revocation"
	schemahandler "credreg/internal/schema/handler"
	schemaservice "credreg/internal/schema/service"
	schemastore "credreg/internal/schema/store/memory"
	"credreg/internal/verification"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/testutil"
)

// RegistryFlowSuite drives the full router over in-memory stores and the
// development providers.
type RegistryFlowSuite struct {
	suite.Suite
	router   http.Handler
	accounts *identity.ServiceAccount
}

func TestRegistryFlowSuite(t *testing.T) {
	suite.Run(t, new(RegistryFlowSuite))
}

func (s *RegistryFlowSuite) SetupTest() {
	log := logger.Discard()
	m := metrics.New()

	accounts, err := identity.New("test-signing-key", "did:x:registry", time.Minute)
	s.Require().NoError(err)
	s.accounts = accounts
	proofs, err := crypto.NewDevProvider("test-proof-secret")
	s.Require().NoError(err)

	schemas := schemaservice.New(schemastore.NewInMemory(), schemaservice.WithLogger(log))
	credentials := credstore.NewInMemory()

	orchestrator, err := issuance.New(schemas, credentials, accounts, proofs, issuance.WithLogger(log), issuance.WithMetrics(m))
	s.Require().NoError(err)
	verifier, err := verification.New(credentials, accounts, proofs, verification.WithLogger(log), verification.WithMetrics(m))
	s.Require().NoError(err)
	revoker := revocation.New(credentials, revocation.WithLogger(log), revocation.WithMetrics(m))
	bulk := bulkservice.New(orchestrator, batchstore.NewInMemory(0), bulkservice.WithLogger(log), bulkservice.WithMetrics(m))

	registry := NewHandler(orchestrator, verifier, revoker, bulk, schemas, log)
	registry.AddHealthCheck("credential_store", credentials.Health)

	s.router = NewRouter(RouterConfig{
		Registry:    registry,
		Schemas:     schemahandler.New(schemas, log),
		Credentials: credhandler.New(credservice.New(credentials), log),
		Logger:      log,
		Metrics:     m,
		Tokens:      accounts,
		Limiter:     ratelimit.New(bucket.NewInMemoryBucketStore(), log, ratelimit.WithMetrics(m)),
	})
}

func (s *RegistryFlowSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *RegistryFlowSuite) post(path string, body any) *httptest.ResponseRecorder {
	return s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
}

func (s *RegistryFlowSuite) registerCertSchema() {
	rr := s.post("/schemas", map[string]any{
		"id":      "cert",
		"name":    "Certificate",
		"version": "1.0",
		"fields":  []map[string]any{{"name": "name", "type": "string", "required": true}},
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *RegistryFlowSuite) issue(recipient string, claims map[string]any) *IssueResponse {
	rr := s.post("/issue", map[string]any{
		"schemaId":     "cert",
		"issuerDid":    "did:x:iss",
		"recipientDid": recipient,
		"claims":       claims,
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[IssueResponse](s.T(), rr)
}

func (s *RegistryFlowSuite) verify(resp *IssueResponse) *verification.Result {
	rr := s.post("/verify", map[string]any{
		"credentialId":   resp.CredentialID.String(),
		"proofReference": resp.ProofReference,
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[verification.Result](s.T(), rr)
}

func (s *RegistryFlowSuite) TestIssueVerifyRevoke() {
	s.registerCertSchema()

	issued := s.issue("did:x:1", map[string]any{"name": "Alice"})
	s.False(issued.CredentialID.IsNil())
	s.Equal(credmodels.StatusActive, issued.Record.Status)
	s.NotEmpty(issued.ProofReference)

	result := s.verify(issued)
	s.True(result.IsValid)
	s.Equal(issued.CredentialID, result.CredentialID)

	rr := s.post("/revoke", map[string]any{
		"credentialId":        issued.CredentialID.String(),
		"requestingIssuerDid": "did:x:other",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))

	rr = s.post("/revoke", map[string]any{
		"credentialId":        issued.CredentialID.String(),
		"requestingIssuerDid": "did:x:iss",
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	rr = s.post("/revoke", map[string]any{
		"credentialId":        issued.CredentialID.String(),
		"requestingIssuerDid": "did:x:iss",
	})
	s.Require().Equal(http.StatusOK, rr.Code, "second revoke is a no-op")

	result = s.verify(issued)
	s.False(result.IsValid)
	s.Equal(verification.ReasonRevoked, result.Reason)
}

func (s *RegistryFlowSuite) TestIssueRejectsInvalidClaims() {
	s.registerCertSchema()

	rr := s.post("/issue", map[string]any{
		"schemaId":     "cert",
		"issuerDid":    "did:x:iss",
		"recipientDid": "did:x:1",
		"claims":       map[string]any{"name": 42},
	})
	s.Equal(http.StatusBadRequest, rr.Code)
	resp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal(string(dErrors.CodeSchemaValidation), resp.Error)
	s.Contains(resp.Violations, "name")

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/credentials?recipientDid=did:x:1"))
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *RegistryFlowSuite) TestListingAndStats() {
	s.registerCertSchema()
	first := s.issue("did:x:1", map[string]any{"name": "Alice"})
	second := s.issue("did:x:1", map[string]any{"name": "Alice again"})

	rr := s.post("/revoke", map[string]any{"credentialId": first.CredentialID.String(), "requestingIssuerDid": "did:x:iss"})
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/credentials?recipientDid=did:x:1&includeRevoked=true"))
	s.Require().Equal(http.StatusOK, rr.Code)
	all := testutil.UnmarshalResponse[[]credmodels.Record](s.T(), rr)
	s.Require().Len(*all, 2)
	s.Equal(first.CredentialID, (*all)[0].ID)
	s.Equal(second.CredentialID, (*all)[1].ID)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/credentials?recipientDid=did:x:1"))
	active := testutil.UnmarshalResponse[[]credmodels.Record](s.T(), rr)
	s.Require().Len(*active, 1)
	s.Equal(second.CredentialID, (*active)[0].ID)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/issuers/did:x:iss/stats"))
	s.Require().Equal(http.StatusOK, rr.Code)
	stats := testutil.UnmarshalResponse[credmodels.IssuerStats](s.T(), rr)
	s.Equal(2, stats.TotalIssued)
	s.Equal(1, stats.ActiveCredentials)
	s.Equal(1, stats.RevokedCredentials)
}

func (s *RegistryFlowSuite) TestBulkIssueAndLookup() {
	s.registerCertSchema()

	rr := s.post("/bulkIssue", map[string]any{
		"schemaId":  "cert",
		"issuerDid": "did:x:iss",
		"records": []map[string]any{
			{"recipientDid": "did:x:a", "claims": map[string]any{"name": "A"}},
			{"recipientDid": "did:x:b", "claims": map[string]any{}},
			{"recipientDid": "did:x:c", "claims": map[string]any{"name": "C"}},
		},
		"options": map[string]any{"stopOnFailure": false},
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	type batchResponse struct {
		BatchID    string `json:"batchId"`
		Successful int    `json:"successful"`
		Failed     int    `json:"failed"`
		Results    []struct {
			Status string `json:"status"`
		} `json:"results"`
	}
	batch := testutil.UnmarshalResponse[batchResponse](s.T(), rr)
	s.Equal(2, batch.Successful)
	s.Equal(1, batch.Failed)
	s.Require().Len(batch.Results, 3)
	s.Equal([]string{"issued", "failed", "issued"}, []string{batch.Results[0].Status, batch.Results[1].Status, batch.Results[2].Status})

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/bulkIssue/"+batch.BatchID))
	s.Equal(http.StatusOK, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "batchId", batch.BatchID)
}

func (s *RegistryFlowSuite) TestBearerTokenIdentifiesRevoker() {
	s.registerCertSchema()
	issued := s.issue("did:x:1", map[string]any{"name": "Alice"})

	session, err := s.accounts.Mint("did:x:other", time.Minute)
	s.Require().NoError(err)
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/revoke", map[string]any{"credentialId": issued.CredentialID.String()})
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusForbidden, string(dErrors.CodeForbidden))

	session, err = s.accounts.Mint("did:x:iss", time.Minute)
	s.Require().NoError(err)
	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/revoke", map[string]any{"credentialId": issued.CredentialID.String()})
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	s.Equal(http.StatusOK, s.do(req).Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/revoke", map[string]any{"credentialId": issued.CredentialID.String()})
	req.Header.Set("Authorization", "Bearer not-a-token")
	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *RegistryFlowSuite) TestHealthAndMetrics() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	s.Equal(http.StatusOK, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "credreg_")
}
