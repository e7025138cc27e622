package crypto

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/providers"
	id "credreg/pkg/domain"
)

func issueRequest(credentialID id.CredentialID) providers.IssueRequest {
	return providers.IssueRequest{
		CredentialID: credentialID,
		SchemaID:     "cert",
		IssuerDID:    "did:x:iss",
		RecipientDID: "did:x:1",
		Claims:       map[string]any{"name": "Alice"},
	}
}

func TestDevProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewDevProvider("secret")
	require.NoError(t, err)

	credentialID := id.NewCredentialID()
	issued, err := p.IssueCredential(ctx, "token", issueRequest(credentialID))
	require.NoError(t, err)
	require.NotEmpty(t, issued.ProofReference)

	for range 2 {
		result, err := p.VerifyProof(ctx, "token", issued.ProofReference)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, credentialID.String(), result.CredentialID)
	}
}

func TestDevProviderRejectsForeignProof(t *testing.T) {
	ctx := context.Background()
	p, err := NewDevProvider("secret")
	require.NoError(t, err)
	other, err := NewDevProvider("other-secret")
	require.NoError(t, err)

	issued, err := other.IssueCredential(ctx, "token", issueRequest(id.NewCredentialID()))
	require.NoError(t, err)

	result, err := p.VerifyProof(ctx, "token", issued.ProofReference)
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = p.VerifyProof(ctx, "token", "not-a-proof")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestDevProviderRequiresToken(t *testing.T) {
	p, err := NewDevProvider("secret")
	require.NoError(t, err)
	_, err = p.IssueCredential(context.Background(), "", issueRequest(id.NewCredentialID()))
	assert.Equal(t, providers.ErrorAuthentication, providers.CategoryOf(err))
}

func TestHTTPProvider(t *testing.T) {
	credentialID := id.NewCredentialID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/credentials/issue":
			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, credentialID.String(), in["credentialId"])
			_ = json.NewEncoder(w).Encode(map[string]string{"proofReference": "proof-1"})
		case "/proofs/verify":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "credentialId": credentialID.String()})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", srv.Client())
	issued, err := p.IssueCredential(context.Background(), "tok", issueRequest(credentialID))
	require.NoError(t, err)
	assert.Equal(t, "proof-1", issued.ProofReference)

	result, err := p.VerifyProof(context.Background(), "tok", "proof-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, credentialID.String(), result.CredentialID)
}
