package crypto

import (
	"context"
	"net/http"
	"strings"

	"credreg/internal/providers"
)

const httpProviderName = "crypto"

// HTTPProvider talks to a remote cryptography provider over JSON.
type HTTPProvider struct {
	client providers.JSONClient
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	return &HTTPProvider{client: providers.JSONClient{
		Provider: httpProviderName,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   client,
	}}
}

type issueRequest struct {
	CredentialID string         `json:"credentialId"`
	SchemaID     string         `json:"schemaId"`
	IssuerDID    string         `json:"issuerDid"`
	RecipientDID string         `json:"recipientDid"`
	Claims       map[string]any `json:"claims"`
}

type issueResponse struct {
	ProofReference string `json:"proofReference"`
}

type verifyRequest struct {
	ProofReference string `json:"proofReference"`
}

type verifyResponse struct {
	Success      bool   `json:"success"`
	CredentialID string `json:"credentialId"`
}

func (p *HTTPProvider) IssueCredential(ctx context.Context, authToken string, req providers.IssueRequest) (*providers.IssueResult, error) {
	var out issueResponse
	err := p.client.Post(ctx, "issue_credential", "/credentials/issue", authToken, issueRequest{
		CredentialID: req.CredentialID.String(),
		SchemaID:     req.SchemaID.String(),
		IssuerDID:    req.IssuerDID.String(),
		RecipientDID: req.RecipientDID.String(),
		Claims:       req.Claims,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &providers.IssueResult{ProofReference: out.ProofReference}, nil
}

func (p *HTTPProvider) VerifyProof(ctx context.Context, authToken, proofReference string) (*providers.ProofResult, error) {
	var out verifyResponse
	if err := p.client.Post(ctx, "verify_proof", "/proofs/verify", authToken, verifyRequest{ProofReference: proofReference}, &out); err != nil {
		return nil, err
	}
	return &providers.ProofResult{Success: out.Success, CredentialID: out.CredentialID}, nil
}
