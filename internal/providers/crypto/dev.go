// Package crypto holds the cryptography provider adapters: a self-contained
// development provider that signs JWT proofs, and an HTTP client for a
// remote provider.
package crypto

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"credreg/internal/providers"
	id "credreg/pkg/domain"
)

const (
	devProviderName = "dev-crypto"
	proofIssuer     = "credreg-dev-crypto"
)

// ProofClaims are the claims of a development proof token. Subject is the
// credential id.
type ProofClaims struct {
	SchemaID     string `json:"schema_id"`
	RecipientDID string `json:"recipient_did"`
	IssuerDID    string `json:"issuer_did"`
	jwt.RegisteredClaims
}

// DevProvider issues "credentials" by signing a proof token with a key
// derived from a shared secret. Proofs carry no expiry so verifying the same
// proof always gives the same answer.
type DevProvider struct {
	key []byte
}

// NewDevProvider derives the proof signing key from secret with HKDF-SHA256.
func NewDevProvider(secret string) (*DevProvider, error) {
	if secret == "" {
		return nil, errors.New("crypto: dev provider secret is required")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("credreg dev proof signing key"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return &DevProvider{key: key}, nil
}

func (p *DevProvider) IssueCredential(ctx context.Context, authToken string, req providers.IssueRequest) (*providers.IssueResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if authToken == "" {
		return nil, providers.NewProviderError(providers.ErrorAuthentication, devProviderName, "issue_credential", "missing access token", nil)
	}
	if req.CredentialID.IsNil() {
		return nil, providers.NewProviderError(providers.ErrorBadData, devProviderName, "issue_credential", "credential id is required", nil)
	}
	proof, err := p.MintProof(req.CredentialID, req.SchemaID, req.IssuerDID, req.RecipientDID)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, devProviderName, "issue_credential", "sign proof", err)
	}
	return &providers.IssueResult{ProofReference: proof}, nil
}

// MintProof signs a proof token for a credential.
func (p *DevProvider) MintProof(credentialID id.CredentialID, schemaID id.SchemaID, issuer, recipient id.DID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ProofClaims{
		SchemaID:     schemaID.String(),
		RecipientDID: recipient.String(),
		IssuerDID:    issuer.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: credentialID.String(),
			Issuer:  proofIssuer,
		},
	})
	return token.SignedString(p.key)
}

// VerifyProof reports Success=false for a proof that does not parse or was
// not signed with this provider's key.
func (p *DevProvider) VerifyProof(ctx context.Context, authToken, proofReference string) (*providers.ProofResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if authToken == "" {
		return nil, providers.NewProviderError(providers.ErrorAuthentication, devProviderName, "verify_proof", "missing access token", nil)
	}
	claims := &ProofClaims{}
	parsed, err := jwt.ParseWithClaims(proofReference, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.key, nil
	}, jwt.WithIssuer(proofIssuer))
	if err != nil || !parsed.Valid {
		return &providers.ProofResult{Success: false}, nil
	}
	return &providers.ProofResult{Success: true, CredentialID: claims.Subject}, nil
}
