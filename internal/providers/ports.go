// Package providers defines the ports for the external systems the registry
// coordinates with: the identity/session provider, the credential
// cryptography provider and the optional ledger.
package providers

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks SessionProvider,CryptoProvider,Ledger

import (
	"context"
	"time"

	id "credreg/pkg/domain"
)

// Session is an authenticated registry session.
type Session struct {
	DID          id.DID
	AccessToken  string
	SmartAccount string
	ExpiresAt    time.Time
}

// Valid reports whether the session can still be used at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// SessionProvider authenticates the registry and hands out access tokens for
// downstream calls. Session returns ErrNotAuthenticated when no usable
// session exists.
type SessionProvider interface {
	Login(ctx context.Context) (*Session, error)
	Session(ctx context.Context) (*Session, error)
}

// IssueRequest is what the cryptography provider needs to build and sign a
// credential artifact.
type IssueRequest struct {
	CredentialID id.CredentialID
	SchemaID     id.SchemaID
	IssuerDID    id.DID
	RecipientDID id.DID
	Claims       map[string]any
}

// ProofResult is the provider's verdict on a proof reference. CredentialID is
// set when the provider can tell which credential the proof is about.
type ProofResult struct {
	Success      bool
	CredentialID string
}

// IssueResult carries what the provider hands back for a signed credential.
// ProofReference is empty for providers that build proofs on the holder's
// side.
type IssueResult struct {
	ProofReference string
}

// CryptoProvider issues credential artifacts and checks proofs of possession.
type CryptoProvider interface {
	IssueCredential(ctx context.Context, authToken string, req IssueRequest) (*IssueResult, error)
	VerifyProof(ctx context.Context, authToken, proofReference string) (*ProofResult, error)
}

// Anchor describes an issuance to record on the ledger.
type Anchor struct {
	RecipientDID id.DID
	IssuerDID    id.DID
	IssuedAt     time.Time
	SubjectID    string
	SubjectSkill string
}

// Ledger anchors issuance events and returns the transaction reference.
type Ledger interface {
	RecordIssuance(ctx context.Context, anchor Anchor) (string, error)
}
