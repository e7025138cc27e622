package httptransport

import (
	"time"

	credmodels "credreg/internal/credential/models"
	id "credreg/pkg/domain"
)

// IssueResponse is returned by POST /issue.
type IssueResponse struct {
	CredentialID   id.CredentialID   `json:"credentialId"`
	Record         credmodels.Record `json:"record"`
	ProofReference string            `json:"proofReference,omitempty"`
}

// RevokeResponse is returned by POST /revoke.
type RevokeResponse struct {
	CredentialID id.CredentialID   `json:"credentialId"`
	Status       credmodels.Status `json:"status"`
	Record       credmodels.Record `json:"record"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
