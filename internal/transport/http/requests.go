package httptransport

import (
	"strings"
	"time"

	"credreg/internal/bulk/models"
	"credreg/internal/issuance"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// IssueRequest is the body of POST /issue. Identifiers are checked by the
// orchestrator so every field problem surfaces with the same code.
type IssueRequest struct {
	SchemaID     string         `json:"schemaId"`
	IssuerDID    string         `json:"issuerDid"`
	RecipientDID string         `json:"recipientDid"`
	Claims       map[string]any `json:"claims"`
}

func (r *IssueRequest) Validate() error {
	r.SchemaID = strings.TrimSpace(r.SchemaID)
	problems := map[string]string{}
	if r.SchemaID == "" {
		problems["schemaId"] = "is required"
	}
	if r.IssuerDID == "" {
		problems["issuerDid"] = "is required"
	}
	if r.RecipientDID == "" {
		problems["recipientDid"] = "is required"
	}
	if r.Claims == nil {
		problems["claims"] = "is required"
	}
	if len(problems) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid issue request").WithFields(problems)
	}
	return nil
}

func (r *IssueRequest) toIssuance() issuance.Request {
	return issuance.Request{
		SchemaID:     r.SchemaID,
		IssuerDID:    r.IssuerDID,
		RecipientDID: r.RecipientDID,
		Claims:       r.Claims,
	}
}

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	CredentialID   string `json:"credentialId"`
	ProofReference string `json:"proofReference"`

	credentialID id.CredentialID
}

func (r *VerifyRequest) Validate() error {
	if r.CredentialID == "" || strings.TrimSpace(r.ProofReference) == "" {
		return dErrors.New(dErrors.CodeValidation, "credentialId and proofReference are required")
	}
	parsed, err := id.ParseCredentialID(r.CredentialID)
	if err != nil {
		return err
	}
	r.credentialID = parsed
	return nil
}

// RevokeRequest is the body of POST /revoke. RequestingIssuerDID may be
// omitted when the caller authenticates with a bearer token.
type RevokeRequest struct {
	CredentialID        string `json:"credentialId"`
	RequestingIssuerDID string `json:"requestingIssuerDid,omitempty"`

	credentialID id.CredentialID
	requester    id.DID
}

func (r *RevokeRequest) Validate() error {
	if r.CredentialID == "" {
		return dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}
	parsed, err := id.ParseCredentialID(r.CredentialID)
	if err != nil {
		return err
	}
	r.credentialID = parsed
	if r.RequestingIssuerDID != "" {
		did, err := id.ParseDID(r.RequestingIssuerDID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid requestingIssuerDid")
		}
		r.requester = did
	}
	return nil
}

// BulkOptions mirrors models.Options with the delay in milliseconds.
type BulkOptions struct {
	StopOnFailure          bool  `json:"stopOnFailure"`
	DelayBetweenRequestsMS int64 `json:"delayBetweenRequests"`
	ParallelProcessing     bool  `json:"parallelProcessing"`
}

func (o BulkOptions) toModel() models.Options {
	return models.Options{
		StopOnFailure:        o.StopOnFailure,
		DelayBetweenRequests: time.Duration(o.DelayBetweenRequestsMS) * time.Millisecond,
		ParallelProcessing:   o.ParallelProcessing,
	}
}

// maxBulkDelay keeps a single batch from parking a request for hours.
const maxBulkDelay = 60_000

// BulkIssueRequest is the body of POST /bulkIssue.
type BulkIssueRequest struct {
	BatchName string         `json:"batchName,omitempty"`
	SchemaID  string         `json:"schemaId"`
	IssuerDID string         `json:"issuerDid"`
	Records   []models.Input `json:"records"`
	Options   BulkOptions    `json:"options"`
}

func (r *BulkIssueRequest) Validate() error {
	problems := map[string]string{}
	if strings.TrimSpace(r.SchemaID) == "" {
		problems["schemaId"] = "is required"
	}
	if r.IssuerDID == "" {
		problems["issuerDid"] = "is required"
	}
	if len(r.Records) == 0 {
		problems["records"] = "must not be empty"
	}
	if d := r.Options.DelayBetweenRequestsMS; d < 0 || d > maxBulkDelay {
		problems["options.delayBetweenRequests"] = "must be between 0 and 60000 milliseconds"
	}
	if len(problems) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid bulk issue request").WithFields(problems)
	}
	return nil
}

func (r *BulkIssueRequest) toBatch() models.Batch {
	return models.Batch{
		Name:      r.BatchName,
		SchemaID:  strings.TrimSpace(r.SchemaID),
		IssuerDID: r.IssuerDID,
		Records:   r.Records,
		Options:   r.Options.toModel(),
	}
}
