// Package models holds the credential record and its lifecycle rules.
package models

import (
	"time"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// Status is the lifecycle state of a credential. The only transition is
// active to revoked.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ParseStatus validates a stored or user-supplied status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusRevoked:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown credential status "+s)
	}
}

// CanTransitionTo reports whether a record in status s may move to next.
// Staying in the same status is allowed so revocation stays idempotent.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusActive && next == StatusRevoked
}

// Claims maps schema field names to claim values.
type Claims map[string]any

// Clone copies c and every nested JSON container (maps and slices) in it.
func (c Claims) Clone() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Claims(t).Clone())
	case Claims:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Record is a committed credential. Everything except Status is fixed once
// the record reaches a store.
type Record struct {
	ID                   id.CredentialID `json:"id"`
	SchemaID             id.SchemaID     `json:"schemaId"`
	IssuerDID            id.DID          `json:"issuerDid"`
	RecipientDID         id.DID          `json:"recipientDid"`
	Claims               Claims          `json:"claims"`
	IssuedAt             time.Time       `json:"issuedAt"`
	Status               Status          `json:"status"`
	TransactionReference string          `json:"transactionReference,omitempty"`
}

// IsActive reports whether the record has not been revoked.
func (r Record) IsActive() bool {
	return r.Status == StatusActive
}

// Clone returns a copy that shares no claim data with r.
func (r Record) Clone() Record {
	r.Claims = r.Claims.Clone()
	return r
}

// ListFilter narrows recipient listings.
type ListFilter struct {
	IncludeRevoked bool
}

// Matches reports whether r passes the filter.
func (f ListFilter) Matches(r Record) bool {
	return f.IncludeRevoked || r.IsActive()
}

// SchemaCount is one entry of an issuer's popular schema list.
type SchemaCount struct {
	SchemaID id.SchemaID `json:"schemaId"`
	Count    int         `json:"count"`
}

// IssuerStats summarizes everything an issuer has issued.
type IssuerStats struct {
	IssuerDID          id.DID        `json:"issuerDid"`
	TotalIssued        int           `json:"totalIssued"`
	ActiveCredentials  int           `json:"activeCredentials"`
	RevokedCredentials int           `json:"revokedCredentials"`
	PopularSchemas     []SchemaCount `json:"popularSchemas"`
}
