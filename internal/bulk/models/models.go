// Package models describes bulk issuance batches and their results.
package models

import (
	"time"

	id "credreg/pkg/domain"
)

// RecordStatus is the per-row state. Rows start pending and move once to
// issued or failed.
type RecordStatus string

const (
	StatusPending RecordStatus = "pending"
	StatusIssued  RecordStatus = "issued"
	StatusFailed  RecordStatus = "failed"
)

// Input is one row of a submitted batch.
type Input struct {
	RecipientDID string         `json:"recipientDid"`
	Claims       map[string]any `json:"claims"`
}

// Options control how a batch runs. DelayBetweenRequests spaces sequential
// attempts; in parallel mode it is the minimum spacing between dispatches.
type Options struct {
	StopOnFailure        bool          `json:"stopOnFailure"`
	DelayBetweenRequests time.Duration `json:"-"`
	ParallelProcessing   bool          `json:"parallelProcessing"`
}

// Batch is a submitted bulk issuance.
type Batch struct {
	Name      string
	SchemaID  string
	IssuerDID string
	Records   []Input
	Options   Options
}

// Record is the outcome of one row.
type Record struct {
	Index        int              `json:"index"`
	RecipientDID string           `json:"recipientDid"`
	Claims       map[string]any   `json:"claims"`
	Status       RecordStatus     `json:"status"`
	Error        string           `json:"error,omitempty"`
	CredentialID *id.CredentialID `json:"credentialId,omitempty"`
	IssuedAt     *time.Time       `json:"issuedAt,omitempty"`
}

// Result is published once per batch after processing stops. Cancelled is
// set when the run was interrupted before every row was attempted.
type Result struct {
	BatchID      id.BatchID `json:"batchId"`
	BatchName    string     `json:"batchName,omitempty"`
	SchemaID     string     `json:"schemaId"`
	IssuerDID    string     `json:"issuerDid"`
	TotalRecords int        `json:"totalRecords"`
	Successful   int        `json:"successful"`
	Failed       int        `json:"failed"`
	Pending      int        `json:"pending"`
	Cancelled    bool       `json:"cancelled,omitempty"`
	Results      []Record   `json:"results"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  time.Time  `json:"completedAt"`
}

// Tally recomputes the counters from the per-row statuses.
func (r *Result) Tally() {
	r.TotalRecords = len(r.Results)
	r.Successful, r.Failed, r.Pending = 0, 0, 0
	for _, rec := range r.Results {
		switch rec.Status {
		case StatusIssued:
			r.Successful++
		case StatusFailed:
			r.Failed++
		default:
			r.Pending++
		}
	}
}
