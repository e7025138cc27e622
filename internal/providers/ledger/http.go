// Package ledger anchors issuance events through an HTTP ledger gateway.
package ledger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"credreg/internal/providers"
)

const providerName = "ledger"

// Client records issuances on the registry contract via the gateway.
type Client struct {
	client   providers.JSONClient
	contract string
}

func New(baseURL, contract string, client *http.Client) *Client {
	return &Client{
		client: providers.JSONClient{
			Provider: providerName,
			BaseURL:  strings.TrimRight(baseURL, "/"),
			Client:   client,
		},
		contract: contract,
	}
}

type recordRequest struct {
	Contract     string `json:"contract,omitempty"`
	RecipientDID string `json:"recipientDid"`
	Issuer       string `json:"issuer"`
	IssuanceDate string `json:"issuanceDate"`
	SubjectID    string `json:"subjectId"`
	Skill        string `json:"skill"`
}

type recordResponse struct {
	TransactionHash string `json:"transactionHash"`
}

// RecordIssuance submits the anchor and returns the transaction hash.
func (c *Client) RecordIssuance(ctx context.Context, anchor providers.Anchor) (string, error) {
	var out recordResponse
	err := c.client.Post(ctx, "record_issuance", "/issuances", "", recordRequest{
		Contract:     c.contract,
		RecipientDID: anchor.RecipientDID.String(),
		Issuer:       anchor.IssuerDID.String(),
		IssuanceDate: anchor.IssuedAt.UTC().Format(time.RFC3339),
		SubjectID:    anchor.SubjectID,
		Skill:        anchor.SubjectSkill,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TransactionHash == "" {
		return "", providers.NewProviderError(providers.ErrorBadData, providerName, "record_issuance", "empty transaction hash", nil)
	}
	return out.TransactionHash, nil
}
