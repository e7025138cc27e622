package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetIssuerDID() string
	Save(key, value string)
	Saved(key string) (string, bool)
}

// RegisterSteps registers issue, verify and revoke step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^I issue a "([^"]*)" credential to "([^"]*)" with claims:$`, steps.issueWithClaims)
	ctx.Step(`^I save the issued credential$`, steps.saveIssuedCredential)
	ctx.Step(`^I verify the saved credential$`, steps.verifySaved)
	ctx.Step(`^I verify the saved credential with proof "([^"]*)"$`, steps.verifySavedWithProof)
	ctx.Step(`^I revoke the saved credential$`, steps.revokeSaved)
	ctx.Step(`^I revoke the saved credential as "([^"]*)"$`, steps.revokeSavedAs)
	ctx.Step(`^I fetch the saved credential$`, steps.fetchSaved)
	ctx.Step(`^I fetch my issuer stats$`, steps.fetchIssuerStats)
}

type registrySteps struct {
	tc TestContext
}

// issueWithClaims reads a two-column table of claim name and value.
func (s *registrySteps) issueWithClaims(ctx context.Context, schemaID, recipientDID string, table *godog.Table) error {
	claims := make(map[string]interface{}, len(table.Rows))
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("claims table rows need a name and a value")
		}
		claims[row.Cells[0].Value] = row.Cells[1].Value
	}
	return s.tc.POST("/issue", map[string]interface{}{
		"schemaId":     schemaID,
		"issuerDid":    s.tc.GetIssuerDID(),
		"recipientDid": recipientDID,
		"claims":       claims,
	})
}

func (s *registrySteps) saveIssuedCredential(ctx context.Context) error {
	credentialID, err := s.stringField("credentialId")
	if err != nil {
		return err
	}
	proof, err := s.stringField("proofReference")
	if err != nil {
		return err
	}
	s.tc.Save("credentialId", credentialID)
	s.tc.Save("proofReference", proof)
	return nil
}

func (s *registrySteps) verifySaved(ctx context.Context) error {
	proof, ok := s.tc.Saved("proofReference")
	if !ok {
		return fmt.Errorf("no credential saved")
	}
	return s.verifySavedWithProof(ctx, proof)
}

func (s *registrySteps) verifySavedWithProof(ctx context.Context, proof string) error {
	credentialID, ok := s.tc.Saved("credentialId")
	if !ok {
		return fmt.Errorf("no credential saved")
	}
	return s.tc.POST("/verify", map[string]interface{}{
		"credentialId":   credentialID,
		"proofReference": proof,
	})
}

func (s *registrySteps) revokeSaved(ctx context.Context) error {
	return s.revokeSavedAs(ctx, s.tc.GetIssuerDID())
}

func (s *registrySteps) revokeSavedAs(ctx context.Context, requestingDID string) error {
	credentialID, ok := s.tc.Saved("credentialId")
	if !ok {
		return fmt.Errorf("no credential saved")
	}
	return s.tc.POST("/revoke", map[string]interface{}{
		"credentialId":        credentialID,
		"requestingIssuerDid": requestingDID,
	})
}

func (s *registrySteps) fetchSaved(ctx context.Context) error {
	credentialID, ok := s.tc.Saved("credentialId")
	if !ok {
		return fmt.Errorf("no credential saved")
	}
	return s.tc.GET("/credential/"+credentialID, nil)
}

func (s *registrySteps) fetchIssuerStats(ctx context.Context) error {
	return s.tc.GET("/issuers/"+s.tc.GetIssuerDID()+"/stats", nil)
}

func (s *registrySteps) stringField(field string) (string, error) {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return "", err
	}
	str, ok := value.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("expected %s to be a non-empty string, got %v", field, value)
	}
	return str, nil
}
