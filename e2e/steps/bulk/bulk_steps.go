package bulk

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTRaw(path, contentType, body string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetIssuerDID() string
	Save(key, value string)
	Saved(key string) (string, bool)
}

// RegisterSteps registers bulk issuance step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &bulkSteps{tc: tc}

	ctx.Step(`^I bulk issue "([^"]*)" credentials:$`, steps.bulkIssue)
	ctx.Step(`^I bulk issue "([^"]*)" credentials in parallel:$`, steps.bulkIssueParallel)
	ctx.Step(`^I bulk issue "([^"]*)" credentials stopping on failure:$`, steps.bulkIssueStopOnFailure)
	ctx.Step(`^I upload a "([^"]*)" CSV batch:$`, steps.uploadCSV)
	ctx.Step(`^I save the batch$`, steps.saveBatch)
	ctx.Step(`^I fetch the saved batch$`, steps.fetchSavedBatch)
}

type bulkSteps struct {
	tc TestContext
}

func (s *bulkSteps) bulkIssue(ctx context.Context, schemaID string, table *godog.Table) error {
	return s.send(schemaID, table, map[string]interface{}{})
}

func (s *bulkSteps) bulkIssueParallel(ctx context.Context, schemaID string, table *godog.Table) error {
	return s.send(schemaID, table, map[string]interface{}{"parallelProcessing": true})
}

func (s *bulkSteps) bulkIssueStopOnFailure(ctx context.Context, schemaID string, table *godog.Table) error {
	return s.send(schemaID, table, map[string]interface{}{"stopOnFailure": true})
}

// send turns a table whose header names recipientDid and claim columns into
// one record per row. Empty cells are left out of the claims.
func (s *bulkSteps) send(schemaID string, table *godog.Table, options map[string]interface{}) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("bulk table needs a header and at least one row")
	}
	header := table.Rows[0].Cells
	records := make([]map[string]interface{}, 0, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		record := map[string]interface{}{}
		claims := map[string]interface{}{}
		for i, cell := range row.Cells {
			name := header[i].Value
			switch {
			case name == "recipientDid":
				record["recipientDid"] = cell.Value
			case cell.Value != "":
				claims[name] = cell.Value
			}
		}
		record["claims"] = claims
		records = append(records, record)
	}
	return s.tc.POST("/bulkIssue", map[string]interface{}{
		"schemaId":  schemaID,
		"issuerDid": s.tc.GetIssuerDID(),
		"records":   records,
		"options":   options,
	})
}

func (s *bulkSteps) uploadCSV(ctx context.Context, schemaID string, doc *godog.DocString) error {
	query := url.Values{}
	query.Set("schemaId", schemaID)
	query.Set("issuerDid", s.tc.GetIssuerDID())
	return s.tc.POSTRaw("/bulkIssue/csv?"+query.Encode(), "text/csv", strings.TrimSpace(doc.Content)+"\n")
}

func (s *bulkSteps) saveBatch(ctx context.Context) error {
	value, err := s.tc.GetResponseField("batchId")
	if err != nil {
		return err
	}
	batchID, ok := value.(string)
	if !ok || batchID == "" {
		return fmt.Errorf("expected batchId in response, got %v", value)
	}
	s.tc.Save("batchId", batchID)
	return nil
}

func (s *bulkSteps) fetchSavedBatch(ctx context.Context) error {
	batchID, ok := s.tc.Saved("batchId")
	if !ok {
		return fmt.Errorf("no batch saved")
	}
	return s.tc.GET("/bulkIssue/"+batchID, nil)
}
