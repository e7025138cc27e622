package e2e

import (
	"github.com/cucumber/godog"

	"credreg/e2e/steps/bulk"
	"credreg/e2e/steps/common"
	"credreg/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register issue, verify and revoke steps
	registry.RegisterSteps(ctx, tc)

	// Register bulk issuance steps
	bulk.RegisterSteps(ctx, tc)
}
