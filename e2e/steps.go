package e2e

import (
	"github.com/cucumber/godog"

	"kycflow/e2e/steps/common"
	"kycflow/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic assertions)
	common.RegisterSteps(ctx, tc)

	// Register workflow-specific steps
	workflow.RegisterSteps(ctx, tc)
}
