package e2e

import (
	"github.com/cucumber/godog"

	"foodlink/e2e/steps/claim"
	"foodlink/e2e/steps/common"
	"foodlink/e2e/steps/donation"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	donation.RegisterSteps(ctx, tc)
	claim.RegisterSteps(ctx, tc)
}
