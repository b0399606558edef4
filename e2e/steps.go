//go:build e2e

package e2e

import (
	"github.com/cucumber/godog"

	"whitelist/e2e/steps/common"
	"whitelist/e2e/steps/whitelist"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (requests, status and body assertions)
	common.RegisterSteps(ctx, tc)

	// Register whitelist-specific steps
	whitelist.RegisterSteps(ctx, tc)
}
