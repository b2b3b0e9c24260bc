package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// PollRaisedWorkflow is the Temporal workflow that reads the presale
// recipient balances. It is triggered by a Temporal schedule every
// BALANCE_POLL_INTERVAL.
//
// The workflow performs these steps:
// 1. Read every recipient balance (PollBalances activity)
// 2. Write the readings to the snapshot table (RecordSnapshot activity)
// 3. Publish the readings to NATS (PublishSnapshot activity)
//
// A failed publish is logged and does not fail the workflow.
func PollRaisedWorkflow(ctx workflow.Context, input PollRaisedInput) (*PollRaisedResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollRaisedWorkflow started", "testnet", input.Testnet)

	startedAt := workflow.Now(ctx)
	result := &PollRaisedResult{
		Testnet:  input.Testnet,
		PollTime: startedAt,
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Read balances
	var polled *PollBalancesResult
	err := workflow.ExecuteActivity(ctx, a.PollBalances, PollBalancesInput{
		Testnet:   input.Testnet,
		Addresses: input.Addresses,
	}).Get(ctx, &polled)
	if err != nil {
		errMsg := fmt.Sprintf("failed to poll balances: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to poll balances: %w", err)
	}

	result.Balances = polled.Balances
	result.PollTime = polled.PolledAt
	for _, b := range polled.Balances {
		if b.Balance == nil {
			result.Failed++
		}
	}
	logger.Info("polled balances", "count", len(polled.Balances), "failed", result.Failed)

	// Step 2: Record the snapshot
	var recorded *RecordSnapshotResult
	err = workflow.ExecuteActivity(ctx, a.RecordSnapshot, RecordSnapshotInput{
		Balances: polled.Balances,
		PolledAt: polled.PolledAt,
	}).Get(ctx, &recorded)
	if err != nil {
		logger.Error("failed to record snapshot", "error", err)
		errMsg := fmt.Sprintf("failed to record snapshot: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to record snapshot: %w", err)
	}
	result.Recorded = recorded.Recorded

	// Step 3: Publish
	err = workflow.ExecuteActivity(ctx, a.PublishSnapshot, PublishSnapshotInput{
		Testnet:   input.Testnet,
		Balances:  polled.Balances,
		PolledAt:  polled.PolledAt,
		StartedAt: startedAt,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish snapshot", "error", err)
	} else {
		result.Published = true
	}

	logger.Info("PollRaisedWorkflow completed successfully",
		"testnet", input.Testnet,
		"recorded", result.Recorded,
		"failed", result.Failed,
		"published", result.Published,
	)

	return result, nil
}
