package temporal

import (
	"context"
	"fmt"
	"time"
)

// Scheduler manages the Temporal schedules for raised-amount polling.
// Each environment (mainnet, testnet) gets its own schedule that triggers
// the PollRaisedWorkflow.
type Scheduler interface {
	// UpsertRaisedSchedule creates the schedule for an environment or updates
	// its interval if it already exists.
	UpsertRaisedSchedule(ctx context.Context, testnet bool, interval time.Duration) error

	// DeleteRaisedSchedule deletes the schedule for an environment.
	DeleteRaisedSchedule(ctx context.Context, testnet bool) error
}

// ScheduleID returns the Temporal schedule ID for an environment.
func ScheduleID(testnet bool) string {
	return "poll-raised-" + environment(testnet)
}

func environment(testnet bool) string {
	if testnet {
		return "testnet"
	}
	return "mainnet"
}

// EnsureSchedules upserts the polling schedule of each environment and
// returns the first failure.
func EnsureSchedules(ctx context.Context, s Scheduler, interval time.Duration, testnets ...bool) error {
	for _, testnet := range testnets {
		if err := s.UpsertRaisedSchedule(ctx, testnet, interval); err != nil {
			return fmt.Errorf("ensure %s schedule: %w", environment(testnet), err)
		}
	}
	return nil
}
