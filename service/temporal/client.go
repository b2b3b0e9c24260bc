package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// workflowAction is what the raised-amount schedule of an environment runs.
func (c *Client) workflowAction(testnet bool) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "poll-raised-workflow-" + environment(testnet),
		Workflow:  PollRaisedWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{PollRaisedInput{Testnet: testnet}},
	}
}

// CreateRaisedSchedule creates the Temporal schedule polling an environment's raised amounts.
func (c *Client) CreateRaisedSchedule(ctx context.Context, testnet bool, interval time.Duration) error {
	id := ScheduleID(testnet)

	c.logger.Debug("creating raised schedule",
		"schedule_id", id,
		"interval", interval,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: c.workflowAction(testnet),
		Memo: map[string]interface{}{
			"environment": environment(testnet),
			"created_by":  "presale",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("raised schedule created",
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertRaisedSchedule creates or updates the schedule for an environment.
// If the schedule already exists, it updates the poll interval. Otherwise, it creates a new schedule.
func (c *Client) UpsertRaisedSchedule(ctx context.Context, testnet bool, interval time.Duration) error {
	id := ScheduleID(testnet)

	// Try to get existing schedule
	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateRaisedSchedule(ctx, testnet, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("raised schedule updated",
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteRaisedSchedule deletes the schedule for an environment.
func (c *Client) DeleteRaisedSchedule(ctx context.Context, testnet bool) error {
	id := ScheduleID(testnet)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("raised schedule deleted", "schedule_id", id)
	return nil
}

// PollNow runs one PollRaisedWorkflow outside the schedule and waits for its result.
func (c *Client) PollNow(ctx context.Context, testnet bool) (*PollRaisedResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("poll-raised-manual-%s-%d", environment(testnet), time.Now().UnixNano()),
		TaskQueue: c.taskQueue,
	}, PollRaisedWorkflow, PollRaisedInput{Testnet: testnet})
	if err != nil {
		return nil, fmt.Errorf("failed to start poll workflow: %w", err)
	}

	var result PollRaisedResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("poll workflow %s failed: %w", run.GetID(), err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
