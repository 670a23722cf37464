package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
)

// Scheduler starts certification expiry workflows on a Temporal cluster. It
// implements ports.CertificationScheduler.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

// NewScheduler wraps an existing Temporal client.
func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// WorkflowID is the deterministic workflow id for a restaurant, so that
// scheduling the same restaurant twice joins the running workflow.
func WorkflowID(restaurantID string) string {
	return "certification-expiry-" + restaurantID
}

// ScheduleExpiry starts (or joins) the expiry workflow for restaurantID.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, restaurantID string, expiresAt time.Time) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(restaurantID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, opts, CertificationExpiryWorkflow, ExpiryInput{
		RestaurantID: restaurantID,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return fmt.Errorf("start expiry workflow: %w", err)
	}
	return nil
}
