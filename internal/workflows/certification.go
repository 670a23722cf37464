package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the default task queue for certification workflows.
const TaskQueue = "halalmap-certification"

// maxRenewals bounds how many times one workflow run follows a renewed
// certificate before continuing as new.
const maxRenewals = 10

// ExpiryInput is the input for the certification expiry workflow.
type ExpiryInput struct {
	RestaurantID string
	ExpiresAt    time.Time
}

// ExpiryResult reports how the workflow ended.
type ExpiryResult struct {
	Revoked   bool
	RevokedAt time.Time
}

// CertificationExpiryWorkflow sleeps until the certificate's expiry date and
// revokes the restaurant's verified flag. When the certificate was renewed in
// the meantime it sleeps again until the new expiry date; when it was revoked
// or deleted it ends without revoking.
func CertificationExpiryWorkflow(ctx workflow.Context, input ExpiryInput) (ExpiryResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("tracking certification expiry", "restaurant", input.RestaurantID, "expiresAt", input.ExpiresAt)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})

	var a *CertificationActivities
	expiresAt := input.ExpiresAt

	for i := 0; i < maxRenewals; i++ {
		if wait := expiresAt.Sub(workflow.Now(ctx)); wait > 0 {
			if err := workflow.Sleep(ctx, wait); err != nil {
				return ExpiryResult{}, err
			}
		}

		var revoked bool
		if err := workflow.ExecuteActivity(ctx, a.ExpireCertification, input.RestaurantID).Get(ctx, &revoked); err != nil {
			return ExpiryResult{}, err
		}
		if revoked {
			logger.Info("certification revoked", "restaurant", input.RestaurantID)
			return ExpiryResult{Revoked: true, RevokedAt: workflow.Now(ctx)}, nil
		}

		var next PendingExpiry
		if err := workflow.ExecuteActivity(ctx, a.PendingExpiry, input.RestaurantID).Get(ctx, &next); err != nil {
			return ExpiryResult{}, err
		}
		if !next.Pending || !next.ExpiresAt.After(expiresAt) {
			logger.Info("certification no longer tracked", "restaurant", input.RestaurantID)
			return ExpiryResult{}, nil
		}
		logger.Info("certification renewed", "restaurant", input.RestaurantID, "expiresAt", next.ExpiresAt)
		expiresAt = next.ExpiresAt
	}

	return ExpiryResult{}, workflow.NewContinueAsNewError(ctx, CertificationExpiryWorkflow, ExpiryInput{
		RestaurantID: input.RestaurantID,
		ExpiresAt:    expiresAt,
	})
}
