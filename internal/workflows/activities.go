package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
	"github.com/halalchain/halalmap/internal/pkg/telemetry"
	"go.temporal.io/sdk/temporal"
)

// Certifications is the part of the certification service the activities
// drive.
type Certifications interface {
	Expire(ctx context.Context, id string) (bool, error)
	PendingExpiry(ctx context.Context, id string) (time.Time, bool, error)
}

// PendingExpiry is the serialisable result of the PendingExpiry activity.
type PendingExpiry struct {
	ExpiresAt time.Time
	Pending   bool
}

// CertificationActivities holds the activity implementations for the
// certification expiry workflow.
type CertificationActivities struct {
	Certifications Certifications
}

// ExpireCertification revokes the restaurant's certification if it is still
// lapsed. A deleted restaurant is reported as not revoked.
func (a *CertificationActivities) ExpireCertification(ctx context.Context, restaurantID string) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanExpireCert)
	defer span.End()

	revoked, err := a.Certifications.Expire(ctx, restaurantID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", restaurantID, err)
	}
	if revoked {
		metrics.CertificationsExpired.Inc()
		slog.Info("certification expired", "restaurant_id", restaurantID)
	}
	return revoked, nil
}

// PendingExpiry looks up the current expiry date of a still-verified
// certificate.
func (a *CertificationActivities) PendingExpiry(ctx context.Context, restaurantID string) (PendingExpiry, error) {
	at, ok, err := a.Certifications.PendingExpiry(ctx, restaurantID)
	if errors.Is(err, domain.ErrNotFound) {
		return PendingExpiry{}, nil
	}
	if err != nil {
		return PendingExpiry{}, temporal.NewApplicationError(err.Error(), "PendingExpiry")
	}
	return PendingExpiry{ExpiresAt: at, Pending: ok}, nil
}
