package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/ports"
)

// ErrSchedulerUnavailable is returned when no workflow engine is configured.
var ErrSchedulerUnavailable = errors.New("certification scheduler unavailable")

// CertificationService tracks halal certificate expiry.
type CertificationService struct {
	restaurants ports.RestaurantRepository
	directory   *RestaurantService
	scheduler   ports.CertificationScheduler
	now         func() time.Time
}

// NewCertificationService creates a new CertificationService. scheduler may be nil.
func NewCertificationService(
	restaurants ports.RestaurantRepository,
	directory *RestaurantService,
	scheduler ports.CertificationScheduler,
) *CertificationService {
	return &CertificationService{
		restaurants: restaurants,
		directory:   directory,
		scheduler:   scheduler,
		now:         time.Now,
	}
}

// Schedule starts expiry tracking for a verified restaurant.
func (s *CertificationService) Schedule(ctx context.Context, id string) (time.Time, error) {
	if s.scheduler == nil {
		return time.Time{}, ErrSchedulerUnavailable
	}

	r, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !r.Verified {
		return time.Time{}, fmt.Errorf("%w: restaurant is not verified", domain.ErrInvalidInput)
	}
	if r.ExpiryDate == nil {
		return time.Time{}, fmt.Errorf("%w: restaurant has no expiry date", domain.ErrInvalidInput)
	}

	if err := s.scheduler.ScheduleExpiry(ctx, id, *r.ExpiryDate); err != nil {
		return time.Time{}, fmt.Errorf("schedule expiry: %w", err)
	}
	return *r.ExpiryDate, nil
}

// ScheduleUpcoming schedules every verified certificate expiring within
// horizon and returns how many were scheduled. Individual failures are logged
// and skipped.
func (s *CertificationService) ScheduleUpcoming(ctx context.Context, horizon time.Duration) (int, error) {
	if s.scheduler == nil {
		return 0, ErrSchedulerUnavailable
	}

	due, err := s.restaurants.ExpiringBefore(ctx, s.now().Add(horizon))
	if err != nil {
		return 0, fmt.Errorf("list expiring: %w", err)
	}

	scheduled := 0
	for _, r := range due {
		if r.ExpiryDate == nil {
			continue
		}
		if err := s.scheduler.ScheduleExpiry(ctx, r.ID, *r.ExpiryDate); err != nil {
			slog.Warn("schedule expiry", "restaurant_id", r.ID, "error", err)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}

// Expire revokes verification if the certificate is still lapsed. A
// certificate renewed since scheduling is left alone and Expire reports false.
func (s *CertificationService) Expire(ctx context.Context, id string) (bool, error) {
	r, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !r.Verified || r.CertificationActive(s.now()) {
		return false, nil
	}

	if err := s.directory.Revoke(ctx, id); err != nil {
		return false, fmt.Errorf("revoke: %w", err)
	}
	return true, nil
}

// PendingExpiry returns the expiry date of a verified certificate that still
// has one. ok is false once the restaurant is unverified or has no expiry.
func (s *CertificationService) PendingExpiry(ctx context.Context, id string) (expiresAt time.Time, ok bool, err error) {
	r, err := s.restaurants.GetByID(ctx, id)
	if err != nil {
		return time.Time{}, false, err
	}
	if !r.Verified || r.ExpiryDate == nil {
		return time.Time{}, false, nil
	}
	return *r.ExpiryDate, true, nil
}
