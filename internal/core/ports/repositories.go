package ports

import (
	"context"
	"time"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// RestaurantRepository persists restaurants.
type RestaurantRepository interface {
	Upsert(ctx context.Context, r *domain.Restaurant) error
	UpsertBatch(ctx context.Context, rs []domain.Restaurant) error
	GetByID(ctx context.Context, id string) (*domain.Restaurant, error)
	// List returns restaurants matching the filter's province, search,
	// verified and bounds constraints, ordered by name, plus the total
	// number of matches before pagination.
	List(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error)
	Update(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error)
	Delete(ctx context.Context, id string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	// ExpiringBefore returns verified restaurants whose certification expires before t.
	ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Restaurant, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

// ScanRepository persists QR scans.
type ScanRepository interface {
	// Record stores the scan and increments the restaurant's scan counter.
	Record(ctx context.Context, scan *domain.QRScan) error
	Recent(ctx context.Context, restaurantID string, limit int) ([]domain.QRScan, error)
}
