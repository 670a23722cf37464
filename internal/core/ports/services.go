package ports

import (
	"context"
	"time"
)

// ChangeKind classifies restaurant change events.
type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeScanned ChangeKind = "scanned"
	ChangeExpired ChangeKind = "expired"
)

// RestaurantChange is broadcast whenever a restaurant's listing changes.
type RestaurantChange struct {
	RestaurantID string     `json:"restaurant_id"`
	Kind         ChangeKind `json:"kind"`
	At           time.Time  `json:"at"`
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishRestaurantChange(ctx context.Context, change RestaurantChange) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeRestaurantChanges(ctx context.Context, handler func(ctx context.Context, change RestaurantChange) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// CertificationScheduler starts certificate-expiry tracking for a restaurant.
type CertificationScheduler interface {
	ScheduleExpiry(ctx context.Context, restaurantID string, expiresAt time.Time) error
}
