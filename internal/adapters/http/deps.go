package http

import (
	"context"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/halalchain/halalmap/internal/adapters/tiles"
	"github.com/halalchain/halalmap/internal/core/usecases"
	"github.com/halalchain/halalmap/internal/mapview"
)

// Pinger is a dependency whose reachability the readiness probe reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TileSource fetches raster tiles for the tile proxy.
type TileSource interface {
	Fetch(ctx context.Context, t maptile.Tile) (*tiles.Image, error)
}

// MapSettings configures the map engine behind /v1/map and /ws/map.
type MapSettings struct {
	Options      mapview.Options
	Debounce     time.Duration
	FetchTimeout time.Duration
}

// AuthSettings configures bearer-token checks on mutating endpoints.
type AuthSettings struct {
	Secret []byte
	Issuer string
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Restaurants    *usecases.RestaurantService
	Certifications *usecases.CertificationService
	Tiles          TileSource
	Changes        *ChangeHub
	Map            MapSettings
	Auth           AuthSettings

	// Readiness probes. DB is required; the others are reported when set.
	DB     Pinger
	Cache  Pinger
	Broker Pinger
}
