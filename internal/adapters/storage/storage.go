// Package storage opens the restaurant store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/halalchain/halalmap/internal/adapters/postgres"
	"github.com/halalchain/halalmap/internal/adapters/sqlite"
	"github.com/halalchain/halalmap/internal/core/ports"
	"github.com/halalchain/halalmap/internal/pkg/config"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
)

// Store bundles the repositories of one backend with its lifecycle hooks.
type Store struct {
	Driver      string
	Restaurants ports.RestaurantRepository
	Scans       ports.ScanRepository

	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) (int, error)
	close   func()
	stats   func() metrics.PoolStat
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", cfg.Path, err)
		}
		return &Store{
			Driver:      cfg.Driver,
			Restaurants: sqlite.NewRestaurantRepo(db),
			Scans:       sqlite.NewScanRepo(db),
			ping:        db.Ping,
			migrate:     db.Migrate,
			close:       func() { _ = db.Close() },
		}, nil

	case "postgres", "":
		db, err := postgres.New(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Store{
			Driver:      "postgres",
			Restaurants: postgres.NewRestaurantRepo(db),
			Scans:       postgres.NewScanRepo(db),
			ping:        db.Ping,
			migrate:     db.Migrate,
			close:       db.Close,
			stats:       func() metrics.PoolStat { return db.Pool.Stat() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

// Migrate applies pending schema migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) { return s.migrate(ctx) }

// Close releases the backend's resources.
func (s *Store) Close() { s.close() }

// PoolStat returns connection pool statistics, or nil for backends without
// a pool.
func (s *Store) PoolStat() metrics.PoolStat {
	if s.stats == nil {
		return nil
	}
	return s.stats()
}
