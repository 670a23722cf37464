package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/halalchain/halalmap/internal/adapters/http"
	natsadapter "github.com/halalchain/halalmap/internal/adapters/nats"
	"github.com/halalchain/halalmap/internal/adapters/storage"
	"github.com/halalchain/halalmap/internal/adapters/tiles"
	"github.com/halalchain/halalmap/internal/adapters/valkey"
	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/ports"
	"github.com/halalchain/halalmap/internal/core/usecases"
	"github.com/halalchain/halalmap/internal/mapview"
	"github.com/halalchain/halalmap/internal/pkg/config"
	"github.com/halalchain/halalmap/internal/pkg/logging"
	"github.com/halalchain/halalmap/internal/pkg/metrics"
	"github.com/halalchain/halalmap/internal/pkg/telemetry"
	"github.com/halalchain/halalmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("halalmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup("", "json", "halalmap-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()
	if store.Driver == "sqlite" {
		// The embedded store has no separate migrate step in single-binary mode.
		if n, err := store.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		} else if n > 0 {
			slog.Info("applied migrations", "count", n)
		}
	}
	if store.PoolStat() != nil {
		go reportPool(ctx, store)
	}

	deps := &http.Dependencies{
		DB:      store,
		Changes: http.NewChangeHub(),
		Auth: http.AuthSettings{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		},
		Tiles: tiles.NewFetcher(tiles.Options{
			Upstream:   cfg.Tiles.Upstream,
			UserAgent:  cfg.Tiles.UserAgent,
			RatePerSec: cfg.Tiles.RatePerSec,
			Burst:      cfg.Tiles.Burst,
			Timeout:    time.Duration(cfg.Tiles.Timeout) * time.Second,
		}),
		Map: mapSettings(cfg.Map),
	}

	// Cache
	var cache ports.CacheService
	if cfg.Valkey.Addr != "" {
		vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Namespace)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer vc.Close()
			cache = vc
			deps.Cache = vc
		}
	}

	// NATS: publish local writes, and refresh local map sessions on any
	// instance's writes.
	var events ports.EventPublisher
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			events = pub
		}

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeRestaurantChanges(ctx, deps.Changes.Handle); err != nil {
				slog.Warn("subscribe restaurant changes", "error", err)
			}
			deps.Broker = sub
		}
	}

	// Temporal
	var scheduler ports.CertificationScheduler
	if cfg.Temporal.HostPort != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, certification scheduling disabled", "error", err)
		} else {
			defer tc.Close()
			scheduler = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue)
		}
	}

	// Use cases
	deps.Restaurants = usecases.NewRestaurantService(store.Restaurants, store.Scans, cache, events)
	deps.Certifications = usecases.NewCertificationService(store.Restaurants, deps.Restaurants, scheduler)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "HalalMap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "database", store.Driver)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// mapSettings translates the map config section into engine options.
func mapSettings(m config.MapConfig) http.MapSettings {
	return http.MapSettings{
		Options: mapview.Options{
			Controller: mapview.Controller{
				Home:       domain.GeoPoint{Lat: m.HomeLat, Lng: m.HomeLng},
				HomeZoom:   m.HomeZoom,
				DetailZoom: m.DetailZoom,
				Limits:     mapview.ZoomRange{Min: m.MinZoom, Max: m.MaxZoom},
			},
			CullMargin:   m.CullMargin,
			TileTemplate: "/tiles/{z}/{x}/{y}.png",
		},
		Debounce:     m.Debounce(),
		FetchTimeout: 10 * time.Second,
	}
}

// reportPool refreshes the connection pool gauges until ctx ends.
func reportPool(ctx context.Context, store *storage.Store) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		metrics.UpdateDBPoolMetrics(store.PoolStat())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
