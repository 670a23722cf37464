package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/halalchain/halalmap/internal/adapters/nats"
	"github.com/halalchain/halalmap/internal/adapters/storage"
	"github.com/halalchain/halalmap/internal/core/ports"
	"github.com/halalchain/halalmap/internal/core/usecases"
	"github.com/halalchain/halalmap/internal/pkg/config"
	"github.com/halalchain/halalmap/internal/pkg/logging"
	"github.com/halalchain/halalmap/internal/pkg/telemetry"
	"github.com/halalchain/halalmap/internal/workflows"
)

// scanHorizon is how far ahead the sweep schedules expiry workflows.
const scanHorizon = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load("halalmap-certifier")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("", "json", "halalmap-certifier")

	if cfg.Temporal.HostPort == "" {
		log.Fatal("temporal.host_port is required for the certifier")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	var events ports.EventPublisher
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, expiries will not be announced", "error", err)
		} else {
			defer pub.Close()
			events = pub
		}
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	directory := usecases.NewRestaurantService(store.Restaurants, store.Scans, nil, events)
	certs := usecases.NewCertificationService(store.Restaurants, directory, workflows.NewScheduler(c, cfg.Temporal.TaskQueue))

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.CertificationExpiryWorkflow)
	w.RegisterActivity(&workflows.CertificationActivities{Certifications: certs})

	go sweep(ctx, certs)

	slog.Info("certifier worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// sweep schedules upcoming expiries hourly so certificates imported without
// an explicit schedule call are still tracked.
func sweep(ctx context.Context, certs *usecases.CertificationService) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := certs.ScheduleUpcoming(ctx, scanHorizon)
		if err != nil {
			slog.Error("certification sweep failed", "error", err)
		} else {
			slog.Info("certification sweep", "scheduled", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
