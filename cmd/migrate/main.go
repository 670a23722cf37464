package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/halalchain/halalmap/internal/adapters/storage"
	"github.com/halalchain/halalmap/internal/pkg/config"
	"github.com/halalchain/halalmap/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up>")
	}

	cfg, err := config.Load("halalmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("", "text", "halalmap-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	switch os.Args[1] {
	case "up":
		n, err := store.Migrate(ctx)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		slog.Info("all migrations applied", "driver", store.Driver, "applied", n)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
