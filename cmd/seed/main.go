package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/halalchain/halalmap/internal/adapters/storage"
	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/usecases"
	"github.com/halalchain/halalmap/internal/pkg/config"
	"github.com/halalchain/halalmap/internal/pkg/logging"
)

func main() {
	migrate := flag.Bool("migrate", true, "apply pending migrations before seeding")
	flag.Parse()

	manifest := "configs/seed.json"
	if flag.NArg() > 0 {
		manifest = flag.Arg(0)
	}

	cfg, err := config.Load("halalmap-seed")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("", "text", "halalmap-seed")

	restaurants, err := readManifest(manifest)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	if *migrate {
		if _, err := store.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	svc := usecases.NewRestaurantService(store.Restaurants, store.Scans, nil, nil)
	if err := svc.Import(ctx, restaurants); err != nil {
		log.Fatalf("import: %v", err)
	}

	slog.Info("seed complete", "manifest", manifest, "restaurants", len(restaurants))
}

// readManifest decodes a JSON array of restaurants.
func readManifest(path string) ([]domain.Restaurant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rs []domain.Restaurant
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return nil, err
	}
	return rs, nil
}
