package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"umuhanda-backend/internal/config"
	pg "umuhanda-backend/internal/infra/db/postgres"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	cfg.Database.MaxConns = 2
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	subUC := usecase.NewSubscriptionUseCase(pg.NewSubscriptionRepo(pool), pg.NewGrantRepo(pool), pg.NewUserRepo(pool), pg.NewTxManager(pool), logger)

	// If the catalog already has entries, do nothing
	existing, err := subUC.List(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list catalog")
	}
	if len(existing) > 0 {
		fmt.Printf("%d subscriptions already present. No changes.\n", len(existing))
		for _, s := range existing {
			fmt.Printf("  - %s (id=%s, days=%d, attempts=%d, price=%s RWF)\n", s.Name, s.ID, s.ValidityDays, s.ExamAttemptsLimit, s.Price)
		}
		return
	}

	seed := []struct {
		Name     string
		Days     int
		Attempts int
		Price    int64
	}{
		{"Daily", 1, 5, 500},
		{"Weekly", 7, 20, 2_000},
		{"Monthly", 30, 100, 5_000},
	}

	for _, s := range seed {
		sub, err := subUC.Create(ctx, s.Name, decimal.NewFromInt(s.Price), s.Attempts, s.Days)
		if err != nil {
			logger.Fatal().Err(err).Str("name", s.Name).Msg("create subscription")
		}
		fmt.Printf("seeded: %s (id=%s, days=%d, attempts=%d, price=%s RWF)\n", sub.Name, sub.ID, sub.ValidityDays, sub.ExamAttemptsLimit, sub.Price)
	}

	fmt.Println("Seeding complete.")
}
