package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"food-ordering/internal/config"
	"food-ordering/internal/db"
	promorepo "food-ordering/internal/repository/promo"
	"food-ordering/internal/seed"
)

func main() {
	list := flag.Bool("list", false, "print the demo promo codes without writing them")
	flag.Parse()

	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	now := time.Now().UTC()

	if *list {
		for _, p := range seed.Promos(now) {
			logger.Printf("code=%s kind=%s value=%s min=%s max=%d valid=%s..%s",
				p.Code, p.Rule.Kind, p.Rule.Value, p.MinOrderAmount, p.MaxRedemptions,
				p.ValidFrom.Format(time.DateOnly), p.ValidTo.Format(time.DateOnly))
		}
		return
	}

	cfg := config.Load()
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := seed.Apply(ctx, promorepo.NewPostgres(pool, logger), now); err != nil {
		logger.Fatalf("seed promos: %v", err)
	}
	logger.Printf("seeded %d promo codes", len(seed.Promos(now)))
}
