package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"food-ordering/internal/config"
	"food-ordering/internal/db"
	"food-ordering/internal/importer"
	promorepo "food-ordering/internal/repository/promo"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to promo code CSV")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := log.New(os.Stderr, "[importer] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, promorepo.NewPostgres(pool, logger))

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalf("import failed after %d promos: %v", count, err)
	}

	fmt.Printf("Imported %d promo codes in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
