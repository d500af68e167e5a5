package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/repository"
	"go.uber.org/zap"
)

// Seeds the 52-card catalog into the cards table of the configured PostgreSQL database.
//
//	go run ./scripts/import_cards.go -config config/config.yaml
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// DATABASE_URL wins over the config file, as in local docker setups.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	fmt.Println("=== Blackjack Card Catalog Import ===")

	fmt.Printf("Connecting to database...\n")
	store, err := repository.NewPostgresStore(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	fmt.Println("✓ Database connection established")

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	fmt.Println("✓ Schema up to date")

	existing, err := store.CountCards(ctx)
	if err != nil {
		log.Fatalf("Failed to check existing cards: %v", err)
	}
	if existing > 0 {
		fmt.Printf("Database already contains %d cards, updating in place\n", existing)
	}

	catalog := cards.Standard()
	startTime := time.Now()
	imported, err := store.SeedCards(ctx, catalog)
	if err != nil {
		log.Fatalf("Failed to import cards: %v", err)
	}

	total, err := store.CountCards(ctx)
	if err != nil {
		log.Fatalf("Failed to verify import: %v", err)
	}

	fmt.Println("\n=== Import Complete ===")
	fmt.Printf("Imported: %d cards\n", imported)
	fmt.Printf("Total in database: %d\n", total)
	fmt.Printf("Duration: %v\n", time.Since(startTime))
	if total != int64(catalog.Len()) {
		fmt.Printf("Warning: expected %d cards, found %d\n", catalog.Len(), total)
		os.Exit(1)
	}
}
