package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/okoval/grocery-price-scraper/internal/config"
	"github.com/okoval/grocery-price-scraper/internal/database"
	"github.com/okoval/grocery-price-scraper/internal/export"
	"github.com/okoval/grocery-price-scraper/internal/models"
	"github.com/okoval/grocery-price-scraper/pkg/logger"
)

func main() {
	var (
		format = flag.String("format", "csv", "Output format: csv or jsonl")
		out    = flag.String("out", "", "Output file path (required)")
	)
	flag.Parse()

	if *out == "" {
		log.Fatal("-out is required")
	}
	if *format != "csv" && *format != "jsonl" {
		log.Fatalf("Unknown format %q: want csv or jsonl", *format)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	listings, err := database.NewListingRepository(db).GetAllListings(ctx)
	if err != nil {
		logger.Error("failed to read listings", "error", err)
		os.Exit(1)
	}

	if err := write(*format, *out, listings); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	logger.Info("export finished", "format", *format, "path", *out, "listings", len(listings))
}

func write(format, path string, listings []models.NormalizedListing) error {
	switch format {
	case "jsonl":
		w, err := export.NewJSONLWriter(path)
		if err != nil {
			return err
		}
		if err := w.Write(listings); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	default:
		w, err := export.NewCSVWriter(path)
		if err != nil {
			return err
		}
		if err := w.Write(listings); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
}
