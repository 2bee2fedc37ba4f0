package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/okoval/grocery-price-scraper/internal/config"
	"github.com/okoval/grocery-price-scraper/internal/database"
	"github.com/okoval/grocery-price-scraper/internal/events"
	"github.com/okoval/grocery-price-scraper/internal/ingest"
	"github.com/okoval/grocery-price-scraper/internal/session"
	"github.com/okoval/grocery-price-scraper/pkg/logger"
)

func main() {
	var (
		file = flag.String("file", "", "Single session artifact to ingest")
		dir  = flag.String("dir", "", "Directory of session artifacts to ingest")
	)
	flag.Parse()

	if *file == "" && *dir == "" {
		log.Fatal("Either -file or -dir is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

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

	listings := database.NewListingRepository(db)
	publisher := events.NewPublisher(database.NewOutboxRepository(db, cfg.Redis.Stream), cfg.Redis.Stream)
	ingestor := ingest.NewIngestor(db, listings, publisher)

	paths := []string{}
	if *file != "" {
		paths = append(paths, *file)
	}
	if *dir != "" {
		found, err := session.List(*dir)
		if err != nil {
			logger.Error("failed to list session directory", "error", err)
			os.Exit(1)
		}
		paths = append(paths, found...)
	}

	if len(paths) == 0 {
		logger.Info("no session artifacts to ingest")
		return
	}

	failed := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			logger.Info("ingest interrupted")
			break
		}

		s, err := session.Load(path)
		if err != nil {
			logger.Error("failed to load session", "path", path, "error", err)
			failed++
			continue
		}

		summary, err := ingestor.IngestSession(ctx, s)
		if err != nil {
			logger.Error("failed to ingest session", "path", path, "error", err)
			failed++
			continue
		}

		logger.Info("artifact ingested",
			"path", path,
			"total", summary.Total,
			"new", summary.New,
			"changed", summary.Changed,
			"unchanged", summary.Unchanged)
	}

	if failed > 0 {
		logger.Error("ingest finished with failures", "failed", failed, "total", len(paths))
		os.Exit(1)
	}
	logger.Info("ingest finished", "artifacts", len(paths))
}
