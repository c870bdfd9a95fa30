package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/listingstore"
	"github.com/galleryscape/listingd/pkg/marketfeed"
	"github.com/galleryscape/listingd/pkg/pgutil"
	"github.com/galleryscape/listingd/pkg/syncer"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting listing sync worker",
		zap.String("config", *configPath),
		zap.String("collection", cfg.Market.Collection),
		zap.Duration("interval", cfg.Sync.Interval))

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	store := listingstore.New(db, cfg.Sync.BlankValueID)
	feed := marketfeed.NewClient(logger, cfg.Market)
	engine := syncer.New(store, feed, logger, cfg.Sync)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		logger.Fatal("Sync loop failed", zap.Error(err))
	}
}
