package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/galleryscape/listingd/pkg/app/http"
	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/listingstore"
	"github.com/galleryscape/listingd/pkg/pgutil"
	"github.com/galleryscape/listingd/pkg/search"
	"github.com/galleryscape/listingd/pkg/snapcache"
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

	logger.Info("Starting listing API server",
		zap.String("config", *configPath),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

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

	// Snapshot cache with background refresh for the flat feed
	cache := snapcache.New(store, logger)
	stopRefresh := cache.StartRefreshLoop(cfg.Cache.RefreshInterval)
	defer stopRefresh()

	svc := search.NewLog(search.NewService(store, cache), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	search.RegisterRoutes(r, svc, logger, cfg.Sync.BlankValueID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := apphttp.ServeAndWait(ctx, r, logger, &cfg.Server); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
}
