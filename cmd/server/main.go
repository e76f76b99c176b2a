package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sujalbistaa/karmafeed/internal/api"
	"github.com/sujalbistaa/karmafeed/internal/compose"
	"github.com/sujalbistaa/karmafeed/internal/config"
	"github.com/sujalbistaa/karmafeed/internal/db"
	"github.com/sujalbistaa/karmafeed/internal/feed"
	routes "github.com/sujalbistaa/karmafeed/internal/http"
	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Production sets variables directly; a missing .env is fine.
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, reading from environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init("karmafeed", version)

	// 1. Draft database
	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	logger.Info("Running database migrations...")
	if err := db.Migrate(database); err != nil {
		return err
	}
	drafts := db.NewDraftStore(database)

	// 2. Collaborator client and engine
	client := api.NewClient(cfg.APIBaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithRateLimit(cfg.ClientRPS, cfg.ClientBurst),
		api.WithLogger(logger),
	)
	viewer := models.UserRef{ID: cfg.UserID, Username: cfg.Username}
	engine := feed.New(client, feed.Options{
		Viewer:              viewer,
		MaxReplyDepth:       cfg.MaxReplyDepth,
		LeaderboardInterval: cfg.LeaderboardInterval,
		Composer:            compose.NewComposer(drafts, cfg.MaxContentLength, logger),
		Logger:              logger,
	})
	// A failed first page is not fatal; POST /api/feed/refresh retries.
	if err := engine.Start(ctx); err != nil {
		logger.Warn("Initial feed load failed", "error", err)
	}
	defer engine.Stop()

	// 3. Router
	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupRoutes(ctx, router, &routes.Env{Engine: engine, Drafts: drafts, Logger: logger}, routes.RouteConfig{
		CORSOrigin: cfg.CORSOrigin,
		Actor:      viewer,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", "port", cfg.Port, "api", cfg.APIBaseURL, "user", viewer.Username)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
