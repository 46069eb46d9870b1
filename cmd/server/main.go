// Package main starts the page delivery service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/database"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/mail"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/pipeline"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/raster"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/selection"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/server"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/signing"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/viewer"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err == nil {
		log.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	mgr, err := scratch.NewManager(cfg.ScratchDir)
	if err != nil {
		return err
	}

	fetcher, err := buildFetcher(cfg, log)
	if err != nil {
		return err
	}

	renderer := raster.NewFitzRenderer(cfg.RenderDPI)
	rasterizer := raster.NewService(renderer, log)

	mailer, err := mail.New(cfg)
	if err != nil {
		return err
	}

	pipe := pipeline.New(cfg, mgr, fetcher, rasterizer, store, mailer, log)
	vw := viewer.NewService(store, fetcher, renderer, mgr, log)

	var signer *signing.Signer
	if len(cfg.SigningSecret) > 0 {
		signer = signing.NewSigner(cfg.SigningSecret)
	} else {
		log.Warn("no signing secret configured, document proxy accepts unsigned URLs")
	}

	srv := server.New(cfg, pipe, vw, signer, log)
	return srv.Run(ctx)
}

// buildStore connects Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise, so the service runs without infrastructure in
// development.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (selection.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, selection records are held in memory only")
		return selection.NewMemoryStore(), func() {}, nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("connected to postgres")
	return selection.NewPostgresStore(pool), pool.Close, nil
}

// buildFetcher wires the HTTP fetcher, plus the object-storage fetcher for
// s3:// catalog sources when an endpoint is configured.
func buildFetcher(cfg *config.Config, log *slog.Logger) (fetch.Fetcher, error) {
	httpFetcher := fetch.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxFetchBytes)
	if cfg.S3Endpoint == "" {
		return &fetch.Router{HTTP: httpFetcher}, nil
	}
	object, err := fetch.NewObjectFetcher(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("object storage fetcher enabled", "endpoint", cfg.S3Endpoint)
	return &fetch.Router{HTTP: httpFetcher, Object: object}, nil
}
