package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/appstore"
	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/googleplay"
	server "github.com/NikitaSamutin/store-reviews-parser/internal/adapters/http_server"
	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/observability"
	redisad "github.com/NikitaSamutin/store-reviews-parser/internal/adapters/redis"
	"github.com/NikitaSamutin/store-reviews-parser/internal/app"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
	"github.com/NikitaSamutin/store-reviews-parser/internal/shared"
	"github.com/NikitaSamutin/store-reviews-parser/internal/storage/memory"
	mysqlrepo "github.com/NikitaSamutin/store-reviews-parser/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	repo := openStorage(cfg)
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("storage close failed")
		}
	}()

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	play := googleplay.New(googleplay.Config{
		BaseURL:    cfg.PlayBaseURL,
		MaxPages:   cfg.ScrapeMaxPages,
		MaxReviews: cfg.ScrapeMaxReviews,
		PageDelay:  cfg.ScrapePageDelay,
	})
	itunes := appstore.New(cfg.ITunesBase, 10)

	ing := app.NewIngestService(repo, cache, play, itunes)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL, play, itunes)
	exp := app.NewExportService()

	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Ingest: ing, Q: q, Export: exp})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
}

// openStorage prefers the durable MySQL backend; when it cannot be reached
// the bounded in-memory fallback takes over. This is a startup-time
// decision, not a per-request retry.
func openStorage(cfg shared.Config) domain.ReviewRepository {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		log.Warn().Err(err).Int("cap", cfg.MemoryCap).Msg("mysql unavailable, using bounded in-memory store")
		return memory.New(cfg.MemoryCap)
	}

	repo := mysqlrepo.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("mysql schema bootstrap failed, using bounded in-memory store")
		_ = db.Close()
		return memory.New(cfg.MemoryCap)
	}
	log.Info().Msg("database connection ok")
	return repo
}
