// Batch ingestor: acquires reviews for a configured list of apps
// (INGEST_APPS="android:com.example.app,ios:12345:us") with a bounded number
// of concurrent runs, then exits.
package main

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/appstore"
	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/googleplay"
	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/observability"
	redisad "github.com/NikitaSamutin/store-reviews-parser/internal/adapters/redis"
	"github.com/NikitaSamutin/store-reviews-parser/internal/app"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
	"github.com/NikitaSamutin/store-reviews-parser/internal/shared"
	mysqlrepo "github.com/NikitaSamutin/store-reviews-parser/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)
	log.Info().
		Int("workers", cfg.Workers).
		Int("apps", len(cfg.IngestApps)).
		Msg("ingestor starting")

	if len(cfg.IngestApps) == 0 {
		log.Fatal().Msg("INGEST_APPS is empty, nothing to do")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	repo := mysqlrepo.New(db)
	if err := repo.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema bootstrap failed")
	}
	defer repo.Close()

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	play := googleplay.New(googleplay.Config{
		BaseURL:    cfg.PlayBaseURL,
		MaxPages:   cfg.ScrapeMaxPages,
		MaxReviews: cfg.ScrapeMaxReviews,
		PageDelay:  cfg.ScrapePageDelay,
	})
	itunes := appstore.New(cfg.ITunesBase, 10)
	ing := app.NewIngestService(repo, cache, play, itunes)

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, spec := range cfg.IngestApps {
		req, ok := parseAppSpec(spec)
		if !ok {
			log.Warn().Str("spec", spec).Msg("skipping malformed app spec")
			continue
		}

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(req app.IngestRequest) {
			defer wg.Done()
			defer sem.Release(1)

			reviews, err := ing.Ingest(ctx, req)
			if err != nil {
				log.Warn().Str("app", req.AppID).Err(err).Msg("ingest failed")
				return
			}
			observability.ReviewsIngested.WithLabelValues(string(req.Store)).Add(float64(len(reviews)))
			log.Info().Str("app", req.AppID).Int("reviews", len(reviews)).Msg("ingest ok")
		}(req)
	}

	wg.Wait()
	log.Info().Msg("ingestion completed")
}

// parseAppSpec reads "store:appID" or "store:appID:region".
func parseAppSpec(spec string) (app.IngestRequest, bool) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return app.IngestRequest{}, false
	}
	req := app.IngestRequest{Store: domain.Store(parts[0]), AppID: parts[1]}
	if !req.Store.Valid() || req.AppID == "" {
		return app.IngestRequest{}, false
	}
	if len(parts) == 3 {
		req.Region = parts[2]
	}
	return req, true
}
