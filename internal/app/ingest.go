package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

// IngestRequest describes one ingestion run. Region empty means "the
// adapter's default region set"; AppName, when set, overrides the catalog
// title on every review of the batch.
type IngestRequest struct {
	AppID   string
	Store   domain.Store
	AppName string
	Region  string
}

type IngestService struct {
	clients map[domain.Store]domain.StoreClient
	repo    domain.ReviewRepository
	cache   domain.Cache
}

func NewIngestService(repo domain.ReviewRepository, cache domain.Cache, clients ...domain.StoreClient) *IngestService {
	m := make(map[domain.Store]domain.StoreClient, len(clients))
	for _, c := range clients {
		m[c.Store()] = c
	}
	return &IngestService{clients: m, repo: repo, cache: cache}
}

// Ingest runs one acquisition: per-region fan-out against the store's
// adapter, join, dedup, name normalization, upsert. A region's failure is
// logged and contributes zero reviews; it never aborts sibling regions or
// the run.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) ([]domain.Review, error) {
	client, ok := s.clients[req.Store]
	if !ok {
		return nil, fmt.Errorf("ingest %s: %w", req.Store, domain.ErrUnknownStore)
	}

	// Resolve the catalog entry once; scraping proceeds even when the
	// lookup fails, the batch just keeps the caller-supplied name (if any).
	appName := req.AppName
	catalog, lookupErr := client.Lookup(ctx, req.AppID, req.Region)
	if lookupErr != nil {
		log.Warn().Err(lookupErr).
			Str("store", string(req.Store)).
			Str("app", req.AppID).
			Msg("app lookup failed")
	} else if appName == "" {
		appName = catalog.Name
	}

	regions := []string{req.Region}
	if req.Region == "" {
		regions = client.PrimaryRegions()
	}

	// One concurrent fetch per region; each task captures its own error and
	// converts it to a zero contribution. The join waits for all of them.
	batches := make([][]domain.Review, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			rs, err := client.FetchReviews(gctx, req.AppID, region)
			if err != nil {
				log.Warn().Err(err).
					Str("store", string(req.Store)).
					Str("app", req.AppID).
					Str("region", region).
					Msg("region fetch failed")
				return nil
			}
			batches[i] = rs
			return nil
		})
	}
	_ = g.Wait()

	var combined []domain.Review
	for _, b := range batches {
		combined = append(combined, b...)
	}
	reviews := mergeReviews(combined)

	if appName != "" {
		for i := range reviews {
			reviews[i].AppName = appName
		}
	}

	if len(reviews) > 0 {
		if err := s.repo.UpsertReviews(ctx, reviews); err != nil {
			return nil, fmt.Errorf("upsert reviews for %s: %w", req.AppID, err)
		}
	}
	if lookupErr == nil {
		if appName != "" {
			catalog.Name = appName
		}
		if err := s.repo.UpsertApp(ctx, catalog); err != nil {
			log.Warn().Err(err).Str("app", req.AppID).Msg("catalog upsert failed")
		}
	}
	if s.cache != nil && len(reviews) > 0 {
		invalidateQueries(ctx, s.cache)
	}

	log.Info().
		Str("store", string(req.Store)).
		Str("app", req.AppID).
		Int("regions", len(regions)).
		Int("reviews", len(reviews)).
		Msg("ingest run completed")
	return reviews, nil
}
