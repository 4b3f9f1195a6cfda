package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const cacheVersionKey = "reviews:ver"

type QueryService struct {
	repo     domain.ReviewRepository
	clients  map[domain.Store]domain.StoreClient
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(repo domain.ReviewRepository, cache domain.Cache, ttl time.Duration, clients ...domain.StoreClient) *QueryService {
	m := make(map[domain.Store]domain.StoreClient, len(clients))
	for _, c := range clients {
		m[c.Store()] = c
	}
	return &QueryService{repo: repo, clients: m, cache: cache, cacheTTL: ttl}
}

type reviewsPage struct {
	Reviews []domain.Review `json:"reviews"`
	Total   int             `json:"total"`
}

// ListReviews answers a filtered, paginated query, serving repeated filters
// from the cache until the next ingest bumps the version key.
func (s *QueryService) ListReviews(ctx context.Context, f domain.FilterSpec) ([]domain.Review, int, error) {
	if f.Store != "" && !f.Store.Valid() {
		return nil, 0, fmt.Errorf("list reviews: %w", domain.ErrUnknownStore)
	}

	key := ""
	if s.cache != nil {
		key = s.pageKey(ctx, f)
		var page reviewsPage
		if ok, _ := s.cache.Get(ctx, key, &page); ok {
			return page.Reviews, page.Total, nil
		}
	}

	reviews, total, err := s.repo.ListReviews(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	if s.cache != nil {
		page := reviewsPage{Reviews: reviews, Total: total}
		// size guard
		if b, _ := json.Marshal(page); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, page, int(s.cacheTTL.Seconds()))
		}
	}
	return reviews, total, nil
}

// SearchApps queries the requested store (or both), degrading each failing
// source to an empty contribution. At most 10 merged results.
func (s *QueryService) SearchApps(ctx context.Context, query, region string, store domain.Store) ([]domain.AppSearchResult, error) {
	if store != "" && !store.Valid() {
		return nil, fmt.Errorf("search %s: %w", store, domain.ErrUnknownStore)
	}

	merged := make([]domain.AppSearchResult, 0, 10)
	for _, st := range []domain.Store{domain.StoreAndroid, domain.StoreIOS} {
		if store != "" && store != st {
			continue
		}
		client, ok := s.clients[st]
		if !ok {
			continue
		}
		results, err := client.Search(ctx, query, region)
		if err != nil {
			log.Warn().Err(err).Str("store", string(st)).Str("query", query).Msg("search failed")
			continue
		}
		merged = append(merged, results...)
	}
	if len(merged) > 10 {
		merged = merged[:10]
	}
	return merged, nil
}

// Regions returns the region catalog shown to clients (the iOS storefront's
// list, the broader of the two).
func (s *QueryService) Regions() []string {
	if c, ok := s.clients[domain.StoreIOS]; ok {
		return c.Regions()
	}
	if c, ok := s.clients[domain.StoreAndroid]; ok {
		return c.Regions()
	}
	return nil
}

// pageKey derives the cache key from the filter and the current cache
// generation, so ingests invalidate every cached page at once.
func (s *QueryService) pageKey(ctx context.Context, f domain.FilterSpec) string {
	ver := "0"
	_, _ = s.cache.Get(ctx, cacheVersionKey, &ver)
	b, _ := json.Marshal(struct {
		F   domain.FilterSpec
		Ver string
	}{f, ver})
	sum := sha1.Sum(b)
	return "reviews:q:" + hex.EncodeToString(sum[:])
}

// invalidateQueries starts a new cache generation. Old page entries age out
// by TTL.
func invalidateQueries(ctx context.Context, cache domain.Cache) {
	ver := fmt.Sprintf("%d", time.Now().UnixNano())
	if err := cache.Set(ctx, cacheVersionKey, ver, 0); err != nil {
		log.Warn().Err(err).Msg("cache version bump failed")
	}
}
