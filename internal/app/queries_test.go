package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NikitaSamutin/store-reviews-parser/internal/app"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
	"github.com/NikitaSamutin/store-reviews-parser/internal/storage/memory"
)

// memCache is a map-backed domain.Cache for tests.
type memCache struct {
	entries map[string][]byte
}

func newMemCache() *memCache { return &memCache{entries: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	b, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value any, ttlSec int) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = b
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

// countingRepo wraps a repository and counts ListReviews round trips.
type countingRepo struct {
	domain.ReviewRepository
	lists int
}

func (r *countingRepo) ListReviews(ctx context.Context, f domain.FilterSpec) ([]domain.Review, int, error) {
	r.lists++
	return r.ReviewRepository.ListReviews(ctx, f)
}

func seedRepo(t *testing.T, repo domain.ReviewRepository, reviews ...domain.Review) {
	t.Helper()
	if err := repo.UpsertReviews(context.Background(), reviews); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestListReviews_ServedFromCache(t *testing.T) {
	repo := &countingRepo{ReviewRepository: memory.New(100)}
	seedRepo(t, repo, review("a", "us", 5, 1), review("b", "us", 4, 2))
	svc := app.NewQueryService(repo, newMemCache(), time.Minute)

	f := domain.FilterSpec{AppID: "com.example.app", Limit: 50}
	for i := 0; i < 3; i++ {
		got, total, err := svc.ListReviews(context.Background(), f)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if total != 2 || len(got) != 2 {
			t.Fatalf("call %d: got %d/%d", i, len(got), total)
		}
	}
	if repo.lists != 1 {
		t.Fatalf("repeated identical queries must hit the repository once, got %d", repo.lists)
	}
}

func TestListReviews_IngestInvalidatesCache(t *testing.T) {
	repo := &countingRepo{ReviewRepository: memory.New(100)}
	cache := newMemCache()
	client := &fakeClient{
		store:    domain.StoreAndroid,
		name:     "Example",
		byRegion: map[string][]domain.Review{"us": {review("a", "us", 5, 1)}},
		primary:  []string{"us"},
	}
	ingest := app.NewIngestService(repo, cache, client)
	queries := app.NewQueryService(repo, cache, time.Minute)

	ctx := context.Background()
	f := domain.FilterSpec{AppID: "com.example.app", Limit: 50}

	if _, _, err := queries.ListReviews(ctx, f); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if _, err := ingest.Ingest(ctx, app.IngestRequest{AppID: "com.example.app", Store: domain.StoreAndroid}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, total, err := queries.ListReviews(ctx, f)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if total != 1 {
		t.Fatalf("post-ingest read must see the new record, got total %d", total)
	}
	if repo.lists != 2 {
		t.Fatalf("ingest must start a new cache generation, repo hit %d times", repo.lists)
	}
}

func TestListReviews_UnknownStore(t *testing.T) {
	svc := app.NewQueryService(memory.New(100), nil, 0)
	_, _, err := svc.ListReviews(context.Background(), domain.FilterSpec{Store: "windows"})
	if !errors.Is(err, domain.ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

func TestSearchApps_MergesAndDegrades(t *testing.T) {
	android := &fakeClient{
		store: domain.StoreAndroid,
		searches: []domain.AppSearchResult{
			{ID: "com.one", Name: "One", Store: domain.StoreAndroid},
		},
	}
	ios := &fakeClient{store: domain.StoreIOS, searchErr: errors.New("itunes down")}
	svc := app.NewQueryService(memory.New(100), nil, 0, android, ios)

	got, err := svc.SearchApps(context.Background(), "one", "us", "")
	if err != nil {
		t.Fatalf("a failing source must degrade, not abort: %v", err)
	}
	if len(got) != 1 || got[0].ID != "com.one" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestSearchApps_StoreFilter(t *testing.T) {
	android := &fakeClient{
		store:    domain.StoreAndroid,
		searches: []domain.AppSearchResult{{ID: "com.one", Store: domain.StoreAndroid}},
	}
	ios := &fakeClient{
		store:    domain.StoreIOS,
		searches: []domain.AppSearchResult{{ID: "42", Store: domain.StoreIOS}},
	}
	svc := app.NewQueryService(memory.New(100), nil, 0, android, ios)

	got, err := svc.SearchApps(context.Background(), "one", "us", domain.StoreIOS)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Store != domain.StoreIOS {
		t.Fatalf("expected only ios results, got %+v", got)
	}

	if _, err := svc.SearchApps(context.Background(), "one", "us", "windows"); !errors.Is(err, domain.ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

func TestRegions_PrefersIOSCatalog(t *testing.T) {
	android := &fakeClient{store: domain.StoreAndroid, primary: []string{"us"}}
	ios := &fakeClient{store: domain.StoreIOS, primary: []string{"us", "gb", "jp"}}
	svc := app.NewQueryService(memory.New(100), nil, 0, android, ios)

	if got := svc.Regions(); len(got) != 3 {
		t.Fatalf("expected the ios catalog, got %v", got)
	}
}
