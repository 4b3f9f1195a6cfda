package domain

import (
	"context"
	"errors"
)

var (
	// ErrUnknownStore is returned when a request names a store that is
	// neither android nor ios.
	ErrUnknownStore = errors.New("unknown store")
	// ErrNoReviews marks an export request that matched nothing.
	ErrNoReviews = errors.New("no reviews to export")
)

// StoreClient is one review source (Play Store or App Store). Search and
// FetchReviews failures are source-local: implementations return transport
// errors, callers decide whether to degrade.
type StoreClient interface {
	Store() Store
	Search(ctx context.Context, query, region string) ([]AppSearchResult, error)
	Lookup(ctx context.Context, appID, region string) (AppSearchResult, error)
	// FetchReviews scrapes one region's feed for one app.
	FetchReviews(ctx context.Context, appID, region string) ([]Review, error)
	// Regions is the static catalog of regions this source serves.
	Regions() []string
	// PrimaryRegions is the subset scraped when the caller names no region.
	PrimaryRegions() []string
}

// ReviewRepository is satisfied by both the durable MySQL backend and the
// bounded in-memory fallback.
type ReviewRepository interface {
	UpsertReviews(ctx context.Context, rs []Review) error
	UpsertApp(ctx context.Context, app AppSearchResult) error
	// ListReviews applies the filter, sorts by date descending and returns
	// the page plus the total count before pagination.
	ListReviews(ctx context.Context, f FilterSpec) ([]Review, int, error)
	Close() error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
