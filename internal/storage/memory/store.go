// Package memory is the bounded in-process fallback used when the durable
// store cannot be reached at startup. It holds at most a fixed number of
// records, evicting the oldest-dated reviews first.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const DefaultCapacity = 10000

type appKey struct {
	ID    string
	Store domain.Store
}

type Store struct {
	mu       sync.RWMutex
	capacity int
	reviews  map[domain.ReviewKey]domain.Review
	apps     map[appKey]domain.AppSearchResult
	closed   bool
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		reviews:  make(map[domain.ReviewKey]domain.Review),
		apps:     make(map[appKey]domain.AppSearchResult),
	}
}

// UpsertReviews inserts or replaces by (id, store, region), then enforces the
// capacity ceiling by dropping the oldest-by-date records.
func (s *Store) UpsertReviews(_ context.Context, rs []domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rv := range rs {
		s.reviews[rv.Key()] = rv
	}
	s.evictLocked()
	return nil
}

func (s *Store) evictLocked() {
	over := len(s.reviews) - s.capacity
	if over <= 0 {
		return
	}
	all := make([]domain.Review, 0, len(s.reviews))
	for _, rv := range s.reviews {
		all = append(all, rv)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].ID < all[j].ID
	})
	for _, rv := range all[:over] {
		delete(s.reviews, rv.Key())
	}
}

func (s *Store) UpsertApp(_ context.Context, app domain.AppSearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[appKey{ID: app.ID, Store: app.Store}] = app
	return nil
}

// ListReviews filters, sorts by date descending and paginates; total is the
// filtered count before the page is cut. No match means (nil, 0), never an
// error.
func (s *Store) ListReviews(_ context.Context, f domain.FilterSpec) ([]domain.Review, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Review
	for _, rv := range s.reviews {
		if f.Matches(rv) {
			matched = append(matched, rv)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	offset := f.Offset
	if offset > total {
		offset = total
	}
	page := matched[offset:]
	if f.Limit > 0 && f.Limit < len(page) {
		page = page[:f.Limit]
	}
	out := make([]domain.Review, len(page))
	copy(out, page)
	return out, total, nil
}

// Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.reviews = make(map[domain.ReviewKey]domain.Review)
		s.apps = make(map[appKey]domain.AppSearchResult)
	}
	return nil
}

// Len reports the number of retained reviews.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reviews)
}
