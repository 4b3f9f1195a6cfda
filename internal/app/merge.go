package app

import "github.com/NikitaSamutin/store-reviews-parser/internal/domain"

// mergeReviews collapses a fan-out batch into the canonical set keyed by
// (id, store, region). Records keep their first-arrival position; a later
// record with the same key silently replaces the earlier one, which makes
// re-ingesting the same batch idempotent. Pure over its input: cross-run
// duplicates are the storage engine's upsert to reconcile.
func mergeReviews(in []domain.Review) []domain.Review {
	byKey := make(map[domain.ReviewKey]domain.Review, len(in))
	order := make([]domain.ReviewKey, 0, len(in))
	for _, rv := range in {
		k := rv.Key()
		if _, exists := byKey[k]; !exists {
			order = append(order, k)
		}
		byKey[k] = rv
	}
	out := make([]domain.Review, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}
