package appstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

// RSS feed shapes. Only the labels we keep are mapped.

type feedLabel struct {
	Label string `json:"label"`
}

type feedEntry struct {
	ID      feedLabel `json:"id"`
	Title   feedLabel `json:"title"`
	Content feedLabel `json:"content"`
	Author  struct {
		Name feedLabel `json:"name"`
	} `json:"author"`
	Rating  feedLabel `json:"im:rating"`
	Version feedLabel `json:"im:version"`
	Updated feedLabel `json:"updated"`
}

type feedResponse struct {
	Feed struct {
		Entry []feedEntry `json:"entry"`
	} `json:"feed"`
}

// FetchReviews pulls all pages of one region's review feed concurrently. The
// feed exposes no cursor, so the fixed page set is requested in one burst;
// a failed page contributes nothing instead of failing the region.
func (c *Client) FetchReviews(ctx context.Context, appID, region string) ([]domain.Review, error) {
	pages := make([][]domain.Review, feedPages)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for page := 1; page <= feedPages; page++ {
		page := page
		g.Go(func() error {
			batch, err := c.reviewsPage(gctx, appID, region, page)
			if err != nil {
				// Page failures are isolated; the rest of the burst proceeds.
				return nil
			}
			mu.Lock()
			pages[page-1] = batch
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []domain.Review
	for _, batch := range pages {
		for _, rv := range batch {
			if _, dup := seen[rv.ID]; dup {
				continue
			}
			seen[rv.ID] = struct{}{}
			out = append(out, rv)
		}
	}
	return out, nil
}

func (c *Client) reviewsPage(ctx context.Context, appID, region string, page int) ([]domain.Review, error) {
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		c.base, region, page, appID)
	var resp feedResponse
	if err := c.getJSON(ctx, u, "reviews", &resp); err != nil {
		return nil, err
	}

	entries := resp.Feed.Entry
	if len(entries) <= 1 {
		return nil, nil
	}
	// The first entry describes the app itself, not a review.
	out := make([]domain.Review, 0, len(entries)-1)
	for _, e := range entries[1:] {
		rv, ok := parseEntry(e, appID, region)
		if !ok {
			continue
		}
		out = append(out, rv)
	}
	return out, nil
}

// parseEntry validates one feed entry; incomplete or malformed entries are
// dropped at this boundary.
func parseEntry(e feedEntry, appID, region string) (domain.Review, bool) {
	id := strings.TrimSpace(e.ID.Label)
	content := strings.TrimSpace(e.Content.Label)
	author := strings.TrimSpace(e.Author.Name.Label)
	if id == "" || content == "" || author == "" {
		return domain.Review{}, false
	}
	rating, err := strconv.Atoi(strings.TrimSpace(e.Rating.Label))
	if err != nil || rating < 1 || rating > 5 {
		return domain.Review{}, false
	}
	date, err := time.Parse(time.RFC3339, e.Updated.Label)
	if err != nil {
		return domain.Review{}, false
	}
	return domain.Review{
		ID:      id,
		AppID:   appID,
		Store:   domain.StoreIOS,
		Rating:  rating,
		Title:   strings.TrimSpace(e.Title.Label),
		Content: content,
		Author:  author,
		Date:    date.UTC(),
		Region:  region,
		Version: e.Version.Label,
	}, true
}
