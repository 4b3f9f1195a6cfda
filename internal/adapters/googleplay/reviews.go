package googleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const reviewsRPCID = "UsvDTd"

// FetchReviews walks one region's review feed through the batchexecute RPC,
// newest first, following the pagination token until an empty page, a missing
// token, or the page/review bounds are hit. A short delay separates page
// requests to stay under the storefront's throttling radar.
func (c *Client) FetchReviews(ctx context.Context, appID, region string) ([]domain.Review, error) {
	lang := LangForRegion(region)

	seen := make(map[string]struct{})
	var out []domain.Review
	token := ""
	for page := 0; page < c.maxPages && len(out) < c.maxTotal; page++ {
		if page > 0 && !sleepCtx(ctx, c.pageDelay) {
			return out, ctx.Err()
		}
		batch, next, err := c.reviewsPage(ctx, appID, region, lang, token)
		if err != nil {
			return out, err
		}
		if len(batch) == 0 {
			break
		}
		for _, rv := range batch {
			if _, dup := seen[rv.ID]; dup {
				continue
			}
			seen[rv.ID] = struct{}{}
			out = append(out, rv)
		}
		if next == "" {
			break
		}
		token = next
	}
	return out, nil
}

func (c *Client) reviewsPage(ctx context.Context, appID, region, lang, token string) ([]domain.Review, string, error) {
	u := fmt.Sprintf("%s/_/PlayStoreUi/data/batchexecute?rpcids=%s&hl=%s&gl=%s",
		c.base, reviewsRPCID, lang, url.QueryEscape(region))

	body, err := c.fetch(ctx, http.MethodPost, u, reviewsForm(appID, c.pageSize, token), "reviews")
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 8<<20))
	if err != nil {
		return nil, "", err
	}
	payload, err := rpcPayload(raw)
	if err != nil {
		return nil, "", err
	}
	return parseReviewsPayload(payload, appID, region)
}

// reviewsForm builds the f.req envelope for one reviews page. Sort 2 is
// newest-first; an empty token requests the first page.
func reviewsForm(appID string, pageSize int, token string) string {
	var tok any
	if token != "" {
		tok = token
	}
	inner, _ := json.Marshal([]any{nil, nil, []any{2, nil, []any{pageSize, nil, tok}}, []any{appID, 7}})
	envelope, _ := json.Marshal([][][]any{{{reviewsRPCID, string(inner), nil, "generic"}}})
	return "f.req=" + url.QueryEscape(string(envelope))
}

// rpcPayload strips the anti-JSON prefix and digs the rpc's payload string
// out of the batchexecute envelope.
func rpcPayload(raw []byte) (string, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, ")]}'")
	var outer []any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &outer); err != nil {
		return "", fmt.Errorf("batchexecute envelope: %w", err)
	}
	for _, frame := range outer {
		arr, ok := frame.([]any)
		if !ok || len(arr) < 3 {
			continue
		}
		if kind, _ := arr[0].(string); kind != "wrb.fr" {
			continue
		}
		if id, _ := arr[1].(string); id != reviewsRPCID {
			continue
		}
		payload, ok := arr[2].(string)
		if !ok {
			return "", fmt.Errorf("batchexecute: %s frame carries no payload", reviewsRPCID)
		}
		return payload, nil
	}
	return "", fmt.Errorf("batchexecute: no %s frame in response", reviewsRPCID)
}

// Positions inside one review entry of the payload.
const (
	posID      = 0
	posAuthor  = 1
	posRating  = 2
	posText    = 4
	posDate    = 5
	posReply   = 7
	posVersion = 10
)

// parseReviewsPayload converts the untyped payload into canonical reviews.
// This is the validation boundary: entries missing an id, an author or text,
// or carrying an out-of-range rating, are dropped rather than forwarded.
func parseReviewsPayload(payload, appID, region string) ([]domain.Review, string, error) {
	var root []any
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return nil, "", fmt.Errorf("reviews payload: %w", err)
	}
	if len(root) == 0 {
		return nil, "", nil
	}
	entries, _ := root[0].([]any)

	var out []domain.Review
	for _, e := range entries {
		entry, ok := e.([]any)
		if !ok {
			continue
		}
		rv, ok := parseReviewEntry(entry, appID, region)
		if !ok {
			continue
		}
		out = append(out, rv)
	}

	next := ""
	if len(root) > 1 {
		if meta, ok := root[1].([]any); ok && len(meta) > 1 {
			next, _ = meta[1].(string)
		}
	}
	return out, next, nil
}

func parseReviewEntry(entry []any, appID, region string) (domain.Review, bool) {
	id := strAt(entry, posID)
	text := strings.TrimSpace(strAt(entry, posText))
	author := ""
	if a, ok := at(entry, posAuthor).([]any); ok && len(a) > 0 {
		author, _ = a[0].(string)
	}
	if id == "" || text == "" || author == "" {
		return domain.Review{}, false
	}
	rating := intAt(entry, posRating)
	if rating < 1 || rating > 5 {
		return domain.Review{}, false
	}

	rv := domain.Review{
		ID:      id,
		AppID:   appID,
		Store:   domain.StoreAndroid,
		Rating:  rating,
		Content: text,
		Author:  author,
		Region:  region,
		Version: strAt(entry, posVersion),
	}
	if ts, ok := at(entry, posDate).([]any); ok && len(ts) > 0 {
		if secs, ok := ts[0].(float64); ok {
			rv.Date = time.Unix(int64(secs), 0).UTC()
		}
	}
	// Reply presence is the only helpfulness signal the feed exposes.
	if at(entry, posReply) != nil {
		rv.Helpful = 1
	}
	return rv, true
}

func at(arr []any, i int) any {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}

func strAt(arr []any, i int) string {
	s, _ := at(arr, i).(string)
	return s
}

func intAt(arr []any, i int) int {
	f, _ := at(arr, i).(float64)
	return int(f)
}
