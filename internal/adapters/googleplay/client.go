// internal/adapters/googleplay/client.go
package googleplay

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/observability"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const (
	defaultBaseURL   = "https://play.google.com"
	defaultPageSize  = 200
	defaultMaxPages  = 10
	defaultMaxTotal  = 1000
	defaultPageDelay = 100 * time.Millisecond
)

type Config struct {
	BaseURL string
	RPS     int
	// Pagination bounds for one region's review walk.
	PageSize   int
	MaxPages   int
	MaxReviews int
	PageDelay  time.Duration
}

// Client scrapes the Play Store web front end: HTML pages for search and
// app lookup, the batchexecute RPC for reviews.
type Client struct {
	base      string
	hc        *http.Client
	rl        *rate.Limiter
	pageSize  int
	maxPages  int
	maxTotal  int
	pageDelay time.Duration
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.MaxReviews <= 0 {
		cfg.MaxReviews = defaultMaxTotal
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = defaultPageDelay
	}
	return &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		hc:        &http.Client{Timeout: 20 * time.Second},
		rl:        rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		maxTotal:  cfg.MaxReviews,
		pageDelay: cfg.PageDelay,
	}
}

func (c *Client) Store() domain.Store { return domain.StoreAndroid }

// Search scrapes the store search page. At most 10 results; a transport
// error is the caller's to degrade on.
func (c *Client) Search(ctx context.Context, query, region string) ([]domain.AppSearchResult, error) {
	if region == "" {
		region = "us"
	}
	u := fmt.Sprintf("%s/store/search?q=%s&c=apps&gl=%s&hl=%s",
		c.base, url.QueryEscape(query), url.QueryEscape(region), LangForRegion(region))
	body, err := c.fetch(ctx, http.MethodGet, u, "", "search")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	seen := make(map[string]struct{})
	var out []domain.AppSearchResult
	doc.Find(`a[href^="/store/apps/details?id="]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		id := appIDFromHref(href)
		if id == "" {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		name := strings.TrimSpace(sel.AttrOr("aria-label", ""))
		if name == "" {
			name = strings.TrimSpace(sel.Text())
		}
		if name == "" {
			return true
		}
		seen[id] = struct{}{}
		out = append(out, domain.AppSearchResult{
			ID:        id,
			Name:      name,
			Developer: strings.TrimSpace(sel.AttrOr("data-developer", "")),
			Icon:      sel.Find("img").AttrOr("src", ""),
			Store:     domain.StoreAndroid,
		})
		return len(out) < 10
	})
	return out, nil
}

// Lookup resolves an app's catalog entry from its details page.
func (c *Client) Lookup(ctx context.Context, appID, region string) (domain.AppSearchResult, error) {
	if region == "" {
		region = "us"
	}
	u := fmt.Sprintf("%s/store/apps/details?id=%s&gl=%s&hl=%s",
		c.base, url.QueryEscape(appID), url.QueryEscape(region), LangForRegion(region))
	body, err := c.fetch(ctx, http.MethodGet, u, "", "details")
	if err != nil {
		return domain.AppSearchResult{}, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return domain.AppSearchResult{}, fmt.Errorf("parse details page: %w", err)
	}

	title := doc.Find(`meta[property="og:title"]`).AttrOr("content", "")
	// og:title carries a store suffix ("X - Apps on Google Play").
	if i := strings.Index(title, " - Apps on Google Play"); i > 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.AppSearchResult{}, fmt.Errorf("app %s: no title on details page", appID)
	}
	dev := strings.TrimSpace(doc.Find(`a[href^="/store/apps/developer"]`).First().Text())
	return domain.AppSearchResult{
		ID:        appID,
		Name:      title,
		Developer: dev,
		Icon:      doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
		Store:     domain.StoreAndroid,
	}, nil
}

func appIDFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("id")
}

// ---- transport ----

// fetch performs one request with client-side rate limiting and retries on
// 429/transient 5xx, honoring Retry-After when provided. The caller owns the
// returned body.
func (c *Client) fetch(ctx context.Context, method, u, form, endpoint string) (io.ReadCloser, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	status := 0
	defer func() {
		observability.ObserveStore(string(domain.StoreAndroid), endpoint, status, time.Since(start))
	}()

	var lastErr error
	for i := 0; i < 4; i++ {
		var reqBody io.Reader
		if form != "" {
			reqBody = strings.NewReader(form)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "store-reviews-parser/1.0")
		if form != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return nil, lastErr
		}

		status = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusOK:
			return resp.Body, nil

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("google play: %s: not found", u)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("google play: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("google play: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return nil, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
