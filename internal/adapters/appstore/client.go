// internal/adapters/appstore/client.go
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/observability"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const (
	defaultBaseURL = "https://itunes.apple.com"
	// The customer-reviews RSS feed serves at most this many pages.
	feedPages = 10
)

// Client talks to the iTunes search API and the customer-reviews RSS feed.
type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if base == "" {
		base = defaultBaseURL
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Store() domain.Store { return domain.StoreIOS }

var allRegions = []string{
	"ru", "us", "gb", "de", "fr", "it", "es", "jp", "kr", "cn",
	"au", "ca", "br", "mx", "in", "tr", "pl", "nl", "se", "no",
}

func (c *Client) Regions() []string {
	out := make([]string, len(allRegions))
	copy(out, allRegions)
	return out
}

// PrimaryRegions equals the full catalog: RSS pages are cheap enough to fan
// out everywhere.
func (c *Client) PrimaryRegions() []string { return c.Regions() }

// ---- search / lookup ----

type searchResponse struct {
	Results []struct {
		TrackID       json.Number `json:"trackId"`
		TrackName     string      `json:"trackName"`
		ArtistName    string      `json:"artistName"`
		ArtworkURL100 string      `json:"artworkUrl100"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query, region string) ([]domain.AppSearchResult, error) {
	if region == "" {
		region = "us"
	}
	u := fmt.Sprintf("%s/search?term=%s&country=%s&entity=software&limit=10",
		c.base, url.QueryEscape(query), url.QueryEscape(region))

	var resp searchResponse
	if err := c.getJSON(ctx, u, "search", &resp); err != nil {
		return nil, err
	}
	out := make([]domain.AppSearchResult, 0, len(resp.Results))
	for _, app := range resp.Results {
		if app.TrackID.String() == "" || app.TrackName == "" {
			continue
		}
		out = append(out, domain.AppSearchResult{
			ID:        app.TrackID.String(),
			Name:      app.TrackName,
			Developer: app.ArtistName,
			Icon:      app.ArtworkURL100,
			Store:     domain.StoreIOS,
		})
	}
	return out, nil
}

func (c *Client) Lookup(ctx context.Context, appID, region string) (domain.AppSearchResult, error) {
	if region == "" {
		region = "us"
	}
	u := fmt.Sprintf("%s/lookup?id=%s&country=%s", c.base, url.QueryEscape(appID), url.QueryEscape(region))
	var resp searchResponse
	if err := c.getJSON(ctx, u, "lookup", &resp); err != nil {
		return domain.AppSearchResult{}, err
	}
	if len(resp.Results) == 0 {
		return domain.AppSearchResult{}, fmt.Errorf("app store: app %s not found in %s", appID, region)
	}
	app := resp.Results[0]
	return domain.AppSearchResult{
		ID:        app.TrackID.String(),
		Name:      app.TrackName,
		Developer: app.ArtistName,
		Icon:      app.ArtworkURL100,
		Store:     domain.StoreIOS,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, u, endpoint string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "store-reviews-parser/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveStore(string(domain.StoreIOS), endpoint, 0, time.Since(start))
		return err
	}
	defer resp.Body.Close()
	observability.ObserveStore(string(domain.StoreIOS), endpoint, resp.StatusCode, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("app store: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
