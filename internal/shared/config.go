package shared

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	PlayBaseURL string
	ITunesBase  string
	// Scrape bounds for the Play cursor walk.
	ScrapeMaxPages   int
	ScrapeMaxReviews int
	ScrapePageDelay  time.Duration
	// One-shot ingestor settings.
	Workers    int
	IngestApps []string
	// Bounded fallback store ceiling.
	MemoryCap int
	CacheTTL  time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ":9100"),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RedisDB:          atoi("REDIS_DB", 0),
		PlayBaseURL:      env("PLAY_BASE_URL", "https://play.google.com"),
		ITunesBase:       env("ITUNES_BASE_URL", "https://itunes.apple.com"),
		ScrapeMaxPages:   atoi("SCRAPE_MAX_PAGES", 10),
		ScrapeMaxReviews: atoi("SCRAPE_MAX_REVIEWS", 1000),
		ScrapePageDelay:  time.Duration(atoi("SCRAPE_PAGE_DELAY_MS", 100)) * time.Millisecond,
		Workers:          atoi("INGEST_WORKERS", 4),
		MemoryCap:        atoi("MEMORY_STORE_CAP", 10000),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if apps := env("INGEST_APPS", ""); apps != "" {
		for _, a := range strings.Split(apps, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.IngestApps = append(c.IngestApps, a)
			}
		}
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
