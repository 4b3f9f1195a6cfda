package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

func label(s string) feedLabel { return feedLabel{Label: s} }

func entry(id, title, content, author, rating, version string, updated time.Time) feedEntry {
	var e feedEntry
	e.ID = label(id)
	e.Title = label(title)
	e.Content = label(content)
	e.Author.Name = label(author)
	e.Rating = label(rating)
	e.Version = label(version)
	e.Updated = label(updated.Format(time.RFC3339))
	return e
}

// appEntry is the feed's leading self-description record, not a review.
func appEntry(appID string) feedEntry {
	var e feedEntry
	e.ID = label(appID)
	e.Title = label("Example App")
	return e
}

func writeFeed(t *testing.T, w http.ResponseWriter, entries ...feedEntry) {
	t.Helper()
	var resp feedResponse
	resp.Feed.Entry = entries
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode feed: %v", err)
	}
}

var pageRe = regexp.MustCompile(`/page=(\d+)/`)

func pageOf(path string) string {
	m := pageRe.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

func TestFetchReviews_AllPagesMerged(t *testing.T) {
	day := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch pageOf(r.URL.Path) {
		case "1":
			writeFeed(t, w, appEntry("1234"),
				entry("a", "Great", "love it", "alice", "5", "2.0", day),
				entry("b", "", "ok", "bob", "3", "2.0", day.Add(-time.Hour)))
		case "2":
			writeFeed(t, w, appEntry("1234"),
				entry("b", "", "ok", "bob", "3", "2.0", day.Add(-time.Hour)), // overlap
				entry("c", "Bad", "crashes", "carol", "1", "1.9", day.Add(-2*time.Hour)))
		default:
			writeFeed(t, w, appEntry("1234"))
		}
	}))
	defer srv.Close()

	got, err := New(srv.URL, 100).FetchReviews(context.Background(), "1234", "us")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 deduplicated reviews, got %d", len(got))
	}
	r := got[0]
	if r.ID != "a" || r.Title != "Great" || r.Rating != 5 || r.Region != "us" || r.AppID != "1234" {
		t.Fatalf("first review mangled: %+v", r)
	}
	if !r.Date.Equal(day) {
		t.Fatalf("date: %v", r.Date)
	}
}

func TestFetchReviews_FailedPageIsolated(t *testing.T) {
	day := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch pageOf(r.URL.Path) {
		case "1":
			writeFeed(t, w, appEntry("1234"),
				entry("a", "t", "content", "alice", "5", "1.0", day))
		case "2":
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
		default:
			writeFeed(t, w, appEntry("1234"))
		}
	}))
	defer srv.Close()

	got, err := New(srv.URL, 100).FetchReviews(context.Background(), "1234", "us")
	if err != nil {
		t.Fatalf("one failed page must not fail the region: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("surviving pages must be kept: %+v", got)
	}
}

func TestFetchReviews_DropsMalformedEntries(t *testing.T) {
	day := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pageOf(r.URL.Path) != "1" {
			writeFeed(t, w, appEntry("1234"))
			return
		}
		bad := entry("bad-date", "t", "content", "dave", "4", "1.0", day)
		bad.Updated = label("yesterday-ish")
		writeFeed(t, w, appEntry("1234"),
			entry("ok", "t", "content", "alice", "4", "1.0", day),
			entry("", "t", "content", "bob", "4", "1.0", day),
			entry("no-rating", "t", "content", "carol", "", "1.0", day),
			entry("rating-range", "t", "content", "carol", "9", "1.0", day),
			bad)
	}))
	defer srv.Close()

	got, err := New(srv.URL, 100).FetchReviews(context.Background(), "1234", "us")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("only the valid entry should survive: %+v", got)
	}
}

func TestParseEntryKeepsValidRecord(t *testing.T) {
	day := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	rv, ok := parseEntry(entry("r1", "Great", "love it", "alice", "5", "2.0", day), "1234", "us")
	if !ok {
		t.Fatal("a complete entry must parse")
	}
	if rv.ID != "r1" || rv.Rating != 5 || rv.Author != "alice" || !rv.Date.Equal(day) {
		t.Fatalf("entry mangled: %+v", rv)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("entity") != "software" || q.Get("country") != "de" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"results":[
			{"trackId":1234,"trackName":"Example","artistName":"Dev Co","artworkUrl100":"https://img.test/a.png"},
			{"trackId":5678,"trackName":""}
		]}`)
	}))
	defer srv.Close()

	got, err := New(srv.URL, 100).Search(context.Background(), "example", "de")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("nameless results must be dropped, got %d", len(got))
	}
	if got[0].ID != "1234" || got[0].Name != "Example" || got[0].Developer != "Dev Co" {
		t.Fatalf("result: %+v", got[0])
	}
}

func TestLookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, 100).Lookup(context.Background(), "999", "us"); err == nil {
		t.Fatal("empty lookup result must be an error")
	}
}
