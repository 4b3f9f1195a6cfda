package googleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:   baseURL,
		RPS:       100,
		PageSize:  10,
		MaxPages:  10,
		PageDelay: time.Millisecond,
	})
}

// reviewEntry builds one review record of the RPC payload.
func reviewEntry(id, author string, rating int, text, version string, date time.Time, withReply bool) []any {
	var reply any
	if withReply {
		reply = []any{"Thanks for the feedback"}
	}
	return []any{
		id,
		[]any{author},
		rating,
		nil,
		text,
		[]any{float64(date.Unix()), 0},
		nil,
		reply,
		nil,
		nil,
		version,
	}
}

// rpcResponse wraps review entries into a batchexecute body, anti-JSON prefix
// included.
func rpcResponse(t *testing.T, entries []any, nextToken string) string {
	t.Helper()
	var meta any
	if nextToken != "" {
		meta = []any{nil, nextToken}
	}
	payload, err := json.Marshal([]any{entries, meta})
	if err != nil {
		t.Fatal(err)
	}
	envelope, err := json.Marshal([]any{
		[]any{"wrb.fr", reviewsRPCID, string(payload), nil},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ")]}'\n\n" + string(envelope)
}

func TestFetchReviews_FollowsPaginationToken(t *testing.T) {
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, rpcResponse(t, []any{
				reviewEntry("r1", "alice", 5, "great", "1.0", day, false),
				reviewEntry("r2", "bob", 3, "meh", "1.0", day.Add(-time.Hour), true),
			}, "tok-2"))
		default:
			fmt.Fprint(w, rpcResponse(t, []any{
				reviewEntry("r2", "bob", 3, "meh", "1.0", day.Add(-time.Hour), true), // boundary dup
				reviewEntry("r3", "carol", 4, "fine", "1.1", day.Add(-2*time.Hour), false),
			}, ""))
		}
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchReviews(context.Background(), "com.example.app", "us")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls)
	}
	if len(got) != 3 {
		t.Fatalf("boundary duplicate must collapse: got %d reviews", len(got))
	}
	r := got[0]
	if r.ID != "r1" || r.Author != "alice" || r.Rating != 5 || r.Region != "us" || r.Version != "1.0" {
		t.Fatalf("first review mangled: %+v", r)
	}
	if !r.Date.Equal(day) {
		t.Fatalf("date: %v", r.Date)
	}
	if got[1].Helpful != 1 {
		t.Fatalf("a replied-to review should be flagged helpful: %+v", got[1])
	}
}

func TestFetchReviews_DropsInvalidEntries(t *testing.T) {
	day := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rpcResponse(t, []any{
			reviewEntry("ok", "alice", 5, "keeps", "1.0", day, false),
			reviewEntry("", "bob", 4, "no id", "1.0", day, false),
			reviewEntry("no-author", "", 4, "text", "1.0", day, false),
			reviewEntry("no-text", "carol", 4, "   ", "1.0", day, false),
			reviewEntry("rating-low", "dave", 0, "text", "1.0", day, false),
			reviewEntry("rating-high", "erin", 6, "text", "1.0", day, false),
		}, ""))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchReviews(context.Background(), "com.example.app", "us")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("only the valid entry should survive, got %+v", got)
	}
}

func TestFetchReviews_PageBound(t *testing.T) {
	day := time.Now().UTC()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Always another page; the client must stop on its own.
		fmt.Fprint(w, rpcResponse(t, []any{
			reviewEntry(fmt.Sprintf("r%d", calls), "alice", 5, "text", "1.0", day, false),
		}, fmt.Sprintf("tok-%d", calls)))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RPS: 100, MaxPages: 3, PageDelay: time.Millisecond})
	got, err := c.FetchReviews(context.Background(), "com.example.app", "us")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 3 || len(got) != 3 {
		t.Fatalf("page ceiling ignored: %d calls, %d reviews", calls, len(got))
	}
}

func TestFetchReviews_ServerErrorAfterFirstPage(t *testing.T) {
	day := time.Now().UTC()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, rpcResponse(t, []any{
				reviewEntry("r1", "alice", 5, "text", "1.0", day, false),
			}, "tok"))
			return
		}
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchReviews(context.Background(), "com.example.app", "us")
	if err == nil {
		t.Fatal("expected the page error to surface")
	}
	if len(got) != 1 {
		t.Fatalf("pages read before the failure must be returned, got %d", len(got))
	}
}

func TestFetch_RetriesOnTooManyRequests(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="Example App - Apps on Google Play">
			<meta property="og:image" content="https://img.test/icon.png">
			</head><body><a href="/store/apps/developer?id=Dev+Co">Dev Co</a></body></html>`)
	}))
	defer srv.Close()

	app, err := testClient(srv.URL).Lookup(context.Background(), "com.example.app", "us")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if app.Name != "Example App" || app.Developer != "Dev Co" {
		t.Fatalf("details parse: %+v", app)
	}
}

func TestSearch_ParsesResultAnchors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/store/apps/details?id=com.one" aria-label="App One"><img src="https://img.test/1.png"></a>
			<a href="/store/apps/details?id=com.one" aria-label="App One duplicate"></a>
			<a href="/store/apps/details?id=com.two">App Two</a>
			<a href="/store/search?q=other">not an app</a>
		</body></html>`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Search(context.Background(), "app", "us")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(got))
	}
	if got[0].ID != "com.one" || got[0].Name != "App One" || got[0].Icon == "" {
		t.Fatalf("first result: %+v", got[0])
	}
	if got[1].ID != "com.two" || got[1].Name != "App Two" {
		t.Fatalf("second result: %+v", got[1])
	}
}

func TestLangForRegion(t *testing.T) {
	cases := map[string]string{
		"us": "en",
		"ru": "ru",
		"de": "de",
		"br": "pt-br",
		"xx": "en", // unknown regions fall back to English
		"":   "en",
	}
	for region, want := range cases {
		if got := LangForRegion(region); got != want {
			t.Errorf("LangForRegion(%q) = %q, want %q", region, got, want)
		}
	}
}

func TestRegionCatalogs(t *testing.T) {
	c := New(Config{})
	primary := c.PrimaryRegions()
	if len(primary) != 5 {
		t.Fatalf("primary set: %v", primary)
	}
	all := c.Regions()
	if len(all) <= len(primary) {
		t.Fatalf("full catalog must be broader than the primary set: %d vs %d", len(all), len(primary))
	}
	// Returned slices are copies.
	all[0] = "mutated"
	if c.Regions()[0] == "mutated" {
		t.Fatal("Regions must return a copy")
	}
}
