// internal/adapters/http_server/handlers.go
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/NikitaSamutin/store-reviews-parser/internal/adapters/observability"
	"github.com/NikitaSamutin/store-reviews-parser/internal/app"
	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

const (
	defaultLimit   = 50
	maxLimit       = 1000
	maxExportTotal = 10000
)

var (
	iosAppID     = regexp.MustCompile(`^\d+$`)
	androidAppID = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)
)

type Handlers struct {
	Ingest *app.IngestService
	Q      *app.QueryService
	Export *app.ExportService
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/api", func(r chi.Router) {
		r.With(RateLimit(30)).Get("/search", h.search)
		r.With(RateLimit(5)).Post("/parse", h.parse)
		r.Get("/reviews", h.listReviews)
		r.With(RateLimit(10)).Post("/export", h.export)
		r.Get("/regions", h.regions)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// ---- search ----

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid query", "query parameter is required")
		return
	}
	region := r.URL.Query().Get("region")
	if region == "" {
		region = "us"
	}
	store := domain.Store(r.URL.Query().Get("store"))
	if store != "" && !store.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid store", `store must be "android" or "ios"`)
		return
	}

	apps, err := h.Q.SearchApps(r.Context(), query, region, store)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid store", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: apps})
}

// ---- parse (ingestion) ----

type parseRequest struct {
	AppID   string `json:"appId"`
	Store   string `json:"store"`
	AppName string `json:"appName,omitempty"`
	Region  string `json:"region,omitempty"`
}

func (h *Handlers) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be JSON")
		return
	}
	if req.AppID == "" || req.Store == "" {
		writeProblem(w, http.StatusBadRequest, "Missing parameters", "appId and store are required")
		return
	}
	store := domain.Store(req.Store)
	if !store.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid store", `store must be "android" or "ios"`)
		return
	}
	if store == domain.StoreIOS && !iosAppID.MatchString(req.AppID) {
		writeProblem(w, http.StatusBadRequest, "Invalid appId", "ios appId must be numeric")
		return
	}
	if store == domain.StoreAndroid && !androidAppID.MatchString(req.AppID) {
		writeProblem(w, http.StatusBadRequest, "Invalid appId", "android appId contains invalid characters")
		return
	}

	reviews, err := h.Ingest.Ingest(r.Context(), app.IngestRequest{
		AppID:   req.AppID,
		Store:   store,
		AppName: req.AppName,
		Region:  req.Region,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownStore) {
			writeProblem(w, http.StatusBadRequest, "Invalid store", err.Error())
			return
		}
		log.Error().Err(err).Str("app", req.AppID).Msg("ingest failed")
		writeProblem(w, http.StatusInternalServerError, "Ingestion failed", "could not acquire reviews")
		return
	}
	observability.ReviewsIngested.WithLabelValues(string(store)).Add(float64(len(reviews)))

	total := len(reviews)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: reviews, Total: &total})
}

// ---- reviews query ----

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	f, errMsg := filterFromQuery(r)
	if errMsg != "" {
		writeProblem(w, http.StatusBadRequest, "Invalid filter", errMsg)
		return
	}
	reviews, total, err := h.Q.ListReviews(r.Context(), f)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownStore) {
			writeProblem(w, http.StatusBadRequest, "Invalid store", err.Error())
			return
		}
		log.Error().Err(err).Msg("list reviews failed")
		writeProblem(w, http.StatusInternalServerError, "Query failed", "could not fetch reviews")
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: reviews, Total: &total})
}

// filterFromQuery builds the FilterSpec once at the boundary; the storage
// engines see only the validated value.
func filterFromQuery(r *http.Request) (domain.FilterSpec, string) {
	q := r.URL.Query()
	f := domain.FilterSpec{
		AppID:  q.Get("appId"),
		Region: q.Get("region"),
		Limit:  defaultLimit,
	}

	if st := q.Get("store"); st != "" {
		f.Store = domain.Store(st)
		if !f.Store.Valid() {
			return f, `store must be "android" or "ios"`
		}
	}
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			return f, "limit must be a non-negative integer"
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}
	if os := q.Get("offset"); os != "" {
		n, err := strconv.Atoi(os)
		if err != nil || n < 0 {
			return f, "offset must be a non-negative integer"
		}
		f.Offset = n
	}
	if rs := q.Get("ratings"); rs != "" {
		ratings, ok := parseRatings(strings.Split(rs, ","))
		if !ok {
			return f, "ratings must be integers between 1 and 5"
		}
		f.Ratings = ratings
	}

	var err error
	if f.StartDate, err = parseDate(q.Get("startDate")); err != nil {
		return f, "invalid startDate format"
	}
	if f.EndDate, err = parseDate(q.Get("endDate")); err != nil {
		return f, "invalid endDate format"
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, "startDate must not be after endDate"
	}
	return f, ""
}

func parseRatings(parts []string) ([]int, bool) {
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 5 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparsable date %q", v)
}

// ---- export ----

type exportRequest struct {
	AppID     string `json:"appId,omitempty"`
	Store     string `json:"store,omitempty"`
	Ratings   []int  `json:"ratings,omitempty"`
	Region    string `json:"region,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Format    string `json:"format,omitempty"`
	AppName   string `json:"appName,omitempty"`
	Total     int    `json:"total,omitempty"`
}

func (h *Handlers) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be JSON")
		return
	}

	f := domain.FilterSpec{
		AppID:  req.AppID,
		Region: req.Region,
		Offset: 0, // export always starts from the first record
		Limit:  maxExportTotal,
	}
	if req.Store != "" {
		f.Store = domain.Store(req.Store)
		if !f.Store.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid store", `store must be "android" or "ios"`)
			return
		}
	}
	if req.Total < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid total", "total must be a non-negative integer")
		return
	}
	if req.Total > 0 && req.Total < maxExportTotal {
		f.Limit = req.Total
	}
	if len(req.Ratings) > 0 {
		for _, n := range req.Ratings {
			if n < 1 || n > 5 {
				writeProblem(w, http.StatusBadRequest, "Invalid ratings", "ratings must be integers between 1 and 5")
				return
			}
		}
		f.Ratings = req.Ratings
	}
	var err error
	if f.StartDate, err = parseDate(req.StartDate); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid startDate", "invalid startDate format")
		return
	}
	if f.EndDate, err = parseDate(req.EndDate); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid endDate", "invalid endDate format")
		return
	}

	format := app.ExportFormat(req.Format)
	if format == "" {
		format = app.FormatCSV
	}
	if format != app.FormatCSV && format != app.FormatJSON {
		writeProblem(w, http.StatusBadRequest, "Invalid format", `format must be "csv" or "json"`)
		return
	}

	reviews, _, err := h.Q.ListReviews(r.Context(), f)
	if err != nil {
		log.Error().Err(err).Msg("export query failed")
		writeProblem(w, http.StatusInternalServerError, "Export failed", "could not fetch reviews")
		return
	}

	result, err := h.Export.Render(reviews, format, req.AppName)
	if err != nil {
		if errors.Is(err, domain.ErrNoReviews) {
			writeProblem(w, http.StatusNotFound, "Nothing to export", "no reviews matched the export filter")
			return
		}
		writeProblem(w, http.StatusBadRequest, "Export failed", err.Error())
		return
	}

	body := result.Content
	if format == app.FormatCSV {
		// UTF-8 BOM so spreadsheet applications detect the encoding.
		body = append([]byte{0xEF, 0xBB, 0xBF}, body...)
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write export body")
	}
}

// ---- regions ----

func (h *Handlers) regions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: h.Q.Regions()})
}
