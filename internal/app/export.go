package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportResult is pure in-memory data; writing it to a transport is the
// caller's job.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// csvSeparator is ";" so the files open cleanly in European-locale
// spreadsheet applications.
const csvSeparator = ";"

var csvHeaders = []string{
	"ID", "App", "Store", "Rating", "Title", "Content", "Author",
	"Date", "Region", "Version", "Helpful",
}

type jsonEnvelope struct {
	ExportDate   time.Time       `json:"exportDate"`
	TotalReviews int             `json:"totalReviews"`
	Reviews      []domain.Review `json:"reviews"`
}

type ExportService struct {
	now func() time.Time
}

func NewExportService() *ExportService {
	return &ExportService{now: time.Now}
}

// Render serializes a filtered record set. Zero records is a distinct
// condition the caller must surface, not an empty file.
func (s *ExportService) Render(reviews []domain.Review, format ExportFormat, appName string) (ExportResult, error) {
	if len(reviews) == 0 {
		return ExportResult{}, domain.ErrNoReviews
	}
	switch format {
	case FormatJSON:
		return s.renderJSON(reviews, appName)
	case FormatCSV:
		return s.renderCSV(reviews, appName)
	default:
		return ExportResult{}, fmt.Errorf("export format %q is not supported", format)
	}
}

func (s *ExportService) renderJSON(reviews []domain.Review, appName string) (ExportResult, error) {
	env := jsonEnvelope{
		ExportDate:   s.now().UTC(),
		TotalReviews: len(reviews),
		Reviews:      reviews,
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("marshal export: %w", err)
	}
	return ExportResult{
		Filename:    s.filename(appName, "json"),
		ContentType: "application/json; charset=utf-8",
		Content:     b,
	}, nil
}

func (s *ExportService) renderCSV(reviews []domain.Review, appName string) (ExportResult, error) {
	var sb strings.Builder
	sb.WriteString(strings.Join(csvHeaders, csvSeparator))
	for _, rv := range reviews {
		row := []string{
			escapeCSV(rv.ID),
			escapeCSV(rv.AppName),
			escapeCSV(rv.Store.DisplayName()),
			escapeCSV(strconv.Itoa(rv.Rating)),
			escapeCSV(rv.Title),
			escapeCSV(rv.Content),
			escapeCSV(rv.Author),
			escapeCSV(rv.Date.UTC().Format(time.RFC3339)),
			escapeCSV(rv.Region),
			escapeCSV(rv.Version),
			escapeCSV(strconv.Itoa(rv.Helpful)),
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(row, csvSeparator))
	}
	return ExportResult{
		Filename:    s.filename(appName, "csv"),
		ContentType: "text/csv; charset=utf-8",
		Content:     []byte(sb.String()),
	}, nil
}

// filename follows reviews_<app|all>_<ISO timestamp, colons replaced>.<ext>.
func (s *ExportService) filename(appName, ext string) string {
	if appName == "" {
		appName = "all"
	}
	ts := s.now().UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("reviews_%s_%s.%s", appName, ts, ext)
}

// escapeCSV neutralizes spreadsheet formula injection, then applies normal
// CSV quoting. A value whose first character could start a formula (=, +, -,
// @, tab, carriage return) is prefixed with a literal apostrophe so the cell
// stays inert text.
func escapeCSV(v string) string {
	if v != "" {
		switch v[0] {
		case '=', '+', '-', '@', '\t', '\r':
			v = "'" + v
		}
	}
	if strings.ContainsAny(v, csvSeparator+"\"\n\r") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}
