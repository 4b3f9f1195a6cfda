package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/NikitaSamutin/store-reviews-parser/internal/domain"
)

// Repo is the durable storage backend.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Init bootstraps the schema. Safe to call on every startup.
func (r *Repo) Init(ctx context.Context) error {
	for _, stmt := range []string{createReviewsSQL, createAppsSQL} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// UpsertReviews writes the whole batch in one transaction: insert or replace
// by (id, store, region).
func (r *Repo) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*12)
	for _, rv := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			rv.ID,
			rv.AppID,
			rv.AppName,
			string(rv.Store),
			rv.Rating,
			rv.Title,
			rv.Content,
			rv.Author,
			rv.Date.UTC(),
			rv.Region,
			rv.Version,
			rv.Helpful,
		)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	sqlStr := insertReviewsPrefix + strings.Join(values, ",") + insertReviewsOnDup
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repo) UpsertApp(ctx context.Context, app domain.AppSearchResult) error {
	_, err := r.db.ExecContext(ctx, upsertAppSQL,
		app.ID, string(app.Store), app.Name, app.Developer, app.Icon)
	return err
}

// ListReviews applies equality, set and range filters, sorts newest first
// and paginates; total counts the fully-filtered set, not the page.
func (r *Repo) ListReviews(ctx context.Context, f domain.FilterSpec) ([]domain.Review, int, error) {
	pred := filterPredicate(f)

	count := sq.Select("COUNT(*)").From("reviews")
	if len(pred) > 0 {
		count = count.Where(pred)
	}
	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := sq.Select(
		"id", "app_id", "app_name", "store", "rating", "title",
		"content", "author", "date", "region", "version", "helpful",
	).From("reviews").OrderBy("date DESC", "id DESC")
	if len(pred) > 0 {
		q = q.Where(pred)
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		// MySQL requires LIMIT when OFFSET is present.
		if f.Limit <= 0 {
			q = q.Limit(uint64(total))
		}
		q = q.Offset(uint64(f.Offset))
	}
	listSQL, listArgs, err := q.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var store string
		var title, version sql.NullString
		if err := rows.Scan(
			&rv.ID, &rv.AppID, &rv.AppName, &store, &rv.Rating, &title,
			&rv.Content, &rv.Author, &rv.Date, &rv.Region, &version, &rv.Helpful,
		); err != nil {
			return nil, 0, err
		}
		rv.Store = domain.Store(store)
		rv.Title = title.String
		rv.Version = version.String
		rv.Date = rv.Date.UTC()
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func filterPredicate(f domain.FilterSpec) sq.And {
	pred := sq.And{}
	if f.AppID != "" {
		pred = append(pred, sq.Eq{"app_id": f.AppID})
	}
	if f.Store != "" {
		pred = append(pred, sq.Eq{"store": string(f.Store)})
	}
	if f.Region != "" {
		pred = append(pred, sq.Eq{"region": f.Region})
	}
	if len(f.Ratings) > 0 {
		pred = append(pred, sq.Eq{"rating": f.Ratings})
	}
	if f.StartDate != nil {
		pred = append(pred, sq.GtOrEq{"date": f.StartDate.UTC()})
	}
	if f.EndDate != nil {
		pred = append(pred, sq.LtOrEq{"date": f.EndDate.UTC()})
	}
	return pred
}

func (r *Repo) Close() error { return r.db.Close() }
