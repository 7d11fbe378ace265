package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgSearch implements search using ILIKE matching in PostgreSQL as a
// fallback. Per-user collections are small enough that this stays fast
// without a dedicated tsvector column.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates a PostgreSQL fallback searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search matches the query against site names, URLs, descriptions and
// linked category/tag names, scoped to one user.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.UserID, "%" + q.Text + "%"}
	argN := 3

	where := []string{
		"s.user_id = $1",
		`(s.name ILIKE $2 OR s.url ILIKE $2 OR coalesce(s.description, '') ILIKE $2
			OR EXISTS (
				SELECT 1 FROM site_categories sc JOIN categories c ON c.id = sc.category_id
				WHERE sc.site_id = s.id AND c.name ILIKE $2)
			OR EXISTS (
				SELECT 1 FROM site_tags st JOIN tags t ON t.id = st.tag_id
				WHERE st.site_id = s.id AND t.name ILIKE $2))`,
	}

	if q.FilterCategory != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM site_categories sc JOIN categories c ON c.id = sc.category_id
			WHERE sc.site_id = s.id AND LOWER(c.name) = LOWER($%d))`, argN))
		args = append(args, q.FilterCategory)
		argN++
	}
	if q.FilterTag != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM site_tags st JOIN tags t ON t.id = st.tag_id
			WHERE st.site_id = s.id AND LOWER(t.name) = LOWER($%d))`, argN))
		args = append(args, q.FilterTag)
		argN++
	}
	if q.FilterPricing != "" {
		where = append(where, fmt.Sprintf("s.pricing = $%d", argN))
		args = append(args, q.FilterPricing)
		argN++
	}

	whereSQL := strings.Join(where, " AND ")

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM sites s WHERE " + whereSQL
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT s.id, s.name, s.url, coalesce(s.description, ''), s.pricing,
			s.is_favorite, s.is_pinned,
			(SELECT coalesce(json_agg(c.name ORDER BY c.name), '[]')
				FROM site_categories sc JOIN categories c ON c.id = sc.category_id
				WHERE sc.site_id = s.id) AS categories,
			(SELECT coalesce(json_agg(t.name ORDER BY t.name), '[]')
				FROM site_tags st JOIN tags t ON t.id = st.tag_id
				WHERE st.site_id = s.id) AS tags
		FROM sites s
		WHERE %s
		ORDER BY s.is_pinned DESC, s.name ASC
		LIMIT %d OFFSET %d`, whereSQL, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var categoriesJSON, tagsJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.Snippet, &r.Pricing,
			&r.IsFavorite, &r.IsPinned, &categoriesJSON, &tagsJSON); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		if err := json.Unmarshal(categoriesJSON, &r.Categories); err != nil {
			r.Categories = nil
		}
		if err := json.Unmarshal(tagsJSON, &r.Tags); err != nil {
			r.Tags = nil
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every site for full reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]SiteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.name, s.url, coalesce(s.description, ''), s.pricing,
			s.is_favorite, s.is_pinned,
			(SELECT coalesce(json_agg(c.name ORDER BY c.name), '[]')
				FROM site_categories sc JOIN categories c ON c.id = sc.category_id
				WHERE sc.site_id = s.id) AS categories,
			(SELECT coalesce(json_agg(t.name ORDER BY t.name), '[]')
				FROM site_tags st JOIN tags t ON t.id = st.tag_id
				WHERE st.site_id = s.id) AS tags
		FROM sites s
	`)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	defer rows.Close()

	records := make([]SiteRecord, 0)
	for rows.Next() {
		var rec SiteRecord
		var categoriesJSON, tagsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.URL, &rec.Description,
			&rec.Pricing, &rec.IsFavorite, &rec.IsPinned, &categoriesJSON, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		if err := json.Unmarshal(categoriesJSON, &rec.Categories); err != nil {
			rec.Categories = nil
		}
		if err := json.Unmarshal(tagsJSON, &rec.Tags); err != nil {
			rec.Tags = nil
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	return records, nil
}
