//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/othala/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; Search falls back to LIKE over the
	// denormalized record columns.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Kind, _, _, _, _ string, _ []string) error {
	// The searchable columns already live on the records table.
	return nil
}

func ftsDelete(_ *sql.Tx, _ models.Kind, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, slug, title, url, substr(body, 1, 200)
		FROM records
		WHERE title LIKE ? OR url LIKE ? OR body LIKE ? OR tags LIKE ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Kind, &r.Slug, &r.Title, &r.URL, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
