//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/othala/internal/models"
)

func initFTS(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			kind UNINDEXED,
			slug UNINDEXED,
			title,
			url,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, kind models.Kind, slug, title, url, body string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE kind = ? AND slug = ?`, kind, slug)
	_, err := tx.Exec(`INSERT INTO records_fts (kind, slug, title, url, body, tags) VALUES (?, ?, ?, ?, ?, ?)`,
		kind, slug, title, url, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, kind models.Kind, slug string) {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE kind = ? AND slug = ?`, kind, slug)
}

// Search performs an FTS5 full-text search and returns hits with
// snippets, best match first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind,
		       slug,
		       title,
		       url,
		       snippet(records_fts, 4, '<b>', '</b>', '...', 64)
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
