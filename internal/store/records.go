package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Query filters List. Zero fields do not constrain.
type Query struct {
	Kind       models.Kind
	Status     models.SyncStatus
	Tag        string
	Collection string // saves that are members of this collection
	Author     string
	Limit      int
	Offset     int
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	Kind    models.Kind `json:"kind"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	URL     string      `json:"url,omitempty"`
	Snippet string      `json:"snippet"`
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx, so single-row reads
// work inside and outside transactions.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, kind models.Kind, slug string) (*models.Record, error) {
	return getRecord(ctx, s.db, kind, slug)
}

func getRecord(ctx context.Context, q rowQuerier, kind models.Kind, slug string) (*models.Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT payload, snapshot FROM records WHERE kind = ? AND slug = ?`, kind, slug)
	var payload string
	var snapshot sql.NullString
	if err := row.Scan(&payload, &snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: %s %q: %w", kind, slug, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get %s %q: %w", kind, slug, err)
	}
	return decodeRow(payload, snapshot)
}

func decodeRow(payload string, snapshot sql.NullString) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("store: decode payload: %w", err)
	}
	if snapshot.Valid && snapshot.String != "" {
		rec.Sync.Snapshot = json.RawMessage(snapshot.String)
	}
	return &rec, nil
}

// Put inserts or replaces a record together with its index rows.
func (s *Store) Put(ctx context.Context, rec *models.Record) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("store: unknown kind %q: %w", rec.Kind, apperr.ErrInvalid)
	}
	if rec.Slug == "" {
		return fmt.Errorf("store: empty slug: %w", apperr.ErrInvalid)
	}
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = !existsTx(ctx, tx, rec.Kind, rec.Slug)
		return writeRecordTx(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	s.emit(Change{Op: OpPut, Kind: rec.Kind, Slug: rec.Slug, Status: rec.Sync.Status, Created: created})
	return nil
}

// Update applies fn to an existing record inside one transaction, so a
// concurrent writer cannot slip between the read and the write. fn must
// not change the record's kind or slug.
func (s *Store) Update(ctx context.Context, kind models.Kind, slug string, fn func(*models.Record) error) (*models.Record, error) {
	var out *models.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := getRecord(ctx, tx, kind, slug)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		out = rec
		return writeRecordTx(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.emit(Change{Op: OpPut, Kind: kind, Slug: slug, Status: out.Sync.Status})
	return out, nil
}

// Reconcile merges an incoming version with whatever is present. fn
// receives nil when the record does not exist and returns the record to
// persist, or nil to delete. The whole read-decide-write runs in one
// transaction.
func (s *Store) Reconcile(ctx context.Context, kind models.Kind, slug string, fn func(cur *models.Record) (*models.Record, error)) (*models.Record, error) {
	var out *models.Record
	var change *Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, kind, slug)
		exists := true
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			cur, exists = nil, false
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		switch {
		case next == nil && !exists:
			return nil
		case next == nil:
			if err := deleteRecordTx(ctx, tx, kind, slug); err != nil {
				return err
			}
			change = &Change{Op: OpDelete, Kind: kind, Slug: slug}
		default:
			if err := writeRecordTx(ctx, tx, next); err != nil {
				return err
			}
			out = next
			change = &Change{Op: OpPut, Kind: kind, Slug: slug, Status: next.Sync.Status, Created: !exists}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change != nil {
		s.emit(*change)
	}
	return out, nil
}

// Delete removes a record and its index rows.
func (s *Store) Delete(ctx context.Context, kind models.Kind, slug string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if !existsTx(ctx, tx, kind, slug) {
			return fmt.Errorf("store: %s %q: %w", kind, slug, apperr.ErrNotFound)
		}
		return deleteRecordTx(ctx, tx, kind, slug)
	})
	if err != nil {
		return err
	}
	s.emit(Change{Op: OpDelete, Kind: kind, Slug: slug})
	return nil
}

// listClauses builds the joins and where clause shared by List and
// Count.
func listClauses(q Query) (joins string, where string, args []any) {
	var parts []string
	if q.Tag != "" {
		joins += ` JOIN record_tags rt ON rt.kind = r.kind AND rt.slug = r.slug`
		parts = append(parts, `rt.tag = ?`)
		args = append(args, q.Tag)
	}
	if q.Collection != "" {
		joins += ` JOIN memberships m ON m.save_slug = r.slug`
		parts = append(parts, `r.kind = ?`, `m.collection_slug = ?`)
		args = append(args, models.KindSave, q.Collection)
	}
	if q.Kind != "" {
		parts = append(parts, `r.kind = ?`)
		args = append(args, q.Kind)
	}
	if q.Status != "" {
		parts = append(parts, `r.status = ?`)
		args = append(args, q.Status)
	}
	if q.Author != "" {
		parts = append(parts, `r.author = ?`)
		args = append(args, q.Author)
	}
	if len(parts) > 0 {
		where = ` WHERE ` + strings.Join(parts, ` AND `)
	}
	return joins, where, args
}

// List returns records matching the query, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]*models.Record, error) {
	joins, where, args := listClauses(q)

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit, max(q.Offset, 0))

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.payload, r.snapshot FROM records r`+joins+where+
			` ORDER BY r.updated_at DESC, r.slug ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var payload string
		var snapshot sql.NullString
		if err := rows.Scan(&payload, &snapshot); err != nil {
			return nil, err
		}
		rec, err := decodeRow(payload, snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns how many records match the query, ignoring Limit and
// Offset.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	joins, where, args := listClauses(q)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records r`+joins+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Backlinks returns the slugs of saves whose refs point at target.
// Annotations share the refs table but are served by Annotations.
func (s *Store) Backlinks(ctx context.Context, target string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rr.source_slug FROM record_refs rr
		JOIN records r ON r.slug = rr.source_slug AND r.kind = ?
		WHERE rr.target_slug = ?
		ORDER BY rr.source_slug`, models.KindSave, target)
	if err != nil {
		return nil, fmt.Errorf("store: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Annotations returns the annotations attached to one save, oldest
// first.
func (s *Store) Annotations(ctx context.Context, saveSlug string) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.payload, r.snapshot FROM records r
		JOIN record_refs rr ON rr.source_slug = r.slug
		WHERE r.kind = ? AND rr.target_slug = ?
		ORDER BY r.created_at ASC, r.slug ASC`, models.KindAnnotation, saveSlug)
	if err != nil {
		return nil, fmt.Errorf("store: annotations for %q: %w", saveSlug, err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var payload string
		var snapshot sql.NullString
		if err := rows.Scan(&payload, &snapshot); err != nil {
			return nil, err
		}
		rec, err := decodeRow(payload, snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func existsTx(ctx context.Context, tx *sql.Tx, kind models.Kind, slug string) bool {
	var n int
	_ = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ? AND slug = ?`, kind, slug).Scan(&n)
	return n > 0
}

func writeRecordTx(ctx context.Context, tx *sql.Tx, rec *models.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode %s %q: %w", rec.Kind, rec.Slug, err)
	}
	title, url, body, tags := rec.SearchFields()

	var snapshot any
	if len(rec.Sync.Snapshot) > 0 {
		snapshot = string(rec.Sync.Snapshot)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (kind, slug, author, status, remote_updated_at, network_id,
		                     snapshot, title, url, body, tags, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, slug) DO UPDATE SET
			author            = excluded.author,
			status            = excluded.status,
			remote_updated_at = excluded.remote_updated_at,
			network_id        = excluded.network_id,
			snapshot          = excluded.snapshot,
			title             = excluded.title,
			url               = excluded.url,
			body              = excluded.body,
			tags              = excluded.tags,
			payload           = excluded.payload,
			created_at        = excluded.created_at,
			updated_at        = excluded.updated_at
	`, rec.Kind, rec.Slug, rec.Author, rec.Sync.Status, rec.Sync.RemoteUpdatedAt, rec.Sync.NetworkID,
		snapshot, title, url, body, strings.Join(tags, " "), string(payload), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert %s %q: %w", rec.Kind, rec.Slug, err)
	}

	return reindexTx(ctx, tx, rec, title, url, body, tags)
}

// reindexTx replaces the side-table rows for one record, delete old
// then insert.
func reindexTx(ctx context.Context, tx *sql.Tx, rec *models.Record, title, url, body string, tags []string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM record_tags WHERE kind = ? AND slug = ?`, rec.Kind, rec.Slug)
	if len(tags) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO record_tags (kind, slug, tag) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare tag insert: %w", err)
		}
		defer stmt.Close()
		for _, tag := range tags {
			if _, err := stmt.ExecContext(ctx, rec.Kind, rec.Slug, tag); err != nil {
				return fmt.Errorf("store: insert tag: %w", err)
			}
		}
	}

	if rec.Kind == models.KindSave {
		c, err := rec.SaveContent()
		if err != nil {
			return err
		}
		_, _ = tx.ExecContext(ctx, `DELETE FROM memberships WHERE save_slug = ?`, rec.Slug)
		for _, col := range c.Collections {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO memberships (save_slug, collection_slug) VALUES (?, ?)`, rec.Slug, col); err != nil {
				return fmt.Errorf("store: insert membership: %w", err)
			}
		}
		_, _ = tx.ExecContext(ctx, `DELETE FROM record_refs WHERE source_slug = ?`, rec.Slug)
		for _, ref := range c.Refs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO record_refs (source_slug, target_slug) VALUES (?, ?)`, rec.Slug, ref); err != nil {
				return fmt.Errorf("store: insert ref: %w", err)
			}
		}
	}

	// Annotations ref their parent save, so lookups per save and
	// backlink counts share one table.
	if rec.Kind == models.KindAnnotation {
		c, err := rec.AnnotationContent()
		if err != nil {
			return err
		}
		_, _ = tx.ExecContext(ctx, `DELETE FROM record_refs WHERE source_slug = ?`, rec.Slug)
		if c.SaveSlug != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO record_refs (source_slug, target_slug) VALUES (?, ?)`, rec.Slug, c.SaveSlug); err != nil {
				return fmt.Errorf("store: insert annotation ref: %w", err)
			}
		}
	}

	return ftsUpsert(tx, rec.Kind, rec.Slug, title, url, body, tags)
}

func deleteRecordTx(ctx context.Context, tx *sql.Tx, kind models.Kind, slug string) error {
	ftsDelete(tx, kind, slug)
	_, _ = tx.ExecContext(ctx, `DELETE FROM record_tags WHERE kind = ? AND slug = ?`, kind, slug)
	if kind == models.KindSave {
		_, _ = tx.ExecContext(ctx, `DELETE FROM memberships WHERE save_slug = ?`, slug)
	}
	if kind == models.KindSave || kind == models.KindAnnotation {
		_, _ = tx.ExecContext(ctx, `DELETE FROM record_refs WHERE source_slug = ?`, slug)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND slug = ?`, kind, slug); err != nil {
		return fmt.Errorf("store: delete %s %q: %w", kind, slug, err)
	}
	return nil
}
