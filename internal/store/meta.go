package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/starford/othala/internal/models"
)

const (
	metaWatermark = "sync.watermark"
	metaSettings  = "settings"
)

func (s *Store) getMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get meta %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set meta %q: %w", key, err)
	}
	return nil
}

// Watermark returns the upper bound of the last completed pull, in unix
// seconds. Zero means no pull has completed yet.
func (s *Store) Watermark(ctx context.Context) (int64, error) {
	v, ok, err := s.getMeta(ctx, metaWatermark)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: malformed watermark %q: %w", v, err)
	}
	return n, nil
}

// SetWatermark advances the pull watermark. It never moves backwards.
func (s *Store) SetWatermark(ctx context.Context, t int64) error {
	cur, err := s.Watermark(ctx)
	if err != nil {
		return err
	}
	if t <= cur {
		return nil
	}
	return s.setMeta(ctx, metaWatermark, strconv.FormatInt(t, 10))
}

// Settings returns the persisted runtime settings, or defaults when
// none have been stored yet.
func (s *Store) Settings(ctx context.Context) (models.Settings, error) {
	v, ok, err := s.getMeta(ctx, metaSettings)
	if err != nil {
		return models.Settings{}, err
	}
	if !ok {
		return models.DefaultSettings(), nil
	}
	var out models.Settings
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return models.Settings{}, fmt.Errorf("store: decode settings: %w", err)
	}
	return out, nil
}

// SeedSettings stores settings only when none have been persisted yet,
// so a config seed never clobbers choices made through the API. It
// reports whether the seed was written.
func (s *Store) SeedSettings(ctx context.Context, settings models.Settings) (bool, error) {
	if err := settings.Validate(); err != nil {
		return false, err
	}
	_, ok, err := s.getMeta(ctx, metaSettings)
	if err != nil || ok {
		return false, err
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return false, fmt.Errorf("store: encode settings: %w", err)
	}
	return true, s.setMeta(ctx, metaSettings, string(b))
}

// PutSettings persists the runtime settings.
func (s *Store) PutSettings(ctx context.Context, settings models.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}
	return s.setMeta(ctx, metaSettings, string(b))
}

// CountByStatus tallies records per sync status, for the status report.
func (s *Store) CountByStatus(ctx context.Context) (map[models.SyncStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[models.SyncStatus]int)
	for rows.Next() {
		var status models.SyncStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
