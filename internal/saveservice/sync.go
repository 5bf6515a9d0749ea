package saveservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/syncer"
)

// SyncNow runs a full sync cycle and waits for it.
func (s *Service) SyncNow(ctx context.Context) (syncer.SyncReport, error) {
	res, err := s.runner.SubmitWait(ctx, syncer.Task{Mode: syncer.ModeFull})
	if err != nil {
		return syncer.SyncReport{}, err
	}
	if res.Disabled {
		return syncer.SyncReport{}, fmt.Errorf("saves: relay sync is disabled: %w", apperr.ErrInvalid)
	}
	return res.Report, res.Err
}

// SyncOverview is the sync page payload: settings plus live engine
// state.
type SyncOverview struct {
	Settings models.Settings `json:"settings"`
	Status   syncer.Status   `json:"status"`
}

// GetSyncOverview reports settings and engine status together.
func (s *Service) GetSyncOverview(ctx context.Context) (SyncOverview, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return SyncOverview{}, err
	}
	status, err := s.engine.Status(ctx)
	if err != nil {
		return SyncOverview{}, err
	}
	return SyncOverview{Settings: settings, Status: status}, nil
}

// Conflicts lists records waiting on resolution.
func (s *Service) Conflicts(ctx context.Context) ([]*models.Record, error) {
	recs, err := s.store.List(ctx, store.Query{Status: models.StatusConflict, Limit: 500})
	if err != nil {
		return nil, err
	}
	return nonNilSlice(recs), nil
}

// Resolve settles a conflicted record. Keeping the local version
// schedules a push so the resolution reaches the relays; keeping the
// remote one needs no push. The returned record is nil when resolving
// adopted a remote deletion.
func (s *Service) Resolve(ctx context.Context, kind models.Kind, slug, keep string) (*models.Record, error) {
	rec, err := s.engine.ResolveConflict(ctx, kind, slug, keep)
	if err != nil {
		return nil, err
	}
	s.log.Info("saves: conflict resolved",
		slog.String("kind", string(kind)), slog.String("slug", slug), slog.String("keep", keep))

	if keep == syncer.KeepLocal {
		if settings, serr := s.store.Settings(ctx); serr == nil && settings.RelaySyncEnabled {
			s.runner.Submit(syncer.Task{Mode: syncer.ModePush, Kind: kind, Slug: slug})
		}
	}
	return rec, nil
}

// PublishRecord lists a record publicly. It pushes synchronously so the
// caller learns whether a relay took it.
func (s *Service) PublishRecord(ctx context.Context, kind models.Kind, slug string) (*models.Record, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.RelaySyncEnabled {
		return nil, fmt.Errorf("saves: cannot publish with relay sync disabled: %w", apperr.ErrInvalid)
	}
	if _, err := s.engine.Publish(ctx, kind, slug); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, kind, slug)
}

// GetSettings returns the persisted settings.
func (s *Service) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.store.Settings(ctx)
}

// UpdateSettings validates and stores new settings. Turning relay sync
// on kicks off a full cycle so the backlog drains without waiting for
// the next tick.
func (s *Service) UpdateSettings(ctx context.Context, next models.Settings) (models.Settings, error) {
	if err := next.Validate(); err != nil {
		return models.Settings{}, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	prev, err := s.store.Settings(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	if err := s.store.PutSettings(ctx, next); err != nil {
		return models.Settings{}, err
	}
	s.log.Info("saves: settings updated",
		slog.Bool("relay_sync", next.RelaySyncEnabled),
		slog.String("frequency", string(next.SyncFrequency)))

	if next.RelaySyncEnabled && !prev.RelaySyncEnabled {
		s.runner.Submit(syncer.Task{Mode: syncer.ModeFull})
	}
	return next, nil
}
