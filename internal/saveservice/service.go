// Package saveservice coordinates store, identity and sync engine for
// every record kind. It is the write path: validation, slug assignment,
// visibility policy and sync scheduling all happen here.
package saveservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/syncer"
	"github.com/starford/othala/internal/visibility"
)

// Service owns all record mutations.
type Service struct {
	log    *slog.Logger
	store  *store.Store
	id     identity.Identity
	engine *syncer.Engine
	runner *syncer.Runner
}

// NewService wires the service. engine and runner come from the same
// syncer so resolution and scheduling agree on state.
func NewService(log *slog.Logger, st *store.Store, id identity.Identity, engine *syncer.Engine, runner *syncer.Runner) *Service {
	return &Service{log: log, store: st, id: id, engine: engine, runner: runner}
}

// SaveInput is the caller-supplied document for creating or updating a
// save. An empty Visibility means the save inherits from its member
// collections; setting one pins it.
type SaveInput struct {
	Slug        string             `json:"slug,omitempty"`
	URL         string             `json:"url,omitempty"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	CoverURL    string             `json:"cover_url,omitempty"`
	Type        models.ContentType `json:"type,omitempty"`
	Body        string             `json:"body,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Refs        []string           `json:"refs,omitempty"`
	Visibility  models.Visibility  `json:"visibility,omitempty"`
	Recipients  []string           `json:"recipients,omitempty"`
	Collections []string           `json:"collections,omitempty"`
}

// Validate checks field shapes. Policy checks against collections
// happen later, with the collections loaded.
func (in SaveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.URL,
			validation.Required.When(in.Type != models.TypeNote).Error("cannot be blank for non-note saves"),
			validation.Length(0, 2048)),
		validation.Field(&in.Title, validation.Length(0, 512)),
		validation.Field(&in.Type,
			validation.In(models.TypeLink, models.TypeImage, models.TypePDF, models.TypeNote)),
		validation.Field(&in.Visibility,
			validation.In(models.VisibilityPrivate, models.VisibilityShared, models.VisibilityUnlisted, models.VisibilityPublic)),
		validation.Field(&in.Recipients, validation.Each(validation.By(encryptionKeyRule))),
	)
}

func encryptionKeyRule(v any) error {
	s, _ := v.(string)
	if !identity.ValidEncryptionKey(s) {
		return errors.New("must be a 64 character hex encryption key")
	}
	return nil
}

func (in SaveInput) content() models.SaveContent {
	c := models.SaveContent{
		URL:         in.URL,
		Title:       in.Title,
		Description: in.Description,
		CoverURL:    in.CoverURL,
		Type:        in.Type,
		Body:        in.Body,
		Tags:        normalizeTags(in.Tags),
		Refs:        in.Refs,
		Recipients:  in.Recipients,
		Collections: in.Collections,
		Inherit:     true,
	}
	if c.Type == "" {
		c.Type = models.TypeLink
		if c.URL == "" {
			c.Type = models.TypeNote
		}
	}
	if in.Visibility != "" {
		c.Visibility = in.Visibility
		c.Inherit = false
	}
	return c
}

// CreateSave validates, assigns a slug, enforces collection visibility
// policy and stores a new local save.
func (s *Service) CreateSave(ctx context.Context, in SaveInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	c := in.content()
	if err := s.checkVisibilityPolicy(ctx, &c); err != nil {
		return nil, err
	}

	slug, err := s.assignSlug(ctx, models.KindSave, in.Slug, firstNonEmpty(in.Title, in.URL))
	if err != nil {
		return nil, err
	}
	rec := models.New(models.KindSave, slug)
	rec.Author = s.id.PublicKey()
	if err := rec.Encode(&c); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("saves: created",
		slog.String("slug", slug), slog.String("type", string(c.Type)))
	s.maybePush(ctx, models.KindSave, slug)
	return rec, nil
}

// GetSave returns one save.
func (s *Service) GetSave(ctx context.Context, slug string) (*models.Record, error) {
	return s.store.Get(ctx, models.KindSave, slug)
}

// SaveDetail is a save enriched with its annotations and the saves
// linking to it.
type SaveDetail struct {
	Save        *models.Record   `json:"save"`
	Annotations []*models.Record `json:"annotations"`
	Backlinks   []string         `json:"backlinks"`
}

// GetSaveDetail returns a save with its annotations and backlinks.
func (s *Service) GetSaveDetail(ctx context.Context, slug string) (*SaveDetail, error) {
	rec, err := s.store.Get(ctx, models.KindSave, slug)
	if err != nil {
		return nil, err
	}
	anns, err := s.store.Annotations(ctx, slug)
	if err != nil {
		return nil, err
	}
	bl, err := s.store.Backlinks(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &SaveDetail{
		Save:        rec,
		Annotations: nonNilSlice(anns),
		Backlinks:   nonNilSlice(bl),
	}, nil
}

// UpdateSave replaces a save's content document. Synced and published
// records drop back to local so the next push carries the edit;
// conflicted records stay conflicted until resolved.
func (s *Service) UpdateSave(ctx context.Context, slug string, in SaveInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	c := in.content()
	if err := s.checkVisibilityPolicy(ctx, &c); err != nil {
		return nil, err
	}

	rec, err := s.store.Update(ctx, models.KindSave, slug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		markEdited(cur)
		return cur.Encode(&c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindSave, slug)
	return rec, nil
}

// DeleteSave removes a save and its annotations. Tombstones go out for
// every record that was ever pushed, with routing captured before the
// rows disappear.
func (s *Service) DeleteSave(ctx context.Context, slug string) error {
	rec, err := s.store.Get(ctx, models.KindSave, slug)
	if err != nil {
		return err
	}
	tomb := s.tombstoneFor(ctx, rec)

	anns, err := s.store.Annotations(ctx, slug)
	if err != nil {
		return err
	}
	var annTombs []tombstone
	for _, ann := range anns {
		if t := s.tombstoneFor(ctx, ann); t != nil {
			annTombs = append(annTombs, *t)
		}
	}

	for _, ann := range anns {
		if err := s.store.Delete(ctx, models.KindAnnotation, ann.Slug); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	if err := s.store.Delete(ctx, models.KindSave, slug); err != nil {
		return err
	}
	s.log.Info("saves: deleted", slog.String("slug", slug), slog.Int("annotations", len(anns)))

	if tomb != nil {
		annTombs = append(annTombs, *tomb)
	}
	s.pushTombstones(ctx, annTombs)
	return nil
}

// ListQuery filters ListSaves and ListRecords.
type ListQuery struct {
	Tag        string
	Collection string
	Status     models.SyncStatus

	// Visibility selects on the effective value, resolved through
	// member collections, so it cannot be pushed down to the store.
	Visibility models.Visibility

	Limit  int
	Offset int
}

// ListSaves returns saves matching the query plus the unpaginated
// total.
func (s *Service) ListSaves(ctx context.Context, q ListQuery) ([]*models.Record, int, error) {
	sq := store.Query{
		Kind:       models.KindSave,
		Status:     q.Status,
		Tag:        q.Tag,
		Collection: q.Collection,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Visibility != "" {
		return s.listByVisibility(ctx, sq, q.Visibility)
	}
	recs, err := s.store.List(ctx, sq)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, sq)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(recs), total, nil
}

// listByVisibility walks every save matching the other filters and
// keeps the ones whose effective visibility equals want. Pagination
// applies after the filter.
func (s *Service) listByVisibility(ctx context.Context, sq store.Query, want models.Visibility) ([]*models.Record, int, error) {
	switch want {
	case models.VisibilityPrivate, models.VisibilityShared, models.VisibilityUnlisted, models.VisibilityPublic:
	default:
		return nil, 0, fmt.Errorf("saves: unknown visibility %q: %w", want, apperr.ErrInvalid)
	}

	limit, offset := sq.Limit, sq.Offset
	sq.Limit, sq.Offset = 500, 0

	var matched []*models.Record
	for {
		page, err := s.store.List(ctx, sq)
		if err != nil {
			return nil, 0, err
		}
		for _, rec := range page {
			c, err := rec.SaveContent()
			if err != nil {
				continue
			}
			cols, err := s.loadCollections(ctx, c.Collections)
			if err != nil {
				return nil, 0, err
			}
			if visibility.Effective(c, cols) == want {
				matched = append(matched, rec)
			}
		}
		if len(page) < sq.Limit {
			break
		}
		sq.Offset += len(page)
	}

	total := len(matched)
	if offset > 0 {
		if offset >= total {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return nonNilSlice(matched), total, nil
}

// Search delegates to the store's full-text index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	results, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(results), nil
}

// Backlinks returns the slugs of saves referencing target.
func (s *Service) Backlinks(ctx context.Context, target string) ([]string, error) {
	bl, err := s.store.Backlinks(ctx, target)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// checkVisibilityPolicy rejects a pinned visibility that a member
// collection with allow_override=false forbids.
func (s *Service) checkVisibilityPolicy(ctx context.Context, c *models.SaveContent) error {
	if c.Inherit {
		return nil
	}
	cols, err := s.loadCollections(ctx, c.Collections)
	if err != nil {
		return err
	}
	if denied := visibility.DeniedBy(c.Visibility, c, cols); len(denied) > 0 {
		return fmt.Errorf("saves: visibility %q overrides collections %s: %w",
			c.Visibility, strings.Join(denied, ", "), apperr.ErrInvalid)
	}
	return nil
}

func (s *Service) loadCollections(ctx context.Context, slugs []string) (map[string]*models.CollectionContent, error) {
	cols := make(map[string]*models.CollectionContent, len(slugs))
	for _, slug := range slugs {
		rec, err := s.store.Get(ctx, models.KindCollection, slug)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		cc, err := rec.CollectionContent()
		if err != nil {
			continue
		}
		cols[slug] = cc
	}
	return cols, nil
}

// requireOwn refuses edits to records mirrored in from another author.
func (s *Service) requireOwn(rec *models.Record) error {
	if rec.Author != "" && rec.Author != s.id.PublicKey() {
		return fmt.Errorf("saves: %s %q belongs to another author: %w", rec.Kind, rec.Slug, apperr.ErrInvalid)
	}
	return nil
}

// markEdited moves settled records back to local. Pending records keep
// their status, conflicted records stay conflicted so resolution is
// never bypassed by an edit.
func markEdited(rec *models.Record) {
	if rec.Sync.Status == models.StatusSynced || rec.Sync.Status == models.StatusPublished {
		rec.Sync.Status = models.StatusLocal
	}
	rec.Touch()
}

// maybePush schedules an immediate push when settings ask for instant
// sync. Failures surface through sync status, not through the write.
func (s *Service) maybePush(ctx context.Context, kind models.Kind, slug string) {
	settings, err := s.store.Settings(ctx)
	if err != nil || !settings.RelaySyncEnabled || settings.SyncFrequency != models.FrequencyInstant {
		return
	}
	s.runner.Submit(syncer.Task{Mode: syncer.ModePush, Kind: kind, Slug: slug})
}

type tombstone struct {
	kind       models.Kind
	slug       string
	visibility models.Visibility
	recipients []string
}

// tombstoneFor captures deletion routing for a record that is about to
// be removed, or nil when nothing was ever pushed.
func (s *Service) tombstoneFor(ctx context.Context, rec *models.Record) *tombstone {
	if rec.Sync.RemoteUpdatedAt == 0 && rec.Sync.NetworkID == "" {
		return nil
	}
	settings, err := s.store.Settings(ctx)
	if err != nil || !settings.RelaySyncEnabled {
		return nil
	}
	vis, recipients, err := s.engine.Routing(ctx, rec)
	if err != nil {
		s.log.Warn("saves: could not resolve tombstone routing",
			slog.String("kind", string(rec.Kind)),
			slog.String("slug", rec.Slug),
			slog.String("error", err.Error()))
		return nil
	}
	return &tombstone{kind: rec.Kind, slug: rec.Slug, visibility: vis, recipients: recipients}
}

// pushTombstones publishes deletions in the background. The rows are
// already gone, so a failed push is logged and accepted.
func (s *Service) pushTombstones(ctx context.Context, tombs []tombstone) {
	if len(tombs) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		for _, t := range tombs {
			if err := s.engine.PushDeletion(bg, t.kind, t.slug, t.visibility, t.recipients); err != nil {
				s.log.Warn("saves: tombstone push failed",
					slog.String("kind", string(t.kind)),
					slog.String("slug", t.slug),
					slog.String("error", err.Error()))
			}
		}
	}()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, "#")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
