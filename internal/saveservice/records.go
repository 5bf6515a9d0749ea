package saveservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
)

// Collection layouts.
const (
	LayoutList    = "list"
	LayoutGrid    = "grid"
	LayoutGallery = "gallery"
)

// CollectionInput is the caller-supplied document for a collection.
type CollectionInput struct {
	Slug          string            `json:"slug,omitempty"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Visibility    models.Visibility `json:"visibility,omitempty"`
	AllowOverride bool              `json:"allow_override"`
	Layout        string            `json:"layout,omitempty"`
	Items         []string          `json:"items,omitempty"`
	Collaborators []string          `json:"collaborators,omitempty"`
}

func (in CollectionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&in.Visibility,
			validation.In(models.VisibilityPrivate, models.VisibilityShared, models.VisibilityUnlisted, models.VisibilityPublic)),
		validation.Field(&in.Layout, validation.In(LayoutList, LayoutGrid, LayoutGallery)),
		validation.Field(&in.Collaborators, validation.Each(validation.By(encryptionKeyRule))),
	)
}

func (in CollectionInput) content() models.CollectionContent {
	vis := in.Visibility
	if vis == "" {
		vis = models.VisibilityPrivate
	}
	return models.CollectionContent{
		Name:          in.Name,
		Description:   in.Description,
		Visibility:    vis,
		AllowOverride: in.AllowOverride,
		Layout:        in.Layout,
		Items:         in.Items,
		Collaborators: in.Collaborators,
	}
}

// CreateCollection stores a new local collection.
func (s *Service) CreateCollection(ctx context.Context, in CollectionInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	slug, err := s.assignSlug(ctx, models.KindCollection, in.Slug, in.Name)
	if err != nil {
		return nil, err
	}
	c := in.content()
	rec := models.New(models.KindCollection, slug)
	rec.Author = s.id.PublicKey()
	if err := rec.Encode(&c); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("saves: collection created", slog.String("slug", slug))
	s.maybePush(ctx, models.KindCollection, slug)
	return rec, nil
}

// GetCollection returns one collection.
func (s *Service) GetCollection(ctx context.Context, slug string) (*models.Record, error) {
	return s.store.Get(ctx, models.KindCollection, slug)
}

// UpdateCollection replaces a collection's content document.
func (s *Service) UpdateCollection(ctx context.Context, slug string, in CollectionInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	c := in.content()
	rec, err := s.store.Update(ctx, models.KindCollection, slug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		markEdited(cur)
		return cur.Encode(&c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindCollection, slug)
	return rec, nil
}

// DeleteCollection removes a collection. Member saves keep their
// membership entry; it dangles harmlessly and drops out of visibility
// resolution.
func (s *Service) DeleteCollection(ctx context.Context, slug string) error {
	rec, err := s.store.Get(ctx, models.KindCollection, slug)
	if err != nil {
		return err
	}
	tomb := s.tombstoneFor(ctx, rec)
	if err := s.store.Delete(ctx, models.KindCollection, slug); err != nil {
		return err
	}
	s.log.Info("saves: collection deleted", slog.String("slug", slug))
	if tomb != nil {
		s.pushTombstones(ctx, []tombstone{*tomb})
	}
	return nil
}

// CollectionOverview pairs a collection with its member count.
type CollectionOverview struct {
	Collection *models.Record `json:"collection"`
	SaveCount  int            `json:"save_count"`
}

// ListCollections returns every collection with its member count.
func (s *Service) ListCollections(ctx context.Context) ([]CollectionOverview, error) {
	recs, err := s.store.List(ctx, store.Query{Kind: models.KindCollection, Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]CollectionOverview, 0, len(recs))
	for _, rec := range recs {
		n, err := s.store.Count(ctx, store.Query{Collection: rec.Slug})
		if err != nil {
			return nil, err
		}
		out = append(out, CollectionOverview{Collection: rec, SaveCount: n})
	}
	return out, nil
}

// AddToCollection adds a save to a collection. Membership lives on the
// save, so only the save record changes and re-syncs.
func (s *Service) AddToCollection(ctx context.Context, saveSlug, collectionSlug string) (*models.Record, error) {
	if _, err := s.store.Get(ctx, models.KindCollection, collectionSlug); err != nil {
		return nil, err
	}
	rec, err := s.store.Update(ctx, models.KindSave, saveSlug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		c, err := cur.SaveContent()
		if err != nil {
			return err
		}
		if slices.Contains(c.Collections, collectionSlug) {
			return nil
		}
		c.Collections = append(c.Collections, collectionSlug)
		markEdited(cur)
		return cur.Encode(c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindSave, saveSlug)
	return rec, nil
}

// RemoveFromCollection removes a save's membership.
func (s *Service) RemoveFromCollection(ctx context.Context, saveSlug, collectionSlug string) (*models.Record, error) {
	rec, err := s.store.Update(ctx, models.KindSave, saveSlug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		c, err := cur.SaveContent()
		if err != nil {
			return err
		}
		i := slices.Index(c.Collections, collectionSlug)
		if i < 0 {
			return nil
		}
		c.Collections = slices.Delete(c.Collections, i, i+1)
		markEdited(cur)
		return cur.Encode(c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindSave, saveSlug)
	return rec, nil
}

// AnnotationInput creates an annotation on a save.
type AnnotationInput struct {
	SaveSlug string `json:"save_slug"`
	Quote    string `json:"quote,omitempty"`
	Note     string `json:"note,omitempty"`
}

func (in AnnotationInput) Validate() error {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.SaveSlug, validation.Required),
	); err != nil {
		return err
	}
	if in.Quote == "" && in.Note == "" {
		return errors.New("quote and note cannot both be blank")
	}
	return nil
}

// CreateAnnotation attaches an annotation to an existing save.
func (s *Service) CreateAnnotation(ctx context.Context, in AnnotationInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	if _, err := s.store.Get(ctx, models.KindSave, in.SaveSlug); err != nil {
		return nil, fmt.Errorf("saves: annotation parent: %w", err)
	}
	slug, err := s.assignSlug(ctx, models.KindAnnotation, "", in.SaveSlug+" ann")
	if err != nil {
		return nil, err
	}
	rec := models.New(models.KindAnnotation, slug)
	rec.Author = s.id.PublicKey()
	if err := rec.Encode(&models.AnnotationContent{
		SaveSlug: in.SaveSlug, Quote: in.Quote, Note: in.Note,
	}); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindAnnotation, slug)
	return rec, nil
}

// UpdateAnnotation edits an annotation's quote and note. The parent
// save binding never changes.
func (s *Service) UpdateAnnotation(ctx context.Context, slug, quote, note string) (*models.Record, error) {
	if quote == "" && note == "" {
		return nil, fmt.Errorf("saves: quote and note cannot both be blank: %w", apperr.ErrInvalid)
	}
	rec, err := s.store.Update(ctx, models.KindAnnotation, slug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		c, err := cur.AnnotationContent()
		if err != nil {
			return err
		}
		c.Quote, c.Note = quote, note
		markEdited(cur)
		return cur.Encode(c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindAnnotation, slug)
	return rec, nil
}

// DeleteAnnotation removes one annotation.
func (s *Service) DeleteAnnotation(ctx context.Context, slug string) error {
	rec, err := s.store.Get(ctx, models.KindAnnotation, slug)
	if err != nil {
		return err
	}
	tomb := s.tombstoneFor(ctx, rec)
	if err := s.store.Delete(ctx, models.KindAnnotation, slug); err != nil {
		return err
	}
	if tomb != nil {
		s.pushTombstones(ctx, []tombstone{*tomb})
	}
	return nil
}

// AnnotationsFor lists the annotations on a save, oldest first.
func (s *Service) AnnotationsFor(ctx context.Context, saveSlug string) ([]*models.Record, error) {
	anns, err := s.store.Annotations(ctx, saveSlug)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(anns), nil
}

// ArticleInput is the caller-supplied document for an article.
type ArticleInput struct {
	Slug       string            `json:"slug,omitempty"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary,omitempty"`
	Body       string            `json:"body,omitempty"`
	CoverURL   string            `json:"cover_url,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Visibility models.Visibility `json:"visibility,omitempty"`
}

func (in ArticleInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 512)),
		validation.Field(&in.Visibility,
			validation.In(models.VisibilityPrivate, models.VisibilityShared, models.VisibilityUnlisted, models.VisibilityPublic)),
	)
}

func (in ArticleInput) content() models.ArticleContent {
	vis := in.Visibility
	if vis == "" {
		vis = models.VisibilityPrivate
	}
	return models.ArticleContent{
		Title:      in.Title,
		Summary:    in.Summary,
		Body:       in.Body,
		CoverURL:   in.CoverURL,
		Tags:       normalizeTags(in.Tags),
		Visibility: vis,
	}
}

// CreateArticle stores a new local article. Articles start as private
// drafts; Publish lists them.
func (s *Service) CreateArticle(ctx context.Context, in ArticleInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	slug, err := s.assignSlug(ctx, models.KindArticle, in.Slug, in.Title)
	if err != nil {
		return nil, err
	}
	c := in.content()
	rec := models.New(models.KindArticle, slug)
	rec.Author = s.id.PublicKey()
	if err := rec.Encode(&c); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("saves: article created", slog.String("slug", slug))
	s.maybePush(ctx, models.KindArticle, slug)
	return rec, nil
}

// GetArticle returns one article.
func (s *Service) GetArticle(ctx context.Context, slug string) (*models.Record, error) {
	return s.store.Get(ctx, models.KindArticle, slug)
}

// UpdateArticle replaces an article's content document.
func (s *Service) UpdateArticle(ctx context.Context, slug string, in ArticleInput) (*models.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("saves: %v: %w", err, apperr.ErrInvalid)
	}
	c := in.content()
	rec, err := s.store.Update(ctx, models.KindArticle, slug, func(cur *models.Record) error {
		if err := s.requireOwn(cur); err != nil {
			return err
		}
		markEdited(cur)
		return cur.Encode(&c)
	})
	if err != nil {
		return nil, err
	}
	s.maybePush(ctx, models.KindArticle, slug)
	return rec, nil
}

// DeleteArticle removes an article.
func (s *Service) DeleteArticle(ctx context.Context, slug string) error {
	rec, err := s.store.Get(ctx, models.KindArticle, slug)
	if err != nil {
		return err
	}
	tomb := s.tombstoneFor(ctx, rec)
	if err := s.store.Delete(ctx, models.KindArticle, slug); err != nil {
		return err
	}
	if tomb != nil {
		s.pushTombstones(ctx, []tombstone{*tomb})
	}
	return nil
}

// ListArticles returns articles, newest first.
func (s *Service) ListArticles(ctx context.Context, limit, offset int) ([]*models.Record, int, error) {
	q := store.Query{Kind: models.KindArticle, Limit: limit, Offset: offset}
	recs, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(recs), total, nil
}
