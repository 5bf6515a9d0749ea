package models

import (
	"bytes"
	"fmt"
)

// ContentType classifies what a save captured.
type ContentType string

const (
	TypeLink  ContentType = "link"
	TypeImage ContentType = "image"
	TypePDF   ContentType = "pdf"
	TypeNote  ContentType = "note"
)

// SaveContent is the content document of a KindSave record.
type SaveContent struct {
	URL         string      `json:"url,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	CoverURL    string      `json:"cover_url,omitempty"`
	Type        ContentType `json:"type,omitempty"`
	Body        string      `json:"body,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Refs        []string    `json:"refs,omitempty"`

	// Visibility is the save's own setting. It only applies when
	// Inherit is false; otherwise the effective visibility comes from
	// the member collections.
	Visibility Visibility `json:"visibility,omitempty"`
	Inherit    bool       `json:"inherit_visibility"`

	// Recipients holds hex encryption keys for shared routing.
	Recipients []string `json:"recipients,omitempty"`

	// Collections lists member collection slugs.
	Collections []string `json:"collections,omitempty"`
}

// CollectionContent is the content document of a KindCollection record.
type CollectionContent struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`

	// AllowOverride permits member saves to pin a visibility wider
	// than the collection's own.
	AllowOverride bool `json:"allow_override"`

	// Layout and Items drive the visual variant: a display mode and an
	// ordered list of save slugs. Membership itself lives on the saves.
	Layout string   `json:"layout,omitempty"`
	Items  []string `json:"items,omitempty"`

	// Collaborators holds hex encryption keys for shared routing.
	Collaborators []string `json:"collaborators,omitempty"`
}

// AnnotationContent is the content document of a KindAnnotation record.
// Annotations follow the effective visibility of their parent save.
type AnnotationContent struct {
	SaveSlug string `json:"save_slug"`
	Quote    string `json:"quote,omitempty"`
	Note     string `json:"note,omitempty"`
}

// ArticleContent is the content document of a KindArticle record.
type ArticleContent struct {
	Title      string     `json:"title"`
	Summary    string     `json:"summary,omitempty"`
	Body       string     `json:"body,omitempty"`
	CoverURL   string     `json:"cover_url,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}

// SaveContent returns the typed content of a save record.
func (r *Record) SaveContent() (*SaveContent, error) {
	if r.Kind != KindSave {
		return nil, fmt.Errorf("models: %q is a %s, not a save", r.Slug, r.Kind)
	}
	var c SaveContent
	if err := r.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CollectionContent returns the typed content of a collection record.
func (r *Record) CollectionContent() (*CollectionContent, error) {
	if r.Kind != KindCollection {
		return nil, fmt.Errorf("models: %q is a %s, not a collection", r.Slug, r.Kind)
	}
	var c CollectionContent
	if err := r.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// AnnotationContent returns the typed content of an annotation record.
func (r *Record) AnnotationContent() (*AnnotationContent, error) {
	if r.Kind != KindAnnotation {
		return nil, fmt.Errorf("models: %q is a %s, not an annotation", r.Slug, r.Kind)
	}
	var c AnnotationContent
	if err := r.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ArticleContent returns the typed content of an article record.
func (r *Record) ArticleContent() (*ArticleContent, error) {
	if r.Kind != KindArticle {
		return nil, fmt.Errorf("models: %q is a %s, not an article", r.Slug, r.Kind)
	}
	var c ArticleContent
	if err := r.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Normalize round-trips the content document through its typed view so
// that field order and defaults are canonical regardless of where the
// document came from. Content produced by Encode is already canonical.
func (r *Record) Normalize() error {
	var v any
	switch r.Kind {
	case KindSave:
		v = &SaveContent{}
	case KindCollection:
		v = &CollectionContent{}
	case KindAnnotation:
		v = &AnnotationContent{}
	case KindArticle:
		v = &ArticleContent{}
	default:
		return fmt.Errorf("models: unknown kind %q", r.Kind)
	}
	if err := r.Decode(v); err != nil {
		return err
	}
	return r.Encode(v)
}

// ContentEqual reports whether two records carry the same content
// document, compared in canonical form.
func ContentEqual(a, b *Record) bool {
	ca, cb := a.Clone(), b.Clone()
	if err := ca.Normalize(); err != nil {
		return false
	}
	if err := cb.Normalize(); err != nil {
		return false
	}
	return bytes.Equal(ca.Content, cb.Content)
}

// SearchFields extracts the text the full-text index covers. Decode
// failures yield empty fields rather than errors; a malformed record
// is simply unfindable.
func (r *Record) SearchFields() (title, url, body string, tags []string) {
	switch r.Kind {
	case KindSave:
		if c, err := r.SaveContent(); err == nil {
			return c.Title, c.URL, c.Description + "\n" + c.Body, c.Tags
		}
	case KindCollection:
		if c, err := r.CollectionContent(); err == nil {
			return c.Name, "", c.Description, nil
		}
	case KindAnnotation:
		if c, err := r.AnnotationContent(); err == nil {
			return "", "", c.Quote + "\n" + c.Note, nil
		}
	case KindArticle:
		if c, err := r.ArticleContent(); err == nil {
			return c.Title, "", c.Summary + "\n" + c.Body, c.Tags
		}
	}
	return "", "", "", nil
}
