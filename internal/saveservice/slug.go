package saveservice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// assignSlug returns a free slug for a new record. An explicit slug
// must be unused; derived slugs get a uuid suffix until one is free.
func (s *Service) assignSlug(ctx context.Context, kind models.Kind, explicit, seed string) (string, error) {
	if explicit != "" {
		slug := slugify(explicit)
		if slug == "" {
			return "", fmt.Errorf("saves: unusable slug %q: %w", explicit, apperr.ErrInvalid)
		}
		if _, err := s.store.Get(ctx, kind, slug); err == nil {
			return "", fmt.Errorf("saves: %s %q: %w", kind, slug, apperr.ErrAlreadyExists)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return "", err
		}
		return slug, nil
	}

	base := slugify(seedText(seed))
	if base == "" {
		base = string(kind) + "-" + shortID()
	}
	slug := base
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			slug = base + "-" + shortID()
		}
		_, err := s.store.Get(ctx, kind, slug)
		if errors.Is(err, apperr.ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("saves: no free slug near %q: %w", base, apperr.ErrBusy)
}

// seedText reduces a URL seed to its host and path so slugs do not
// start with scheme noise.
func seedText(s string) string {
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return u.Host + " " + strings.Trim(u.Path, "/")
	}
	return s
}

// slugify maps arbitrary text to lowercase ascii with single dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := true // swallow leading separators
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 64 {
		out = strings.Trim(out[:64], "-")
	}
	return out
}

func shortID() string {
	return uuid.NewString()[:8]
}
