// Package visibility resolves the effective visibility of records.
//
// The resolver is pure: callers fetch the member collections and pass
// their content in, which keeps policy decisions out of the store and
// makes every rule testable without a database.
package visibility

import (
	"sort"

	"github.com/starford/othala/internal/models"
)

// Effective returns the visibility a save is routed with.
//
// A save that pins its own visibility (Inherit false) uses that value.
// Otherwise it takes the most permissive visibility among the member
// collections that resolve; membership entries pointing at deleted
// collections are skipped. With no resolving memberships the save is
// private.
func Effective(c *models.SaveContent, collections map[string]*models.CollectionContent) models.Visibility {
	if !c.Inherit {
		return normalize(c.Visibility)
	}
	out := models.VisibilityPrivate
	for _, slug := range c.Collections {
		col, ok := collections[slug]
		if !ok || col == nil {
			continue
		}
		out = models.MorePermissive(out, normalize(col.Visibility))
	}
	return out
}

// DeniedBy returns the member collections that forbid pinning the given
// visibility: those with AllowOverride false whose own visibility is
// narrower than the pinned value. An empty result means the pin is
// permitted.
func DeniedBy(pinned models.Visibility, c *models.SaveContent, collections map[string]*models.CollectionContent) []string {
	var denying []string
	for _, slug := range c.Collections {
		col, ok := collections[slug]
		if !ok || col == nil {
			continue
		}
		if col.AllowOverride {
			continue
		}
		if normalize(pinned).Rank() > normalize(col.Visibility).Rank() {
			denying = append(denying, slug)
		}
	}
	sort.Strings(denying)
	return denying
}

func normalize(v models.Visibility) models.Visibility {
	if v.Valid() {
		return v
	}
	return models.VisibilityPrivate
}
