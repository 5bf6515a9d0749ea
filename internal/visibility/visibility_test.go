package visibility

import (
	"testing"

	"github.com/starford/othala/internal/models"
)

func cols(pairs map[string]models.Visibility) map[string]*models.CollectionContent {
	out := make(map[string]*models.CollectionContent, len(pairs))
	for slug, v := range pairs {
		out[slug] = &models.CollectionContent{Name: slug, Visibility: v}
	}
	return out
}

func TestEffectivePinnedWins(t *testing.T) {
	s := &models.SaveContent{
		Visibility:  models.VisibilityUnlisted,
		Inherit:     false,
		Collections: []string{"pub"},
	}
	got := Effective(s, cols(map[string]models.Visibility{"pub": models.VisibilityPublic}))
	if got != models.VisibilityUnlisted {
		t.Errorf("pinned save should keep its own visibility, got %s", got)
	}
}

func TestEffectivePinnedUnsetFallsBackToPrivate(t *testing.T) {
	s := &models.SaveContent{Inherit: false}
	if got := Effective(s, nil); got != models.VisibilityPrivate {
		t.Errorf("unset pinned visibility should be private, got %s", got)
	}
}

func TestEffectiveNoMemberships(t *testing.T) {
	s := &models.SaveContent{Inherit: true}
	if got := Effective(s, nil); got != models.VisibilityPrivate {
		t.Errorf("save outside any collection should be private, got %s", got)
	}
}

func TestEffectiveMostPermissiveMember(t *testing.T) {
	s := &models.SaveContent{
		Inherit:     true,
		Collections: []string{"a", "b", "c"},
	}
	got := Effective(s, cols(map[string]models.Visibility{
		"a": models.VisibilityPrivate,
		"b": models.VisibilityPublic,
		"c": models.VisibilityShared,
	}))
	if got != models.VisibilityPublic {
		t.Errorf("most permissive member should win, got %s", got)
	}
}

func TestEffectiveSkipsDanglingMemberships(t *testing.T) {
	s := &models.SaveContent{
		Inherit:     true,
		Collections: []string{"gone", "priv"},
	}
	got := Effective(s, cols(map[string]models.Visibility{"priv": models.VisibilityShared}))
	if got != models.VisibilityShared {
		t.Errorf("dangling membership should be skipped, got %s", got)
	}

	s.Collections = []string{"gone"}
	if got := Effective(s, nil); got != models.VisibilityPrivate {
		t.Errorf("all-dangling memberships should resolve private, got %s", got)
	}
}

func TestDeniedBy(t *testing.T) {
	s := &models.SaveContent{Collections: []string{"locked", "open", "wide"}}
	collections := map[string]*models.CollectionContent{
		"locked": {Name: "locked", Visibility: models.VisibilityShared, AllowOverride: false},
		"open":   {Name: "open", Visibility: models.VisibilityPrivate, AllowOverride: true},
		"wide":   {Name: "wide", Visibility: models.VisibilityPublic, AllowOverride: false},
	}

	denying := DeniedBy(models.VisibilityPublic, s, collections)
	if len(denying) != 1 || denying[0] != "locked" {
		t.Errorf("denying = %v, want [locked]", denying)
	}

	if got := DeniedBy(models.VisibilityShared, s, collections); len(got) != 0 {
		t.Errorf("pin within bounds should pass, got %v", got)
	}
}
