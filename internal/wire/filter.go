package wire

// Filter selects events from a relay. Zero fields do not constrain.
// Since and Until bound CreatedAt inclusively.
type Filter struct {
	Authors    []string `json:"authors,omitempty"`
	Kinds      []int    `json:"kinds,omitempty"`
	Slugs      []string `json:"slugs,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Since      int64    `json:"since,omitempty"`
	Until      int64    `json:"until,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// Matches reports whether the event satisfies every set constraint.
// Limit is a result bound, not a per-event predicate, and is applied by
// the relay store.
func (f Filter) Matches(e *Event) bool {
	if len(f.Authors) > 0 && !contains(f.Authors, e.Author) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Slugs) > 0 && !contains(f.Slugs, e.TagValue(TagSlug)) {
		return false
	}
	if len(f.Recipients) > 0 && !f.matchesRecipient(e) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}
	return true
}

func (f Filter) matchesRecipient(e *Event) bool {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == TagRecipient && contains(f.Recipients, t[1]) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
