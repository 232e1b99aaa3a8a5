package notification

import "push-alert-backend/internal/model"

// Filter decides per subscriber and per category whether a
// notification should be delivered.
type Filter struct {
	// DefaultEnabled applies when the subscriber has no stored
	// preference for the category. Fail-open keeps subscribers from
	// silently missing categories introduced after they registered.
	DefaultEnabled bool
}

// NewFilter creates a preference filter with the given default policy.
func NewFilter(defaultEnabled bool) *Filter {
	return &Filter{DefaultEnabled: defaultEnabled}
}

// ShouldDeliver reports whether the subscription wants the category.
// A stored boolean always wins; an absent category falls back to the
// configured default.
func (f *Filter) ShouldDeliver(sub *model.PushSubscription, category string) bool {
	for _, p := range sub.Preferences {
		if p.Category == category {
			return p.Enabled
		}
	}
	return f.DefaultEnabled
}
