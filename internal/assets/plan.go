// Package assets decides which binary payloads move between the local
// and remote stores, and moves them.
package assets

import "sort"

// Set is an unordered collection of asset identifiers.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

// KeysOf builds a set from the keys of m.
func KeysOf[V any](m map[string]V) Set {
	s := make(Set, len(m))
	for id := range m {
		s[id] = struct{}{}
	}

	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// PushPlan is the asset work needed before metadata can be published.
type PushPlan struct {
	// Upload holds required payloads present locally but not remotely.
	Upload []string

	// Delete holds remote payloads nothing references any more.
	Delete []string

	// Unavailable holds required identifiers present on neither side.
	// Publishing proceeds; a later pull reports them as missing.
	Unavailable []string
}

// PlanPush compares the identifiers the exported metadata references
// against what each side holds. This is a pure decision function with
// no I/O.
//
// A remote payload is only deleted when it is neither held locally nor
// referenced, so a reference whose local payload was lost is never
// turned into a dangling one.
func PlanPush(required, local, remote Set) PushPlan {
	var plan PushPlan

	for _, id := range required.Sorted() {
		switch {
		case remote.Has(id):
		case local.Has(id):
			plan.Upload = append(plan.Upload, id)
		default:
			plan.Unavailable = append(plan.Unavailable, id)
		}
	}

	for _, id := range remote.Sorted() {
		if !local.Has(id) && !required.Has(id) {
			plan.Delete = append(plan.Delete, id)
		}
	}

	return plan
}

// PullPlan is the asset work needed before a remote document can be
// imported.
type PullPlan struct {
	Download []string
}

// PlanPull returns the required identifiers not yet held locally or
// already fetched during this pull.
func PlanPull(required, local, downloaded Set) PullPlan {
	var plan PullPlan

	for _, id := range required.Sorted() {
		if !local.Has(id) && !downloaded.Has(id) {
			plan.Download = append(plan.Download, id)
		}
	}

	return plan
}
