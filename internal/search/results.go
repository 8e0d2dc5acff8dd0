package search

import "github.com/enduro-dash/enduro-dash/internal/collection"

// Results holds the last good page and focused record plus the error flag of
// the most recently settled request.
type Results struct {
	page    []collection.Collection
	focused *collection.Collection
	err     bool
}

func (r *Results) setPage(items []collection.Collection) {
	r.page = items
	r.err = false
}

func (r *Results) setFocused(c collection.Collection) {
	r.focused = &c
	r.err = false
}

func (r *Results) fail() {
	r.err = true
}

// Snapshot is a consistent copy of the engine state for presentation code.
type Snapshot struct {
	Query           Query                   `json:"-"`
	Page            []collection.Collection `json:"page"`
	Focused         *collection.Collection  `json:"focused,omitempty"`
	Error           bool                    `json:"error"`
	HasPreviousPage bool                    `json:"has_previous"`
	HasNextPage     bool                    `json:"has_next"`
}

func (r *Results) snapshot() Snapshot {
	s := Snapshot{
		Page:  make([]collection.Collection, len(r.page)),
		Error: r.err,
	}
	copy(s.Page, r.page)
	if r.focused != nil {
		f := *r.focused
		s.Focused = &f
	}
	return s
}
