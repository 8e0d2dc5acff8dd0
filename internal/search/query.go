package search

import (
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/enduro-dash/enduro-dash/internal/collection"
)

// Validity is the result of client-side query validation.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	}
	return "unknown"
}

// DateRanges lists the relative time shorthands accepted by SetDateRange.
var DateRanges = []string{"3h", "6h", "24h", "3d", "7d", "14d", "30d"}

var dateRangePattern = regexp.MustCompile(`^(\d+)([dh])$`)

var validate = validator.New()

// Query is the user's current filter.
type Query struct {
	Status              *collection.Status
	Field               collection.Field
	Text                string
	EarliestCreatedTime *time.Time
	LatestCreatedTime   *time.Time
	// DateRange is the shorthand that produced the time bounds, if any.
	DateRange string
	Validity  Validity
}

// NewQuery returns the zero state of the filter.
func NewQuery() Query {
	return Query{Field: collection.FieldName}
}

func (q *Query) setStatus(status *collection.Status) {
	if status == nil {
		q.Status = nil
		return
	}
	s := *status
	q.Status = &s
}

func (q *Query) setField(field collection.Field) {
	q.Field = field
	q.revalidate()
}

func (q *Query) setText(text string) {
	q.Text = text
	q.revalidate()
}

// setDateRange maps a shorthand onto a lower creation-time bound relative to
// now. Day ranges start at the beginning of the calendar day; hour ranges
// are the literal duration. Anything else clears the bounds.
func (q *Query) setDateRange(shorthand string, now time.Time) {
	q.DateRange = ""
	q.EarliestCreatedTime = nil
	q.LatestCreatedTime = nil

	if !knownDateRange(shorthand) {
		return
	}
	m := dateRangePattern.FindStringSubmatch(shorthand)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	var earliest time.Time
	switch m[2] {
	case "h":
		earliest = now.Add(-time.Duration(n) * time.Hour)
	case "d":
		d := now.AddDate(0, 0, -n)
		earliest = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}
	earliest = earliest.UTC()
	q.EarliestCreatedTime = &earliest
	q.DateRange = shorthand
}

func (q *Query) revalidate() {
	if q.Field.IsIdentifier() && !isUUID(q.Text) {
		q.Validity = ValidityInvalid
		return
	}
	q.Validity = ValidityValid
}

// clone returns a deep copy so callers cannot alias engine state.
func (q Query) clone() Query {
	out := q
	if q.Status != nil {
		s := *q.Status
		out.Status = &s
	}
	if q.EarliestCreatedTime != nil {
		t := *q.EarliestCreatedTime
		out.EarliestCreatedTime = &t
	}
	if q.LatestCreatedTime != nil {
		t := *q.LatestCreatedTime
		out.LatestCreatedTime = &t
	}
	return out
}

// isUUID accepts the canonical hyphenated form in either case.
func isUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

func knownDateRange(shorthand string) bool {
	for _, r := range DateRanges {
		if r == shorthand {
			return true
		}
	}
	return false
}
