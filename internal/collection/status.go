package collection

import "strings"

// Status is the processing state of a collection as exposed by the API.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusUnknown    Status = "unknown"
	StatusQueued     Status = "queued"
	StatusPending    Status = "pending"
	StatusAbandoned  Status = "abandoned"
)

var statuses = []Status{
	StatusNew,
	StatusInProgress,
	StatusDone,
	StatusError,
	StatusUnknown,
	StatusQueued,
	StatusPending,
	StatusAbandoned,
}

// Statuses lists every status accepted by the list endpoint.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus maps a user supplied value onto a wire status. Matching is
// case-insensitive and tolerates underscores ("in_progress").
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for _, s := range statuses {
		if string(s) == normalized {
			return s, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
