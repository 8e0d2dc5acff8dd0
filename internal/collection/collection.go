// Package collection holds the client-side view of Enduro collections,
// pipelines and the change events pushed by the monitor endpoint.
package collection

import (
	"strconv"
	"time"
)

// Collection is a normalized stored collection.
type Collection struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name,omitempty"`
	Status      Status     `json:"status"`
	WorkflowID  string     `json:"workflow_id,omitempty"`
	RunID       string     `json:"run_id,omitempty"`
	TransferID  string     `json:"transfer_id,omitempty"`
	AIPID       string     `json:"aip_id,omitempty"`
	OriginalID  string     `json:"original_id,omitempty"`
	PipelineID  string     `json:"pipeline_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Key returns the identifier used to match change events against the
// collection.
func (c Collection) Key() string {
	return strconv.FormatUint(uint64(c.ID), 10)
}

// RawCollection is the collection as decoded from the API before its
// timestamps are reconstructed.
type RawCollection struct {
	ID          uint    `json:"id"`
	Name        *string `json:"name,omitempty"`
	Status      string  `json:"status"`
	WorkflowID  *string `json:"workflow_id,omitempty"`
	RunID       *string `json:"run_id,omitempty"`
	TransferID  *string `json:"transfer_id,omitempty"`
	AIPID       *string `json:"aip_id,omitempty"`
	OriginalID  *string `json:"original_id,omitempty"`
	PipelineID  *string `json:"pipeline_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// Normalize reconstructs a Collection from its wire form. Timestamps are
// truncated to millisecond precision; unparseable ones are left unset.
// Unknown statuses map to StatusUnknown.
func Normalize(raw RawCollection) Collection {
	c := Collection{
		ID:         raw.ID,
		Name:       deref(raw.Name),
		Status:     StatusUnknown,
		WorkflowID: deref(raw.WorkflowID),
		RunID:      deref(raw.RunID),
		TransferID: deref(raw.TransferID),
		AIPID:      deref(raw.AIPID),
		OriginalID: deref(raw.OriginalID),
		PipelineID: deref(raw.PipelineID),
	}
	if s, ok := ParseStatus(raw.Status); ok {
		c.Status = s
	}
	if t, ok := parseTime(raw.CreatedAt); ok {
		c.CreatedAt = t
	}
	if raw.StartedAt != nil {
		if t, ok := parseTime(*raw.StartedAt); ok {
			c.StartedAt = &t
		}
	}
	if raw.CompletedAt != nil {
		if t, ok := parseTime(*raw.CompletedAt); ok {
			c.CompletedAt = &t
		}
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.Truncate(time.Millisecond), true
}
