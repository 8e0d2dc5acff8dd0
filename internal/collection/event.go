package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// EventBufferSize is the buffer size used for push message channels.
	EventBufferSize = 16

	EventTypeCollectionCreated = "collection:created"
	EventTypeCollectionUpdated = "collection:updated"
	EventTypeCollectionDeleted = "collection:deleted"
)

// EventKind classifies a change event for invalidation purposes.
type EventKind int

const (
	EventOther EventKind = iota
	EventCreated
	EventUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	}
	return "other"
}

// KindOf maps a wire event type onto an EventKind by exact match.
func KindOf(eventType string) EventKind {
	switch eventType {
	case EventTypeCollectionCreated:
		return EventCreated
	case EventTypeCollectionUpdated:
		return EventUpdated
	}
	return EventOther
}

// ErrMalformedEvent is returned by ParseEvent for payloads that cannot be
// interpreted as a change event.
var ErrMalformedEvent = errors.New("collection: malformed event")

// Event is a change notification delivered by the monitor stream.
type Event struct {
	Type      string
	Kind      EventKind
	SubjectID string
	// Item is the collection snapshot sent along with the event, if any.
	// It is informational only; consumers refresh from the API instead.
	Item *RawCollection
}

type eventPayload struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
	Item *RawCollection  `json:"item,omitempty"`
}

// ParseEvent decodes a monitor message. The identifier is accepted either as
// a JSON number or as a JSON string.
func ParseEvent(data []byte) (Event, error) {
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if payload.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	id, err := decodeSubjectID(payload.ID)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      payload.Type,
		Kind:      KindOf(payload.Type),
		SubjectID: id,
		Item:      payload.Item,
	}, nil
}

func decodeSubjectID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: empty id", ErrMalformedEvent)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	id, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: id %s", ErrMalformedEvent, n)
	}
	return strconv.FormatUint(id, 10), nil
}
