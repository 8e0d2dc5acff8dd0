package collection

import "strings"

// Field names the attribute a free-text search value is matched against.
// Values double as the list endpoint query parameter names.
type Field string

const (
	FieldName       Field = "name"
	FieldPipelineID Field = "pipeline_id"
	FieldTransferID Field = "transfer_id"
	FieldAIPID      Field = "aip_id"
	FieldOriginalID Field = "original_id"
)

var fields = []Field{FieldName, FieldPipelineID, FieldTransferID, FieldAIPID, FieldOriginalID}

// ParseField accepts both the wire form (pipeline_id) and the camel case
// form used by older clients (pipelineId).
func ParseField(value string) (Field, bool) {
	v := strings.TrimSpace(value)
	for _, f := range fields {
		if string(f) == v || strings.EqualFold(strings.ReplaceAll(string(f), "_", ""), v) {
			return f, true
		}
	}
	return "", false
}

// Valid reports whether f is one of the searchable fields.
func (f Field) Valid() bool {
	for _, known := range fields {
		if f == known {
			return true
		}
	}
	return false
}

// IsIdentifier reports whether values of f must be UUIDs.
func (f Field) IsIdentifier() bool {
	switch f {
	case FieldPipelineID, FieldTransferID, FieldAIPID:
		return true
	}
	return false
}

func (f Field) String() string { return string(f) }
