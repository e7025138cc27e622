package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// FieldType is the closed set of claim value types a schema field can declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
)

// ParseFieldType rejects anything outside the closed set.
func ParseFieldType(s string) (FieldType, error) {
	switch ft := FieldType(strings.ToLower(strings.TrimSpace(s))); ft {
	case FieldString, FieldNumber, FieldDate, FieldBoolean, FieldArray:
		return ft, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported field type %q", s))
	}
}

// Rules are optional constraints on a field's value. Length bounds apply to
// strings (in characters) and arrays (in elements); value bounds apply to
// numbers; Pattern applies to strings; AllowedValues applies to strings and
// numbers.
type Rules struct {
	MinLength     *int     `json:"minLength,omitempty"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	MinValue      *float64 `json:"minValue,omitempty"`
	MaxValue      *float64 `json:"maxValue,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	AllowedValues []any    `json:"allowedValues,omitempty"`

	pattern *regexp.Regexp
}

// Field declares one claim of a schema.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	Validation  *Rules    `json:"validation,omitempty"`
}

// Schema is a named, versioned definition of the claims a credential carries.
//
// Invariants:
//   - ID is a valid schema id and never changes
//   - Field names are non-empty and unique
//   - Once published, only IsActive (and UpdatedAt) may change
type Schema struct {
	ID          id.SchemaID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Fields      []Field     `json:"fields"`
	Version     string      `json:"version"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

const maxSchemaFields = 64

// Prepare checks a schema definition and compiles its patterns. Every
// definition problem is reported at once.
func (s *Schema) Prepare() error {
	problems := make(map[string]string)
	if _, err := id.ParseSchemaID(string(s.ID)); err != nil {
		problems["id"] = err.Error()
	}
	if strings.TrimSpace(s.Name) == "" {
		problems["name"] = "name is required"
	}
	if strings.TrimSpace(s.Version) == "" {
		problems["version"] = "version is required"
	}
	if len(s.Fields) == 0 {
		problems["fields"] = "at least one field is required"
	}
	if len(s.Fields) > maxSchemaFields {
		problems["fields"] = fmt.Sprintf("at most %d fields are allowed", maxSchemaFields)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		key := fmt.Sprintf("fields[%d]", i)
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			problems[key] = "field name is required"
			continue
		}
		key = f.Name
		if _, dup := seen[f.Name]; dup {
			problems[key] = "duplicate field name"
			continue
		}
		seen[f.Name] = struct{}{}
		ft, err := ParseFieldType(string(f.Type))
		if err != nil {
			problems[key] = err.Error()
			continue
		}
		f.Type = ft
		if msg := f.Validation.compile(ft); msg != "" {
			problems[key] = msg
		}
	}

	if len(problems) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid schema definition").WithFields(problems)
	}
	return nil
}

func (r *Rules) compile(ft FieldType) string {
	if r == nil {
		return ""
	}
	if r.MinLength != nil && *r.MinLength < 0 {
		return "minLength must not be negative"
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return "minLength must not exceed maxLength"
	}
	if r.MinValue != nil && r.MaxValue != nil && *r.MinValue > *r.MaxValue {
		return "minValue must not exceed maxValue"
	}
	if r.Pattern != "" {
		if ft != FieldString && ft != FieldDate {
			return "pattern applies only to string and date fields"
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return "invalid pattern: " + err.Error()
		}
		r.pattern = re
	}
	return ""
}

// FirstStringField returns the first declared string field, used as the
// subject skill when anchoring an issuance on the ledger.
func (s *Schema) FirstStringField() (string, bool) {
	for _, f := range s.Fields {
		if f.Type == FieldString {
			return f.Name, true
		}
	}
	return "", false
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HistoryAction labels a schema history entry.
type HistoryAction string

const (
	HistoryPublished   HistoryAction = "published"
	HistoryActivated   HistoryAction = "activated"
	HistoryDeactivated HistoryAction = "deactivated"
)

// HistoryEntry records one change to a schema, with a snapshot of the schema
// as it stood after the change.
type HistoryEntry struct {
	SchemaID   id.SchemaID   `json:"schemaId"`
	Action     HistoryAction `json:"action"`
	Version    string        `json:"version"`
	IsActive   bool          `json:"isActive"`
	Snapshot   Schema        `json:"snapshot"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// Clone returns a deep copy so stores never share field slices with callers.
func (s Schema) Clone() Schema {
	out := s
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		if f.Validation != nil {
			rules := *f.Validation
			rules.AllowedValues = slices.Clone(f.Validation.AllowedValues)
			f.Validation = &rules
		}
		out.Fields[i] = f
	}
	return out
}
