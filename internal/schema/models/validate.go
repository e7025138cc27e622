package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf8"

	dErrors "credreg/pkg/domain-errors"
)

// Claims maps field names to values as decoded from JSON.
type Claims map[string]any

// Violations maps a field name to the reason its value was rejected.
type Violations map[string]string

// dateLayouts are accepted for date fields, most specific first.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// Validate checks claims against the schema and collects every violation:
// missing required fields, type mismatches and rule failures. Claims the
// schema does not declare are carried as-is.
func (s *Schema) Validate(claims Claims) Violations {
	violations := make(Violations)
	for _, f := range s.Fields {
		v, present := claims[f.Name]
		if !present || v == nil {
			if f.Required {
				violations[f.Name] = "required field is missing"
			}
			continue
		}
		if msg := f.check(v); msg != "" {
			violations[f.Name] = msg
		}
	}
	return violations
}

// ValidationError wraps a non-empty violation set as a coded error.
func ValidationError(v Violations) error {
	if len(v) == 0 {
		return nil
	}
	return dErrors.New(dErrors.CodeSchemaValidation, "claims do not satisfy schema").WithFields(v)
}

// check is total over FieldType: every declared type has a case.
func (f Field) check(v any) string {
	switch f.Type {
	case FieldString:
		str, ok := v.(string)
		if !ok {
			return "expected string"
		}
		return f.Validation.checkString(str)
	case FieldNumber:
		n, ok := asNumber(v)
		if !ok {
			return "expected number"
		}
		return f.Validation.checkNumber(n)
	case FieldDate:
		str, ok := v.(string)
		if !ok {
			return "expected date string"
		}
		if !isDate(str) {
			return "expected date in RFC 3339 or YYYY-MM-DD form"
		}
		return f.Validation.checkPattern(str)
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return "expected boolean"
		}
		return ""
	case FieldArray:
		arr, ok := asArray(v)
		if !ok {
			return "expected array"
		}
		return f.Validation.checkLength(len(arr))
	default:
		return fmt.Sprintf("unsupported field type %q", f.Type)
	}
}

func (r *Rules) checkString(s string) string {
	if msg := r.checkLength(utf8.RuneCountInString(s)); msg != "" {
		return msg
	}
	if msg := r.checkPattern(s); msg != "" {
		return msg
	}
	if r != nil && len(r.AllowedValues) > 0 && !slices.ContainsFunc(r.AllowedValues, func(a any) bool {
		as, ok := a.(string)
		return ok && as == s
	}) {
		return "value is not one of the allowed values"
	}
	return ""
}

func (r *Rules) checkNumber(n float64) string {
	if r == nil {
		return ""
	}
	if r.MinValue != nil && n < *r.MinValue {
		return fmt.Sprintf("must be at least %v", *r.MinValue)
	}
	if r.MaxValue != nil && n > *r.MaxValue {
		return fmt.Sprintf("must be at most %v", *r.MaxValue)
	}
	if len(r.AllowedValues) > 0 && !slices.ContainsFunc(r.AllowedValues, func(a any) bool {
		an, ok := asNumber(a)
		return ok && an == n
	}) {
		return "value is not one of the allowed values"
	}
	return ""
}

func (r *Rules) checkLength(n int) string {
	if r == nil {
		return ""
	}
	if r.MinLength != nil && n < *r.MinLength {
		return fmt.Sprintf("length must be at least %d", *r.MinLength)
	}
	if r.MaxLength != nil && n > *r.MaxLength {
		return fmt.Sprintf("length must be at most %d", *r.MaxLength)
	}
	return ""
}

func (r *Rules) checkPattern(s string) string {
	if r == nil || r.pattern == nil {
		return ""
	}
	if !r.pattern.MatchString(s) {
		return "does not match pattern " + r.Pattern
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
