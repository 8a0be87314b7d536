package model

import (
	"fmt"
	"time"
)

// FieldError reports a missing or malformed field in a raw document. Decode
// helpers return it instead of panicking so callers can log and skip the
// offending record.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func stringField(fields map[string]any, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &FieldError{Field: key, Reason: "missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &FieldError{Field: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	return s, nil
}

// intField accepts the numeric shapes a document round trip can produce:
// native ints and the float64 that JSON decoding yields. Fractional values
// are malformed, not truncated.
func intField(fields map[string]any, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &FieldError{Field: key, Reason: "missing"}
	}
	switch n := raw.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, &FieldError{Field: key, Reason: "not an integer"}
		}
		return int(n), nil
	default:
		return 0, &FieldError{Field: key, Reason: fmt.Sprintf("expected integer, got %T", raw)}
	}
}

func timeField(fields map[string]any, key string) (time.Time, error) {
	raw, ok := fields[key]
	if !ok {
		return time.Time{}, &FieldError{Field: key, Reason: "missing"}
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, &FieldError{Field: key, Reason: "not an RFC 3339 timestamp"}
		}
		return t, nil
	default:
		return time.Time{}, &FieldError{Field: key, Reason: fmt.Sprintf("expected timestamp, got %T", raw)}
	}
}

func stringSliceField(fields map[string]any, key string) ([]string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, &FieldError{Field: key, Reason: "missing"}
	}
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &FieldError{Field: key, Reason: fmt.Sprintf("element %d: expected string, got %T", i, item)}
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, &FieldError{Field: key, Reason: fmt.Sprintf("expected string list, got %T", raw)}
	}
}
