package remote

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// Top-level document field names. They match the layout the mobile client
// has always written, so existing documents stay readable.
const (
	FieldSettings           = "settings"
	FieldPoints             = "points"
	FieldCompletedPomodoros = "completedPomodoros"
	FieldTotalFocusSeconds  = "totalFocusSeconds"
	FieldSelectedSound      = "selectedSound"
	FieldSuperFocusMode     = "superFocusMode"
	FieldDailyProgress      = "dailyProgress"
)

// ErrNotFound is returned when a user has no document.
var ErrNotFound = errors.New("document not found")

// Document is one user's remote profile.
type Document map[string]any

// Clone returns a deep copy so callers can mutate the result freely.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of d with every top-level field of fields overlaid.
func (d Document) Merge(fields Document) Document {
	out := d.Clone()
	if out == nil {
		out = make(Document, len(fields))
	}
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

// Int reads an integer field. ok is false when the field is absent or not a
// whole number.
func (d Document) Int(key string) (int64, bool) {
	v, present := d[key]
	if !present {
		return 0, false
	}
	return AsInt(v)
}

// String reads a string field.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Bool reads a boolean field.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Map reads a nested object field.
func (d Document) Map(key string) (map[string]any, bool) {
	m, ok := d[key].(map[string]any)
	return m, ok
}

// AsInt coerces the numeric representations produced by Go literals, YAML
// and JSON decoding into an int64. Fractional values are rejected.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return AsInt(f)
	default:
		return 0, false
	}
}

// Normalize converts decoded JSON or YAML into document value types:
// integral numbers become int64 and nested maps become map[string]any.
// Values that cannot be represented are dropped from maps and slices.
func Normalize(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string, bool, int64:
		return val, true
	case int, int32, uint, uint32, uint64, float64, json.Number:
		return AsInt(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			if n, ok := Normalize(elem); ok {
				out = append(out, n)
			}
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if n, ok := Normalize(elem); ok {
				out[k] = n
			}
		}
		return out, true
	case Document:
		return Normalize(map[string]any(val))
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			key, isString := k.(string)
			if !isString {
				continue
			}
			if n, ok := Normalize(elem); ok {
				out[key] = n
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// NormalizeDocument applies Normalize to every top-level field.
func NormalizeDocument(m map[string]any) Document {
	out := make(Document, len(m))
	for k, v := range m {
		if n, ok := Normalize(v); ok {
			out[k] = n
		}
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
