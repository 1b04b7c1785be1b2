package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw is a loosely-typed JSON object as decoded from the provider.
// Every accessor is total: a missing or mistyped value yields the zero value.
type Raw map[string]any

// Object returns the nested object at key, or nil
func (r Raw) Object(key string) Raw {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]any:
		return Raw(v)
	case Raw:
		return v
	}
	return nil
}

// Array returns the nested array at key, or nil
func (r Raw) Array(key string) []any {
	if r == nil {
		return nil
	}
	if v, ok := r[key].([]any); ok {
		return v
	}
	return nil
}

// Objects returns the array at key filtered to its object elements
func (r Raw) Objects(key string) []Raw {
	return objects(r.Array(key))
}

// String returns a string value, formatting numbers if needed
func (r Raw) String(key string) string {
	if r == nil {
		return ""
	}
	return toString(r[key])
}

// Int returns an integer value, coercing floats and numeric strings
func (r Raw) Int(key string) int {
	return int(r.Int64(key))
}

// Int64 returns an integer value, coercing floats and numeric strings
func (r Raw) Int64(key string) int64 {
	if r == nil {
		return 0
	}
	return toInt64(r[key])
}

// Float returns a float value, coercing numeric strings
func (r Raw) Float(key string) float64 {
	if r == nil {
		return 0
	}
	switch v := r[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

func objects(items []any) []Raw {
	out := make([]Raw, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, Raw(v))
		case Raw:
			out = append(out, v)
		}
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return toInt64(f)
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInt64(f)
		}
	}
	return 0
}

// ToInt64 exposes the provider's numeric coercion for callers outside the package
func ToInt64(v any) int64 {
	return toInt64(v)
}
