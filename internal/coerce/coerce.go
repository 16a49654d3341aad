// Package coerce turns loosely typed request fields into typed scalars.
//
// None of the helpers fail: a missing key or a value that cannot be
// converted yields the supplied default. Malformed scalar fields degrade to
// defaults instead of aborting compilation.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is a flat mapping of field name to an untyped value.
type Fields map[string]any

// Int returns f[key] as an int, or def.
func Int(f Fields, key string, def int) int {
	v, ok := f[key]
	if !ok {
		return def
	}
	if n, ok := toInt(v); ok {
		return n
	}
	return def
}

// Float returns f[key] as a float64, or def.
func Float(f Fields, key string, def float64) float64 {
	v, ok := f[key]
	if !ok {
		return def
	}
	if n, ok := toFloat(v); ok {
		return n
	}
	return def
}

// Bool returns f[key] as a bool, or def when the key is absent or null.
func Bool(f Fields, key string, def bool) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return def
	}
	return toBool(v)
}

// String returns f[key] as a string, or def when absent, null or empty.
func String(f Fields, key string, def string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return def
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// OptionalInt returns nil unless f[key] holds a non-zero integer.
func OptionalInt(f Fields, key string) *int {
	v, ok := f[key]
	if !ok {
		return nil
	}
	n, ok := toInt(v)
	if !ok || n == 0 {
		return nil
	}
	return &n
}

// OptionalFloat returns nil unless f[key] holds a non-zero number.
func OptionalFloat(f Fields, key string) *float64 {
	v, ok := f[key]
	if !ok {
		return nil
	}
	n, ok := toFloat(v)
	if !ok || n == 0 {
		return nil
	}
	return &n
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		if t < math.MinInt || t > math.MaxInt {
			return 0, false
		}
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, false
		}
		// float64(math.MaxInt) rounds up to 2^63, so compare against -MinInt.
		if t < math.MinInt || t >= -float64(math.MinInt) {
			return 0, false
		}
		return int(t), true
	case float32:
		return toInt(float64(t))
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(n)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		n, err := t.Float64()
		return err == nil && n != 0
	default:
		return false
	}
}
