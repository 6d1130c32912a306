package codec

import (
	"encoding/json"
	"math"
	"strconv"
)

func float64bits(f float64) uint64 {
	return math.Float64bits(f)
}

func float64frombits(u uint64) float64 {
	return math.Float64frombits(u)
}

// jsonNumberFromString parses a dict key string back into a
// json.Number, so that a non-string dict key type (e.g. a{iv}) can
// flow through the same numeric conversion helpers as an ordinary
// decoded JSON number.
func jsonNumberFromString(s string) json.Number {
	return json.Number(s)
}

// asInt64 extracts an integer value from v, accepting json.Number and
// the native Go integer and float kinds. bool is not accepted; callers
// route bool separately.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		if i, err := n.Int64(); err == nil && i >= 0 {
			return uint64(i), true
		}
	case float64:
		if n == math.Trunc(n) && n >= 0 {
			return uint64(n), true
		}
	case uint64:
		return n, true
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// asBool implements the JSON-to-bus bool conversion rule: a JSON
// bool, an integer greater than zero, or a string beginning with 't'
// or 'T'.
func asBool(v any) (bool, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case string:
		return len(n) > 0 && (n[0] == 't' || n[0] == 'T'), true
	default:
		if i, ok := asInt64(n); ok {
			return i > 0, true
		}
		if f, ok := asFloat64(n); ok {
			return f > 0, true
		}
	}
	return false, false
}
