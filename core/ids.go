package core

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// CanonicalID converts an identifier value into its canonical string
// form. Numbers and numeric strings map to the same form, so "34" and
// the JSON number 34 compare equal. The second return value is false
// for nil and for the empty string, which never identify anything.
func CanonicalID(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if t == "" {
			return "", false
		}
		// integers first, float64 loses precision above 2^53
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return strconv.FormatUint(n, 10), true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 64), true
	case int:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case json.Number:
		return CanonicalID(t.String())
	case fmt.Stringer:
		return CanonicalID(t.String())
	}
	return fmt.Sprintf("%v", v), true
}

// EqualIDs reports whether two identifier values identify the same
// record under the coercing semantics of CanonicalID. Missing
// identifiers are never equal, not even to each other.
func EqualIDs(a, b interface{}) bool {
	ca, ok := CanonicalID(a)
	if !ok {
		return false
	}
	cb, ok := CanonicalID(b)
	if !ok {
		return false
	}
	return ca == cb
}
