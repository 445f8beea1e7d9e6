package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a normalized field value. The zero Value is null; null never
// equals another Value, null included.
type Value struct {
	text  string
	valid bool
}

// Null is the normalized form of missing, empty and whitespace-only input.
var Null = Value{}

// Text normalizes a text value: trim surrounding whitespace and upper-case.
func Text(s string) Value {
	t := strings.TrimSpace(s)
	if t == "" {
		return Null
	}
	return Value{text: strings.ToUpper(t), valid: true}
}

// Normalize coerces a raw column value to text and normalizes it.
func Normalize(raw any) Value {
	return NormalizeWidth(raw, 0)
}

// NormalizeWidth is Normalize with zero padding of all-digit values to
// width characters. A width of zero disables padding.
func NormalizeWidth(raw any, width int) Value {
	s, ok := Coerce(raw, width)
	if !ok {
		return Null
	}
	return Text(s)
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return !v.valid }

// String returns the normalized text, or "" for null.
func (v Value) String() string { return v.text }

// Equal implements match equality: both values non-null and identical.
func (v Value) Equal(o Value) bool {
	return v.valid && o.valid && v.text == o.text
}

// Coerce converts a raw column value to its text representation. Numbers
// are rendered without exponent or trailing ".0". The second result is
// false for nil and NaN. Coercion happens before trimming so numeric and
// text columns join on the same representation.
func Coerce(raw any, width int) (string, bool) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case []byte:
		s = string(v)
	case *string:
		if v == nil {
			return "", false
		}
		s = *v
	case int:
		s = strconv.FormatInt(int64(v), 10)
	case int8:
		s = strconv.FormatInt(int64(v), 10)
	case int16:
		s = strconv.FormatInt(int64(v), 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case uint8:
		s = strconv.FormatUint(uint64(v), 10)
	case uint16:
		s = strconv.FormatUint(uint64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case float32:
		return coerceFloat(float64(v), width)
	case float64:
		return coerceFloat(v, width)
	case bool:
		s = strconv.FormatBool(v)
	case time.Time:
		s = v.Format("2006-01-02")
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return pad(s, width), true
}

func coerceFloat(f float64, width int) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return pad(strconv.FormatInt(int64(f), 10), width), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// pad left-pads all-digit values with zeros up to width.
func pad(s string, width int) string {
	if width <= 0 {
		return s
	}
	t := strings.TrimSpace(s)
	if t == "" || len(t) >= width {
		return s
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return s
		}
	}
	return strings.Repeat("0", width-len(t)) + t
}

// NormalizeEmail returns the digest form of an email address: trimmed and
// lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
