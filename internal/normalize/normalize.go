// Package normalize turns the many spellings a subscription source may use for
// a value into one canonical form per semantic kind.
//
// Every function here is total: malformed input resolves to a default instead
// of an error, because a bad field in one node must never fail a whole batch.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// Kind is the declared semantic type of a field.
type Kind int

const (
	// KindString is an enumerated value (cipher, network, obfs mode): trimmed
	// and case-folded.
	KindString Kind = iota
	KindNumber
	KindBool
	KindDomain
	KindPath
	// KindSecret keeps the exact bytes. Case and whitespace are significant.
	KindSecret
	// KindUUID is a secret that is case-folded only when it parses as a UUID.
	KindUUID
	// KindStructured is a free-form map or list (headers, plugin options).
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDomain:
		return "domain"
	case KindPath:
		return "path"
	case KindSecret:
		return "secret"
	case KindUUID:
		return "uuid"
	case KindStructured:
		return "structured"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value renders v in the canonical text form of kind k. Numbers that do not
// parse become "0". The result is already escaped for use inside a key.
func Value(v any, k Kind) string {
	switch k {
	case KindString:
		return Escape(String(v))
	case KindNumber:
		return FormatNumber(Number(v, 0))
	case KindBool:
		return strconv.FormatBool(Bool(v))
	case KindDomain:
		return Escape(Domain(v))
	case KindPath:
		return Escape(Path(v))
	case KindSecret:
		return Escape(Secret(v))
	case KindUUID:
		return Escape(UUID(v))
	case KindStructured:
		return Canonical(v)
	default:
		return Escape(Secret(v))
	}
}

// Text converts a scalar to its plain string form without any folding.
// Structured values go through Canonical.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case []byte:
		return string(x)
	}
	if s, ok := numberText(v); ok {
		return s
	}
	return Canonical(v)
}

// String trims and lowercases. Inner whitespace is left alone: a tab stays a
// tab and is never collapsed into a space.
func String(v any) string {
	return strings.ToLower(strings.TrimSpace(Text(v)))
}

// Secret returns the value byte-for-byte.
func Secret(v any) string {
	return Text(v)
}

// UUID returns the canonical lowercase hyphenated form when v parses as a
// UUID, and the exact bytes otherwise (xray accepts arbitrary string ids).
func UUID(v any) string {
	s := Text(v)
	if u, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
		return u.String()
	}
	return s
}

// Number accepts numeric and numeric-string input. Anything else, including
// NaN and infinities, yields def.
func Number(v any, def float64) float64 {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return def
		}
		return f
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return def
}

// Int is Number truncated toward zero.
func Int(v any, def int) int {
	return int(Number(v, float64(def)))
}

func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Bool accepts native booleans, 0/1 and the usual string spellings. Other
// values fall back to truthiness: non-empty strings, non-zero numbers and any
// non-nil structured value are true. Strings are trimmed first, so a
// whitespace-only flag reads as an empty one and is false.
func Bool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no", "":
			return false
		}
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// Domain trims, lowercases, strips IPv6 brackets and a single trailing dot.
// Internationalized names are mapped to their ASCII form so that the unicode
// and punycode spellings of one host compare equal.
func Domain(v any) string {
	s := strings.ToLower(strings.TrimSpace(Text(v)))
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSpace(s)
	if !isASCII(s) {
		if a, err := idna.Lookup.ToASCII(s); err == nil {
			s = a
		}
	}
	return s
}

// Path guarantees exactly one leading slash and no trailing slash, except for
// the root path itself.
func Path(v any) string {
	s := strings.TrimSpace(Text(v))
	s = "/" + strings.TrimLeft(s, "/")
	if len(s) > 1 {
		s = strings.TrimRight(s, "/")
	}
	return s
}

// IsEmpty reports whether v carries no usable value.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// numberText formats integers exactly and floats through FormatNumber, so a
// 17-digit integer secret is never rounded to the nearest float64.
func numberText(v any) (string, bool) {
	switch x := v.(type) {
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return FormatNumber(float64(x)), true
	case float64:
		return FormatNumber(x), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return strconv.FormatUint(u, 10), true
		}
		if f, err := x.Float64(); err == nil {
			return FormatNumber(f), true
		}
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
