package normalize

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Delimiter separates the parts of a canonical key. Escape guarantees it
// never appears inside a part.
const Delimiter = ":"

// keyEscaper percent-encodes the delimiter and the characters Canonical uses
// for structure. '%' goes first so the mapping stays injective.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"{", "%7B",
	"}", "%7D",
	"[", "%5B",
	"]", "%5D",
	",", "%2C",
	"=", "%3D",
)

// Escape makes s safe to embed in a canonical key.
func Escape(s string) string {
	return keyEscaper.Replace(s)
}

// Canonical serializes an arbitrary decoded value (YAML/JSON maps, lists,
// scalars) into a deterministic string. Map keys are sorted at every depth, so
// the same logical map always produces the same text regardless of the order
// its source listed the keys in. Scalars are escaped; case is preserved.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		return
	case string:
		b.WriteString(Escape(x))
		return
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Escape(k))
			b.WriteByte('=')
			writeCanonical(b, x[k])
		}
		b.WriteByte('}')
		return
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
		return
	}

	if n, ok := numberText(v); ok {
		b.WriteString(n)
		return
	}
	if t, ok := v.(bool); ok {
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return
	}

	// Less common container types (typed slices, map[any]any from older YAML
	// decoders, KV lists) go through reflection.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		entries := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		writeCanonical(b, entries)
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		writeCanonical(b, items)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return
		}
		writeCanonical(b, rv.Elem().Interface())
	default:
		b.WriteString(Escape(fmt.Sprint(v)))
	}
}
