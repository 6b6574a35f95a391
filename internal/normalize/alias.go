package normalize

import "strings"

// Field is a canonical semantic field that several legacy spellings map onto.
type Field string

const (
	FieldServerName Field = "serverName"
	FieldAuth       Field = "auth"
	FieldEncryption Field = "encryption"
	FieldTransport  Field = "transport"
	FieldUUID       Field = "uuid"
	FieldUsername   Field = "username"
)

// AliasMode decides whether a bare "host" field is read as the TLS server name.
//
// Sources disagree: some exporters put the SNI in "host", others use "host"
// only for the WebSocket/HTTP Host header. Both readings are supported and the
// caller picks one explicitly.
type AliasMode int

const (
	// AliasStrict keeps "host" separate from "sni"/"servername". A node
	// carrying only host=x.com never merges with one carrying sni=x.com.
	AliasStrict AliasMode = iota
	// AliasUnified treats "host" as the lowest priority server-name alias.
	AliasUnified
)

func (m AliasMode) String() string {
	switch m {
	case AliasStrict:
		return "strict"
	case AliasUnified:
		return "unified"
	default:
		return "unknown"
	}
}

// ParseAliasMode accepts "strict" (also the empty string) and "unified".
func ParseAliasMode(s string) (AliasMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return AliasStrict, true
	case "unified":
		return AliasUnified, true
	default:
		return AliasStrict, false
	}
}

// AliasTable maps each canonical Field to its source spellings in priority
// order. The first spelling present on a node wins.
type AliasTable struct {
	mode    AliasMode
	entries map[Field][]string
}

func NewAliasTable(mode AliasMode) AliasTable {
	serverName := []string{"sni", "servername"}
	if mode == AliasUnified {
		serverName = append(serverName, "host")
	}
	return AliasTable{
		mode: mode,
		entries: map[Field][]string{
			FieldServerName: serverName,
			FieldAuth:       {"password", "auth", "token", "auth-str", "psk"},
			FieldEncryption: {"method", "cipher", "encryption"},
			FieldTransport:  {"network", "transport", "net"},
			FieldUUID:       {"uuid", "id"},
			FieldUsername:   {"username", "user"},
		},
	}
}

func (t AliasTable) Mode() AliasMode { return t.mode }

// Aliases returns the spellings for f, highest priority first.
func (t AliasTable) Aliases(f Field) []string {
	return t.entries[f]
}

// Lookup resolves f against params.
func (t AliasTable) Lookup(params map[string]any, f Field) (any, bool) {
	return Lookup(params, t.entries[f]...)
}

// Lookup returns the value of the first path present in params. A path is a
// dot-separated list of keys into nested maps ("ws-opts.headers.host"). Keys
// match after FoldKey, so "alterId", "alter-id" and "alterid" are one field.
// A nil value counts as absent.
func Lookup(params map[string]any, paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := lookupPath(params, p); ok {
			return v, true
		}
	}
	return nil, false
}

// FoldKey lowercases k and drops '-' and '_'.
func FoldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		if r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lookupPath(params map[string]any, path string) (any, bool) {
	var cur any = params
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := lookupKey(m, seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, cur != nil
}

func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, v != nil
	}
	// Several spellings of one key on a single node: the lexically smallest
	// wins, so the choice does not depend on map iteration order.
	want := FoldKey(key)
	match, found := "", false
	for k := range m {
		if FoldKey(k) == want && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	v := m[match]
	return v, v != nil
}

// AsMap views a decoded object as map[string]any. Older YAML decoders produce
// map[any]any, which is converted.
func AsMap(v any) (map[string]any, bool) {
	return asMap(v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, e := range m {
			if ks, ok := k.(string); ok {
				out[ks] = e
			}
		}
		return out, true
	default:
		return nil, false
	}
}
