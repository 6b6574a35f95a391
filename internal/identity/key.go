// Package identity derives the canonical connection key of a proxy node.
//
// Two nodes with equal keys are the same endpoint. The key is built from the
// server, port and protocol followed by the protocol's identity-critical
// fields in a fixed order. Display names, bandwidth hints and client-side
// knobs (fingerprint, skip-cert-verify, udp, mux) never take part.
package identity

import (
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

// Markers appended to fields that have a default value, so that a field set
// explicitly to its default is not confused with an absent one.
const (
	markExplicit = "!"
	markImplicit = "?"
)

// Generator produces canonical keys. The zero value is not usable; call
// NewGenerator. A Generator is immutable and safe for concurrent use.
type Generator struct {
	aliases normalize.AliasTable
}

type Option func(*Generator)

// WithAliasMode selects how a bare "host" field is interpreted.
func WithAliasMode(m normalize.AliasMode) Option {
	return func(g *Generator) { g.aliases = normalize.NewAliasTable(m) }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{aliases: normalize.NewAliasTable(normalize.AliasStrict)}
	for _, o := range opts {
		o(g)
	}
	return g
}

// AliasMode reports the alias mode the generator was built with.
func (g *Generator) AliasMode() normalize.AliasMode { return g.aliases.Mode() }

// Key returns the canonical key of n. It never fails: missing or malformed
// fields resolve to their normalized defaults.
func (g *Generator) Key(n model.Node) string {
	proto := n.Protocol()

	kb := keyBuilder{aliases: g.aliases, params: n.Params}
	kb.raw(normalize.Value(n.Server, normalize.KindDomain))
	kb.raw(normalize.Value(n.Port, normalize.KindNumber))
	kb.raw(normalize.Escape(proto.Tag(n.Type)))

	s := schemaFor(proto)
	for _, f := range s.fields {
		kb.field(f)
	}
	if s.transport {
		kb.transport()
	}
	switch s.tls {
	case tlsOptional:
		kb.optionalTLS()
	case tlsAlways:
		kb.serverName()
	case tlsNone:
	}
	if s.reality {
		kb.reality()
	}
	return kb.String()
}

type keyBuilder struct {
	aliases normalize.AliasTable
	params  map[string]any
	parts   []string
}

func (kb *keyBuilder) raw(s string) {
	kb.parts = append(kb.parts, s)
}

func (kb *keyBuilder) labeled(label, value string) {
	kb.parts = append(kb.parts, label+"="+value)
}

func (kb *keyBuilder) lookup(src source) (any, bool) {
	if src.alias != "" {
		if v, ok := kb.aliases.Lookup(kb.params, src.alias); ok {
			return v, true
		}
	}
	return normalize.Lookup(kb.params, src.paths...)
}

// field appends one schema field. Fields with a default carry a marker telling
// whether the value came from the node or from the default.
func (kb *keyBuilder) field(f fieldSpec) {
	v, ok := kb.lookup(f.src)
	kb.value(f.label, f.kind, v, ok, f.def)
}

func (kb *keyBuilder) value(label string, kind normalize.Kind, v any, present bool, def any) {
	if def == nil {
		if !present {
			kb.labeled(label, "")
			return
		}
		kb.labeled(label, normalize.Value(v, kind))
		return
	}
	if !present {
		kb.labeled(label, normalize.Value(def, kind)+markImplicit)
		return
	}
	kb.labeled(label, normalize.Value(v, kind)+markExplicit)
}

func (kb *keyBuilder) String() string {
	return strings.Join(kb.parts, normalize.Delimiter)
}
