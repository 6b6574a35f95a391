package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Node is a parsed proxy descriptor as produced by the subscription parsers.
//
// Name/Type/Server/Port are lifted out of the record because every protocol
// carries them. Everything else lives in Params under whatever key spelling the
// upstream source used; field-name normalization is done later, at key time.
//
// Port is kept untyped on purpose: YAML yields int, JSON yields float64 and URL
// parsers yield string, and all three must compare equal.
type Node struct {
	Name   string
	Type   string
	Server string
	Port   any

	Params map[string]any
}

const (
	fieldName   = "name"
	fieldType   = "type"
	fieldServer = "server"
	fieldPort   = "port"
)

// NodeFromMap builds a Node from a decoded YAML/JSON object. The input map is
// not retained.
func NodeFromMap(m map[string]any) Node {
	n := Node{Params: make(map[string]any, len(m))}
	for k, v := range m {
		switch strings.ToLower(k) {
		case fieldName:
			n.Name = scalarString(v)
		case fieldType:
			n.Type = scalarString(v)
		case fieldServer:
			n.Server = scalarString(v)
		case fieldPort:
			n.Port = v
		default:
			n.Params[k] = v
		}
	}
	return n
}

// Map flattens the node back into a single object. Params never override the
// lifted fields.
func (n Node) Map() map[string]any {
	out := make(map[string]any, len(n.Params)+4)
	maps.Copy(out, n.Params)
	out[fieldName] = n.Name
	out[fieldType] = n.Type
	out[fieldServer] = n.Server
	out[fieldPort] = n.Port
	return out
}

// Clone returns a copy whose Params map can be modified without touching n.
// Nested values are shared; the engine never writes into them.
func (n Node) Clone() Node {
	c := n
	if n.Params != nil {
		c.Params = maps.Clone(n.Params)
	}
	return c
}

// WithName returns a copy of n carrying a different display name.
func (n Node) WithName(name string) Node {
	c := n.Clone()
	c.Name = name
	return c
}

// Param returns the raw parameter stored under exactly key.
func (n Node) Param(key string) (any, bool) {
	v, ok := n.Params[key]
	return v, ok
}

// Protocol resolves the node's type tag against the closed protocol set.
func (n Node) Protocol() Protocol {
	return ParseProtocol(n.Type)
}

func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Map())
}

// UnmarshalJSON keeps numbers as json.Number so large integer secrets are
// not rounded through float64.
func (n *Node) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*n = NodeFromMap(m)
	return nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
