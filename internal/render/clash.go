package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/nodededup/internal/model"
)

// renderClash writes a Clash config holding only the proxies list. Each
// proxy starts with name, type, server and port; the remaining fields follow
// in key order so output is byte-stable.
func renderClash(nodes []model.Node) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for i, n := range nodes {
		item, err := clashProxy(n)
		if err != nil {
			return nil, &RenderError{
				AppError: model.AppError{
					Code:    "RENDER_ERROR",
					Message: "节点无法输出为 Clash 格式",
					Stage:   "render",
					Snippet: truncate(n.Name, 200),
					Hint:    fmt.Sprintf("index=%d", i),
				},
				Cause: err,
			}
		}
		seq.Content = append(seq.Content, item)
	}
	if len(seq.Content) == 0 {
		seq.Style = yaml.FlowStyle
	}

	doc := &yaml.Node{
		Kind:    yaml.MappingNode,
		Content: []*yaml.Node{plain("proxies"), seq},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, &RenderError{
			AppError: model.AppError{Code: "RENDER_ERROR", Message: "YAML 编码失败", Stage: "render"},
			Cause:    err,
		}
	}
	if err := enc.Close(); err != nil {
		return nil, &RenderError{
			AppError: model.AppError{Code: "RENDER_ERROR", Message: "YAML 编码失败", Stage: "render"},
			Cause:    err,
		}
	}
	return buf.Bytes(), nil
}

func clashProxy(n model.Node) (*yaml.Node, error) {
	typ, ok := ClashType(n.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported proxy type %q", n.Type)
	}
	if strings.TrimSpace(n.Server) == "" {
		return nil, fmt.Errorf("empty server")
	}

	m := &yaml.Node{Kind: yaml.MappingNode}
	// Names and servers are always quoted so values like "123" or "yes" stay
	// strings.
	m.Content = append(m.Content,
		plain("name"), quoted(n.Name),
		plain("type"), plain(typ),
		plain("server"), quoted(n.Server),
	)
	port, err := valueNode(portValue(n.Port))
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	m.Content = append(m.Content, plain("port"), port)

	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := valueNode(n.Params[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		m.Content = append(m.Content, plain(k), v)
	}
	return m, nil
}

// portValue writes numeric ports as YAML integers whatever their source type.
func portValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		return x.String()
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
	}
	return v
}

func valueNode(v any) (*yaml.Node, error) {
	if num, ok := v.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			v = i
		} else if f, err := num.Float64(); err == nil {
			v = f
		}
	}
	out := new(yaml.Node)
	if err := out.Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func plain(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
