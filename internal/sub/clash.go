package sub

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/nodededup/internal/model"
)

// parseClash reads the proxies list of a Clash config. A document that is
// itself a list of proxies is accepted too.
func parseClash(sourceURL, content string) ([]model.Node, error) {
	var doc yaml.Node
	if err := yamlDecodeSingle(content, &doc); err != nil {
		return nil, newParseError(sourceURL, 0, truncateSnippet(content, snippetMax), "SUB_YAML_ERROR", "Clash YAML 解析失败", "", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "订阅内容为空", "", nil)
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = mappingValue(list, "proxies")
		if list == nil {
			return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "YAML 中缺少 proxies 列表", "expected: proxies: [...]", nil)
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, newParseError(sourceURL, list.Line, "", "SUB_PARSE_ERROR", "proxies 必须是列表", "", nil)
	}

	lines := strings.Split(content, "\n")
	out := make([]model.Node, 0, len(list.Content))
	for _, item := range list.Content {
		snippet := ""
		if item.Line >= 1 && item.Line <= len(lines) {
			snippet = truncateSnippet(lines[item.Line-1], snippetMax)
		}
		if item.Kind != yaml.MappingNode {
			return nil, newParseError(sourceURL, item.Line, snippet, "SUB_PARSE_ERROR", "proxies 的每一项必须是对象", "", nil)
		}
		var m map[string]any
		if err := item.Decode(&m); err != nil {
			return nil, newParseError(sourceURL, item.Line, snippet, "SUB_PARSE_ERROR", "节点解析失败", "", err)
		}
		out = append(out, model.NodeFromMap(m))
	}
	return out, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func yamlDecodeSingle(content string, out *yaml.Node) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(out); err != nil {
		return err
	}

	// Reject multi-document YAML to keep behavior deterministic.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing document: %w", err)
	}
	return nil
}
