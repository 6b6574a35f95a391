package sub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
)

// parseJSON accepts an array of node objects or an object wrapping one under
// "proxies" or "nodes". Numbers stay json.Number so ports and ids keep their
// exact text.
func parseJSON(sourceURL, content string) ([]model.Node, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, newParseError(sourceURL, 0, truncateSnippet(content, snippetMax), "SUB_JSON_ERROR", "JSON 解析失败", "", err)
	}
	if dec.More() {
		return nil, newParseError(sourceURL, 0, "", "SUB_JSON_ERROR", "JSON 末尾存在多余内容", "", nil)
	}

	items, ok := root.([]any)
	if obj, isObj := root.(map[string]any); isObj {
		for _, k := range []string{"proxies", "nodes"} {
			if items, ok = obj[k].([]any); ok {
				break
			}
		}
	}
	if !ok {
		return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "JSON 中缺少节点数组", `expected: [...] or {"proxies": [...]}`, nil)
	}

	out := make([]model.Node, 0, len(items))
	for i, it := range items {
		m, isObj := it.(map[string]any)
		if !isObj {
			var snippet bytes.Buffer
			_ = json.NewEncoder(&snippet).Encode(it)
			return nil, newParseError(sourceURL, 0, truncateSnippet(snippet.String(), snippetMax), "SUB_PARSE_ERROR", "节点必须是 JSON 对象", fmt.Sprintf("index=%d", i), nil)
		}
		out = append(out, model.NodeFromMap(m))
	}
	return out, nil
}
