// Package sub turns subscription content into node records.
//
// Supported inputs: a Clash YAML document (or a bare YAML list of proxies), a
// JSON array of node objects, a plain list of ss://, trojan://, vless:// and
// vmess:// URIs, and the same list base64 encoded. Field names are kept as the
// source spelled them; normalization happens at key time.
package sub

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/nodededup/internal/model"
)

type Format string

const (
	FormatClash  Format = "clash"
	FormatJSON   Format = "json"
	FormatURI    Format = "uri"
	FormatBase64 Format = "base64"
)

// Detect guesses the format of already trimmed content from its first
// meaningful line.
func Detect(s string) Format {
	line := firstLine(s)
	switch {
	case strings.HasPrefix(line, "["), strings.HasPrefix(line, "{"):
		return FormatJSON
	case isURI(line):
		return FormatURI
	case strings.HasPrefix(line, "- "), isYAMLKey(line):
		return FormatClash
	default:
		return FormatBase64
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func isURI(line string) bool {
	scheme, _, ok := strings.Cut(line, "://")
	if !ok || scheme == "" {
		return false
	}
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

func isYAMLKey(line string) bool {
	k, _, ok := strings.Cut(line, ":")
	return ok && k != "" && !strings.ContainsAny(k, " \t")
}

// Parse auto-detects the format of content and returns its nodes. sourceURL
// only labels errors.
func Parse(sourceURL string, content string) ([]model.Node, error) {
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "订阅内容为空", "", nil)
	}

	var (
		nodes []model.Node
		err   error
	)
	switch Detect(s) {
	case FormatJSON:
		nodes, err = parseJSON(sourceURL, s)
	case FormatURI:
		nodes, err = parseURIList(sourceURL, s)
	case FormatClash:
		nodes, err = parseClash(sourceURL, s)
	case FormatBase64:
		decoded, derr := decodeSubscriptionBase64(s)
		if derr != nil {
			return nil, newParseError(sourceURL, 0, truncateSnippet(s, snippetMax), "SUB_BASE64_DECODE_ERROR", "订阅 base64 解码失败", "", derr)
		}
		decoded = strings.TrimSpace(stripUTF8BOM(decoded))
		if decoded == "" {
			return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "订阅内容为空", "", nil)
		}
		nodes, err = parseURIList(sourceURL, decoded)
	}
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, newParseError(sourceURL, 0, "", "SUB_PARSE_ERROR", "订阅中没有任何可用节点", "", nil)
	}
	return nodes, nil
}

func parseURIList(sourceURL, raw string) ([]model.Node, error) {
	// Use \n split and trim trailing \r to be CRLF-compatible.
	lines := strings.Split(raw, "\n")
	out := make([]model.Node, 0, len(lines))
	for i, line := range lines {
		orig := line
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		scheme, _, ok := strings.Cut(line, "://")
		if !ok {
			return nil, newParseError(sourceURL, i+1, truncateSnippet(orig, snippetMax), "SUB_UNSUPPORTED_SCHEME", "无法识别的节点行", "expected: scheme://...", nil)
		}
		var (
			n   model.Node
			err error
		)
		switch strings.ToLower(scheme) {
		case "ss":
			n, err = parseSSURI(sourceURL, i+1, line)
		case "trojan", "vless":
			n, err = parseShareURI(sourceURL, i+1, line)
		case "vmess":
			n, err = parseVMessURI(sourceURL, i+1, line)
		default:
			return nil, newParseError(sourceURL, i+1, truncateSnippet(orig, snippetMax), "SUB_UNSUPPORTED_SCHEME", "不支持的节点协议："+scheme, "supported: ss, trojan, vless, vmess", nil)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeSubscriptionBase64(s string) (string, error) {
	// Remove all whitespace (space/tab/CR/LF) before decoding.
	b, err := decodeB64ToBytes(removeSpaceTabCRLF(s))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded subscription is not valid utf-8")
	}
	return string(b), nil
}

func decodeB64ToString(s string) (string, error) {
	b, err := decodeB64ToBytes(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeB64ToBytes(s string) ([]byte, error) {
	// Try standard alphabet (with padding) first, then URL-safe, then raw (no padding).
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func stripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
