package sub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
)

// shareQueryKeys renames the query parameters of trojan:// and vless:// share
// links to the field names Clash uses. Unlisted parameters keep their name.
var shareQueryKeys = map[string]string{
	"type":          "network",
	"serviceName":   "grpc-service-name",
	"fp":            "client-fingerprint",
	"allowInsecure": "skip-cert-verify",
	"insecure":      "skip-cert-verify",
	"peer":          "sni",
	"headerType":    "header-type",
}

// parseShareURI handles trojan://secret@host:port?query#name and the vless
// form that carries a UUID in place of the password.
func parseShareURI(sourceURL string, lineNo int, line string) (model.Node, error) {
	u, err := url.Parse(line)
	if err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, line, "节点 URI 解析失败", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if u.User == nil || u.User.Username() == "" {
		return model.Node{}, lineError(sourceURL, lineNo, line, scheme+" 节点缺少认证信息", nil)
	}
	server, port, err := parseHostPort(u.Host)
	if err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, line, "服务器地址或端口不合法", err)
	}
	name := strings.TrimSpace(u.Fragment)
	if strings.ContainsAny(name, "\r\n\x00") {
		return model.Node{}, lineError(sourceURL, lineNo, line, "节点名称包含非法控制字符", nil)
	}

	params := make(map[string]any)
	if scheme == "vless" {
		params["uuid"] = u.User.Username()
	} else {
		params["password"] = u.User.Username()
	}
	for k, vs := range u.Query() {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		if renamed, ok := shareQueryKeys[k]; ok {
			k = renamed
		}
		params[k] = vs[0]
	}
	if alpn, ok := params["alpn"].(string); ok {
		params["alpn"] = splitList(alpn)
	}
	return model.Node{Name: name, Type: scheme, Server: server, Port: port, Params: params}, nil
}

// vmessKeys maps the v2rayN JSON payload of vmess:// links onto Clash names.
var vmessKeys = map[string]string{
	"id":   "uuid",
	"aid":  "alterId",
	"scy":  "cipher",
	"net":  "network",
	"sni":  "servername",
	"fp":   "client-fingerprint",
	"type": "header-type",
	"host": "host",
	"path": "path",
	"alpn": "alpn",
}

func parseVMessURI(sourceURL string, lineNo int, line string) (model.Node, error) {
	_, payload, _ := strings.Cut(line, "://")
	decoded, err := decodeB64ToBytes(strings.TrimSpace(payload))
	if err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, line, "vmess base64 解码失败", err)
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, line, "vmess JSON 解析失败", err)
	}

	server := strings.TrimSpace(jsonText(raw["add"]))
	if server == "" {
		return model.Node{}, lineError(sourceURL, lineNo, line, "服务器地址或端口不合法", errors.New("empty host"))
	}
	port, err := strconv.Atoi(strings.TrimSpace(jsonText(raw["port"])))
	if err != nil || port < 1 || port > 65535 {
		if err == nil {
			err = errors.New("port out of range")
		}
		return model.Node{}, lineError(sourceURL, lineNo, line, "服务器地址或端口不合法", err)
	}
	if jsonText(raw["id"]) == "" {
		return model.Node{}, lineError(sourceURL, lineNo, line, "vmess 节点缺少 id", nil)
	}

	params := make(map[string]any)
	for src, dst := range vmessKeys {
		if v := jsonText(raw[src]); v != "" {
			params[dst] = v
		}
	}
	if aid, ok := raw["aid"]; ok {
		params["alterId"] = aid
	}
	switch strings.ToLower(jsonText(raw["tls"])) {
	case "tls", "true", "1":
		params["tls"] = true
	}
	// gRPC links reuse path for the service name.
	if strings.EqualFold(jsonText(raw["net"]), "grpc") {
		if svc, ok := params["path"]; ok {
			params["grpc-service-name"] = svc
			delete(params, "path")
		}
	}
	if alpn, ok := params["alpn"].(string); ok {
		params["alpn"] = splitList(alpn)
	}

	return model.Node{
		Name:   strings.TrimSpace(jsonText(raw["ps"])),
		Type:   "vmess",
		Server: server,
		Port:   port,
		Params: params,
	}, nil
}

func jsonText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func splitList(s string) []any {
	var out []any
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
