package sub

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/nodededup/internal/model"
)

func ssNode(name, server string, port int, method, password, plugin string, pluginOpts map[string]any) model.Node {
	params := map[string]any{
		"cipher":   method,
		"password": password,
	}
	if plugin != "" {
		params["plugin"] = plugin
		if len(pluginOpts) > 0 {
			params["plugin-opts"] = pluginOpts
		}
	}
	return model.Node{Name: name, Type: "ss", Server: server, Port: port, Params: params}
}

func parseSSURI(sourceURL string, lineNo int, s string) (model.Node, error) {
	// Split fragment first: #name
	withoutFrag, frag, hasFrag := strings.Cut(s, "#")
	name := ""
	if hasFrag {
		decoded, err := url.PathUnescape(frag)
		if err != nil {
			return model.Node{}, lineError(sourceURL, lineNo, s, "节点名称 URL 解码失败", err)
		}
		name = strings.TrimSpace(decoded)
		if strings.ContainsAny(name, "\r\n\x00") {
			return model.Node{}, newParseError(sourceURL, lineNo, truncateSnippet(s, snippetMax), "SUB_PARSE_ERROR", "节点名称包含非法控制字符", "forbidden: \\r \\n \\0", nil)
		}
	}

	withoutQuery, query, hasQuery := strings.Cut(withoutFrag, "?")
	pluginName, pluginOpts, err := parseQueryPlugin(sourceURL, lineNo, query, hasQuery, s)
	if err != nil {
		return model.Node{}, err
	}

	rest := strings.TrimPrefix(withoutQuery, "ss://")
	if rest == "" {
		return model.Node{}, lineError(sourceURL, lineNo, s, "ss:// 后缺少内容", nil)
	}

	// Form A: <b64(method:password)>@<host>:<port>
	if strings.Contains(rest, "@") {
		userB64, hostPart, ok := strings.Cut(rest, "@")
		if !ok || userB64 == "" || hostPart == "" {
			return model.Node{}, lineError(sourceURL, lineNo, s, "ss uri 格式不合法", nil)
		}

		hostPort := hostPart
		if idx := strings.IndexByte(hostPort, '/'); idx >= 0 {
			// Only allow empty path or a single trailing "/".
			if hostPort[idx:] != "/" {
				return model.Node{}, lineError(sourceURL, lineNo, s, "ss uri path 不支持（仅允许空或 /）", nil)
			}
			hostPort = hostPort[:idx]
		}

		method, password, err := decodeMethodPassword(userB64)
		if err != nil {
			return model.Node{}, lineError(sourceURL, lineNo, s, "ss userinfo base64 解码失败", err)
		}

		server, port, err := parseHostPort(hostPort)
		if err != nil {
			return model.Node{}, lineError(sourceURL, lineNo, s, "服务器地址或端口不合法", err)
		}

		return ssNode(name, server, port, method, password, pluginName, pluginOpts), nil
	}

	// Form B: ss://<b64(method:password@host:port)>
	decoded, err := decodeB64ToString(rest)
	if err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, s, "ss base64 解码失败", err)
	}
	if !utf8.ValidString(decoded) {
		return model.Node{}, lineError(sourceURL, lineNo, s, "ss base64 解码结果不是合法 UTF-8", nil)
	}

	at := strings.LastIndex(decoded, "@")
	if at < 0 {
		return model.Node{}, lineError(sourceURL, lineNo, s, "ss base64 解码结果缺少 @ 分隔符", nil)
	}
	credPart := decoded[:at]
	hostPortPart := decoded[at+1:]

	colon := strings.IndexByte(credPart, ':')
	if colon <= 0 {
		return model.Node{}, lineError(sourceURL, lineNo, s, "ss base64 解码结果缺少 cipher:password", nil)
	}
	method := strings.TrimSpace(credPart[:colon])
	password := credPart[colon+1:]
	if method == "" || password == "" {
		return model.Node{}, lineError(sourceURL, lineNo, s, "cipher 或 password 不能为空", nil)
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return model.Node{}, lineError(sourceURL, lineNo, s, "cipher 或 password 包含非法控制字符", nil)
	}

	server, port, err := parseHostPort(hostPortPart)
	if err != nil {
		return model.Node{}, lineError(sourceURL, lineNo, s, "服务器地址或端口不合法", err)
	}

	return ssNode(name, server, port, method, password, pluginName, pluginOpts), nil
}

func parseQueryPlugin(sourceURL string, lineNo int, query string, hasQuery bool, fullLine string) (string, map[string]any, error) {
	if !hasQuery || query == "" {
		return "", nil, nil
	}

	// net/url.ParseQuery rejects non-URL-encoded semicolons, but SIP002 plugin
	// uses semicolons inside the "plugin" value. So we parse query manually and
	// only support '&' as separator.
	var pluginValue *string

	parts := strings.Split(query, "&")
	for _, part := range parts {
		if part == "" {
			continue
		}
		kRaw, vRaw, hasEq := strings.Cut(part, "=")
		if !hasEq {
			// Unlike net/url.ParseQuery we do not accept key-without-=
			// because it makes strict validation ambiguous.
			return "", nil, lineError(sourceURL, lineNo, fullLine, "query 参数必须是 key=value 形式", nil)
		}
		k, err := url.PathUnescape(kRaw)
		if err != nil {
			return "", nil, lineError(sourceURL, lineNo, fullLine, "query 参数解码失败", err)
		}
		v, err := url.PathUnescape(vRaw)
		if err != nil {
			return "", nil, lineError(sourceURL, lineNo, fullLine, "query 参数解码失败", err)
		}

		if k != "plugin" {
			return "", nil, newParseError(sourceURL, lineNo, truncateSnippet(fullLine, snippetMax), "SUB_PARSE_ERROR", "出现未知 query 参数（仅支持 plugin）", "only allow: plugin", nil)
		}
		if pluginValue != nil {
			return "", nil, lineError(sourceURL, lineNo, fullLine, "重复的 plugin 参数", nil)
		}
		pluginValue = &v
	}

	if pluginValue == nil {
		return "", nil, nil
	}
	if strings.TrimSpace(*pluginValue) == "" {
		return "", nil, lineError(sourceURL, lineNo, fullLine, "plugin 参数不能为空", nil)
	}

	segs := strings.Split(*pluginValue, ";")
	pluginName := strings.TrimSpace(segs[0])
	if pluginName == "" {
		return "", nil, lineError(sourceURL, lineNo, fullLine, "plugin 名称不能为空", nil)
	}
	opts := make(map[string]any, len(segs)-1)
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			return "", nil, lineError(sourceURL, lineNo, fullLine, "plugin 选项必须是 k=v 形式", nil)
		}
		k = strings.TrimSpace(k)
		// Keep v as-is (including spaces) after percent-decoding.
		if k == "" {
			return "", nil, lineError(sourceURL, lineNo, fullLine, "plugin 选项 key 不能为空", nil)
		}
		opts[k] = v
	}
	return pluginName, opts, nil
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	portInt, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if portInt < 1 || portInt > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, portInt, nil
}

// decodeMethodPassword accepts the base64 userinfo of SIP002 and the
// percent-encoded plain form used by 2022 ciphers.
func decodeMethodPassword(userinfo string) (string, string, error) {
	decoded, err := decodeB64ToString(userinfo)
	if err != nil || !strings.Contains(decoded, ":") {
		plain, perr := url.PathUnescape(userinfo)
		if perr != nil || !strings.Contains(plain, ":") {
			if err == nil {
				err = errors.New("missing ':'")
			}
			return "", "", err
		}
		decoded = plain
	}
	if !utf8.ValidString(decoded) {
		return "", "", errors.New("decoded method:password is not valid utf-8")
	}
	method, password, _ := strings.Cut(decoded, ":")
	method = strings.TrimSpace(method)
	if method == "" || password == "" {
		return "", "", errors.New("empty method or password")
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return "", "", errors.New("control chars in method/password")
	}
	return method, password, nil
}
