package render

import (
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
)

// clashTypes is the set of proxy type names a Clash (mihomo) client imports.
var clashTypes = map[string]struct{}{
	"ss":        {},
	"ssr":       {},
	"vmess":     {},
	"vless":     {},
	"trojan":    {},
	"hysteria":  {},
	"hysteria2": {},
	"tuic":      {},
	"snell":     {},
	"anytls":    {},
	"wireguard": {},
	"ssh":       {},
	"http":      {},
	"socks5":    {},
}

// ClashType returns the type name to write for a node tagged raw. Spellings
// Clash understands are kept; known aliases map to their protocol name.
// Unknown protocols report false.
func ClashType(raw string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := clashTypes[t]; ok {
		return t, true
	}
	p := model.ParseProtocol(t)
	if p == model.ProtocolGeneric {
		return "", false
	}
	return string(p), true
}
