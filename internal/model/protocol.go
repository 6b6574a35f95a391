package model

import "strings"

// Protocol is the closed set of proxy protocols the identity engine knows how
// to key. Anything else is ProtocolGeneric.
type Protocol string

const (
	ProtocolVMess        Protocol = "vmess"
	ProtocolVLESS        Protocol = "vless"
	ProtocolTrojan       Protocol = "trojan"
	ProtocolShadowsocks  Protocol = "ss"
	ProtocolShadowsocksR Protocol = "ssr"
	ProtocolHysteria     Protocol = "hysteria"
	ProtocolHysteria2    Protocol = "hysteria2"
	ProtocolTUIC         Protocol = "tuic"
	ProtocolSnell        Protocol = "snell"
	ProtocolAnyTLS       Protocol = "anytls"
	ProtocolWireGuard    Protocol = "wireguard"
	ProtocolSSH          Protocol = "ssh"
	ProtocolHTTP         Protocol = "http"
	ProtocolSOCKS5       Protocol = "socks5"

	// ProtocolGeneric covers unknown or future tags. Keys for it only use the
	// auth/encryption/transport fields.
	ProtocolGeneric Protocol = "generic"
)

// Protocols lists every known protocol, ProtocolGeneric last.
func Protocols() []Protocol {
	return []Protocol{
		ProtocolVMess,
		ProtocolVLESS,
		ProtocolTrojan,
		ProtocolShadowsocks,
		ProtocolShadowsocksR,
		ProtocolHysteria,
		ProtocolHysteria2,
		ProtocolTUIC,
		ProtocolSnell,
		ProtocolAnyTLS,
		ProtocolWireGuard,
		ProtocolSSH,
		ProtocolHTTP,
		ProtocolSOCKS5,
		ProtocolGeneric,
	}
}

var protocolAliases = map[string]Protocol{
	"vmess":        ProtocolVMess,
	"vless":        ProtocolVLESS,
	"trojan":       ProtocolTrojan,
	"ss":           ProtocolShadowsocks,
	"shadowsocks":  ProtocolShadowsocks,
	"ssr":          ProtocolShadowsocksR,
	"shadowsocksr": ProtocolShadowsocksR,
	"hysteria":     ProtocolHysteria,
	"hy":           ProtocolHysteria,
	"hysteria2":    ProtocolHysteria2,
	"hy2":          ProtocolHysteria2,
	"tuic":         ProtocolTUIC,
	"snell":        ProtocolSnell,
	"anytls":       ProtocolAnyTLS,
	"wireguard":    ProtocolWireGuard,
	"wg":           ProtocolWireGuard,
	"ssh":          ProtocolSSH,
	"http":         ProtocolHTTP,
	"https":        ProtocolHTTP,
	"socks5":       ProtocolSOCKS5,
	"socks":        ProtocolSOCKS5,
	"socks5h":      ProtocolSOCKS5,
}

// ParseProtocol maps a raw type tag to a Protocol, case-insensitively.
func ParseProtocol(tag string) Protocol {
	if p, ok := protocolAliases[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return p
	}
	return ProtocolGeneric
}

// Tag returns the stable string used for p inside canonical keys. For
// ProtocolGeneric the raw tag is kept so that two unrelated unknown protocols
// never share a key.
func (p Protocol) Tag(raw string) string {
	if p != ProtocolGeneric {
		return string(p)
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return string(ProtocolGeneric)
	}
	return string(ProtocolGeneric) + "/" + raw
}
