package score

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

var aliases = normalize.NewAliasTable(normalize.AliasStrict)

// Completeness rewards the presence of the common fields: server, port and
// type share 60 points, the optional fields that apply to the protocol share
// the remaining 40.
type Completeness struct{}

func (Completeness) Name() string                        { return "completeness" }
func (Completeness) Weight() float64                     { return 1 }
func (Completeness) Applicable(model.Node, Context) bool { return true }

func (Completeness) Score(n model.Node, ctx Context) (float64, error) {
	var s float64
	if strings.TrimSpace(n.Server) != "" {
		s += 20
	}
	if validPort(n.Port) {
		s += 20
	}
	if strings.TrimSpace(n.Type) != "" {
		s += 20
	}

	optional := []bool{strings.TrimSpace(n.Name) != ""}
	if usesUUID(ctx.Protocol) {
		optional = append(optional, hasField(n, normalize.FieldUUID))
	}
	if usesPassword(ctx.Protocol) {
		optional = append(optional, hasField(n, normalize.FieldAuth))
	}
	per := 40 / float64(len(optional))
	for _, ok := range optional {
		if ok {
			s += per
		}
	}
	return s, nil
}

// Fallback counts the non-empty required and optional fields. It is the score
// used when no strategy applies or every applicable one failed.
func Fallback(n model.Node) float64 {
	fields := []bool{
		strings.TrimSpace(n.Server) != "",
		validPort(n.Port),
		strings.TrimSpace(n.Type) != "",
		strings.TrimSpace(n.Name) != "",
		hasField(n, normalize.FieldUUID),
		hasField(n, normalize.FieldAuth),
	}
	count := 0
	for _, ok := range fields {
		if ok {
			count++
		}
	}
	return float64(count) * 100 / float64(len(fields))
}

// VMess: UUID validity 30, cipher strength 20, transport 25, TLS 25.
type VMess struct{}

func (VMess) Name() string    { return "vmess" }
func (VMess) Weight() float64 { return 1.5 }

func (VMess) Applicable(_ model.Node, ctx Context) bool {
	return ctx.Protocol == model.ProtocolVMess
}

func (VMess) Score(n model.Node, _ Context) (float64, error) {
	tr, err := transportCompleteness(n)
	if err != nil {
		return 0, err
	}
	return uuidPoints(n, 30) + vmessCipherPoints(n) + 25*tr + 25*tlsCompleteness(n), nil
}

var vmessCipherRank = map[string]float64{
	"aes-128-gcm":       20,
	"chacha20-poly1305": 20,
	"auto":              16,
	"aes-128-cfb":       8,
	"zero":              2,
	"none":              0,
}

func vmessCipherPoints(n model.Node) float64 {
	v, ok := aliases.Lookup(n.Params, normalize.FieldEncryption)
	if !ok {
		return 12
	}
	if p, known := vmessCipherRank[normalize.String(v)]; known {
		return p
	}
	return 5
}

// VLESS: UUID validity 40, security layer 30, transport 30.
type VLESS struct{}

func (VLESS) Name() string    { return "vless" }
func (VLESS) Weight() float64 { return 1.5 }

func (VLESS) Applicable(_ model.Node, ctx Context) bool {
	return ctx.Protocol == model.ProtocolVLESS
}

func (VLESS) Score(n model.Node, _ Context) (float64, error) {
	tr, err := transportCompleteness(n)
	if err != nil {
		return 0, err
	}
	var sec float64
	switch {
	case hasPath(n, "reality-opts.public-key", "public-key", "pbk"):
		sec = 30
	case tlsEnabled(n) && hasField(n, normalize.FieldServerName):
		sec = 25
	case tlsEnabled(n):
		sec = 15
	default:
		sec = 5
	}
	return uuidPoints(n, 40) + sec + 30*tr, nil
}

// Trojan: password strength 40, SNI 30, transport 30.
type Trojan struct{}

func (Trojan) Name() string    { return "trojan" }
func (Trojan) Weight() float64 { return 1.5 }

func (Trojan) Applicable(_ model.Node, ctx Context) bool {
	return ctx.Protocol == model.ProtocolTrojan
}

func (Trojan) Score(n model.Node, _ Context) (float64, error) {
	tr, err := transportCompleteness(n)
	if err != nil {
		return 0, err
	}
	var sni float64
	if hasField(n, normalize.FieldServerName) {
		sni = 30
	}
	return passwordPoints(n, 40) + sni + 30*tr, nil
}

// Shadowsocks: cipher strength 60, password 40.
type Shadowsocks struct{}

func (Shadowsocks) Name() string    { return "shadowsocks" }
func (Shadowsocks) Weight() float64 { return 1.5 }

func (Shadowsocks) Applicable(_ model.Node, ctx Context) bool {
	return ctx.Protocol == model.ProtocolShadowsocks
}

func (Shadowsocks) Score(n model.Node, _ Context) (float64, error) {
	var c float64
	v, ok := aliases.Lookup(n.Params, normalize.FieldEncryption)
	cipher := normalize.String(v)
	switch {
	case !ok:
		c = 0
	case strings.HasPrefix(cipher, "2022-blake3-"):
		c = 60
	case strings.HasSuffix(cipher, "-gcm"), strings.Contains(cipher, "poly1305"):
		c = 50
	case cipher == "none", cipher == "plain", cipher == "table":
		c = 0
	case strings.HasSuffix(cipher, "-cfb"), strings.HasSuffix(cipher, "-ctr"), cipher == "rc4-md5":
		c = 15
	default:
		c = 20
	}
	return c + passwordPoints(n, 40), nil
}

func uuidPoints(n model.Node, full float64) float64 {
	v, ok := aliases.Lookup(n.Params, normalize.FieldUUID)
	if !ok {
		return 0
	}
	u, err := uuid.Parse(strings.TrimSpace(normalize.Text(v)))
	if err != nil {
		return 0
	}
	if ver := u.Version(); u.Variant() == uuid.RFC4122 && ver >= 1 && ver <= 8 {
		return full
	}
	return full / 2
}

func passwordPoints(n model.Node, full float64) float64 {
	v, ok := aliases.Lookup(n.Params, normalize.FieldAuth)
	if !ok {
		return 0
	}
	switch l := len(normalize.Secret(v)); {
	case l >= 16:
		return full
	case l >= 8:
		return full * 0.6
	case l > 0:
		return full * 0.25
	default:
		return 0
	}
}

// transportCompleteness returns 0..1. A transport options block that is not
// an object is an error: the record is malformed and this strategy abstains.
func transportCompleteness(n model.Node) (float64, error) {
	network := "tcp"
	if v, ok := aliases.Lookup(n.Params, normalize.FieldTransport); ok {
		network = normalize.String(v)
	}
	if network == "tcp" || network == "" {
		return 1, nil
	}

	optsKey := network + "-opts"
	if raw, ok := normalize.Lookup(n.Params, optsKey); ok {
		if _, isMap := normalize.AsMap(raw); !isMap {
			return 0, fmt.Errorf("%s is %T, want object", optsKey, raw)
		}
	}

	switch network {
	case "ws", "httpupgrade", "h2", "http", "xhttp", "splithttp":
		var s float64
		if hasPath(n, optsKey+".path", "ws-path", "path") {
			s += 0.6
		}
		if hasPath(n, optsKey+".headers.host", optsKey+".host", "ws-headers.host", "host") {
			s += 0.4
		}
		return s, nil
	case "grpc":
		if hasPath(n, "grpc-opts.grpc-service-name", "grpc-opts.service-name", "grpc-service-name", "service-name") {
			return 1, nil
		}
		return 0.2, nil
	default:
		return 0.4, nil
	}
}

func tlsCompleteness(n model.Node) float64 {
	if !tlsEnabled(n) {
		return 0.4
	}
	if hasField(n, normalize.FieldServerName) {
		return 1
	}
	return 0.6
}

func tlsEnabled(n model.Node) bool {
	if v, ok := normalize.Lookup(n.Params, "tls"); ok && normalize.Bool(v) {
		return true
	}
	if v, ok := normalize.Lookup(n.Params, "security"); ok {
		switch normalize.String(v) {
		case "tls", "reality", "xtls":
			return true
		}
	}
	return false
}

func hasField(n model.Node, f normalize.Field) bool {
	v, ok := aliases.Lookup(n.Params, f)
	return ok && !normalize.IsEmpty(v)
}

func hasPath(n model.Node, paths ...string) bool {
	v, ok := normalize.Lookup(n.Params, paths...)
	return ok && !normalize.IsEmpty(v)
}

func validPort(v any) bool {
	p := normalize.Number(v, 0)
	return p >= 1 && p <= 65535 && p == float64(int(p))
}

func usesUUID(p model.Protocol) bool {
	switch p {
	case model.ProtocolVMess, model.ProtocolVLESS, model.ProtocolTUIC:
		return true
	}
	return false
}

func usesPassword(p model.Protocol) bool {
	switch p {
	case model.ProtocolTrojan, model.ProtocolShadowsocks, model.ProtocolShadowsocksR,
		model.ProtocolHysteria, model.ProtocolHysteria2, model.ProtocolTUIC,
		model.ProtocolSnell, model.ProtocolAnyTLS, model.ProtocolSSH,
		model.ProtocolHTTP, model.ProtocolSOCKS5:
		return true
	}
	return false
}
