package identity

import (
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

// source says where a field is read from: a canonical alias (resolved through
// the alias table) and/or literal paths tried in order.
type source struct {
	alias normalize.Field
	paths []string
}

func alias(f normalize.Field) source { return source{alias: f} }
func paths(p ...string) source { return source{paths: p} }

type fieldSpec struct {
	label string
	kind  normalize.Kind
	src   source
	// def is the value the protocol assumes when the field is absent. nil
	// means the field has no default and needs no explicit/implicit marker.
	def any
}

type tlsMode int

const (
	tlsNone tlsMode = iota
	// tlsOptional: a "tls" switch (default off) and, when on, the SNI.
	tlsOptional
	// tlsAlways: the protocol always runs over TLS/QUIC; only the SNI varies.
	tlsAlways
)

type schema struct {
	fields    []fieldSpec
	transport bool
	tls       tlsMode
	reality   bool
}

var (
	fieldUUID       = fieldSpec{label: "uuid", kind: normalize.KindUUID, src: alias(normalize.FieldUUID)}
	fieldAuth       = fieldSpec{label: "auth", kind: normalize.KindSecret, src: alias(normalize.FieldAuth)}
	fieldEncryption = fieldSpec{label: "enc", kind: normalize.KindString, src: alias(normalize.FieldEncryption)}
	fieldUsername   = fieldSpec{label: "user", kind: normalize.KindSecret, src: alias(normalize.FieldUsername)}
	fieldALPN       = fieldSpec{label: "alpn", kind: normalize.KindStructured, src: paths("alpn")}
)

// schemaFor lists the identity-critical fields of each protocol. Every member
// of model.Protocols has its own case; unknown tags arrive here as
// ProtocolGeneric.
func schemaFor(p model.Protocol) schema {
	switch p {
	case model.ProtocolVMess:
		return schema{
			fields: []fieldSpec{
				fieldUUID,
				{label: "aid", kind: normalize.KindNumber, src: paths("alterId", "aid"), def: 0},
				{label: "enc", kind: normalize.KindString, src: alias(normalize.FieldEncryption), def: "auto"},
			},
			transport: true,
			tls:       tlsOptional,
		}
	case model.ProtocolVLESS:
		return schema{
			fields: []fieldSpec{
				fieldUUID,
				{label: "flow", kind: normalize.KindString, src: paths("flow")},
			},
			transport: true,
			tls:       tlsOptional,
			reality:   true,
		}
	case model.ProtocolTrojan:
		return schema{
			fields:    []fieldSpec{fieldAuth},
			transport: true,
			tls:       tlsAlways,
			reality:   true,
		}
	case model.ProtocolShadowsocks:
		return schema{
			fields: []fieldSpec{
				fieldEncryption,
				fieldAuth,
				{label: "plugin", kind: normalize.KindString, src: paths("plugin")},
				{label: "plugin-opts", kind: normalize.KindStructured, src: paths("plugin-opts")},
			},
		}
	case model.ProtocolShadowsocksR:
		return schema{
			fields: []fieldSpec{
				fieldEncryption,
				fieldAuth,
				{label: "proto", kind: normalize.KindString, src: paths("protocol"), def: "origin"},
				{label: "proto-param", kind: normalize.KindSecret, src: paths("protocol-param", "protoparam")},
				{label: "obfs", kind: normalize.KindString, src: paths("obfs"), def: "plain"},
				{label: "obfs-param", kind: normalize.KindSecret, src: paths("obfs-param", "obfsparam")},
			},
		}
	case model.ProtocolHysteria:
		return schema{
			fields: []fieldSpec{
				fieldAuth,
				{label: "proto", kind: normalize.KindString, src: paths("protocol"), def: "udp"},
				{label: "obfs", kind: normalize.KindSecret, src: paths("obfs")},
				fieldALPN,
			},
			tls: tlsAlways,
		}
	case model.ProtocolHysteria2:
		return schema{
			fields: []fieldSpec{
				fieldAuth,
				{label: "obfs", kind: normalize.KindString, src: paths("obfs")},
				{label: "obfs-password", kind: normalize.KindSecret, src: paths("obfs-password")},
			},
			tls: tlsAlways,
		}
	case model.ProtocolTUIC:
		return schema{
			fields: []fieldSpec{
				fieldUUID,
				fieldAuth,
				fieldALPN,
			},
			tls: tlsAlways,
		}
	case model.ProtocolSnell:
		return schema{
			fields: []fieldSpec{
				fieldAuth,
				{label: "version", kind: normalize.KindNumber, src: paths("version"), def: 1},
				{label: "obfs-opts", kind: normalize.KindStructured, src: paths("obfs-opts")},
			},
		}
	case model.ProtocolAnyTLS:
		return schema{
			fields: []fieldSpec{fieldAuth},
			tls:    tlsAlways,
		}
	case model.ProtocolWireGuard:
		return schema{
			fields: []fieldSpec{
				{label: "private-key", kind: normalize.KindSecret, src: paths("private-key")},
				{label: "public-key", kind: normalize.KindSecret, src: paths("public-key")},
				{label: "psk", kind: normalize.KindSecret, src: paths("pre-shared-key", "preshared-key")},
				{label: "ip", kind: normalize.KindDomain, src: paths("ip")},
				{label: "ipv6", kind: normalize.KindDomain, src: paths("ipv6")},
				{label: "reserved", kind: normalize.KindStructured, src: paths("reserved")},
				{label: "peers", kind: normalize.KindStructured, src: paths("peers")},
			},
		}
	case model.ProtocolSSH:
		return schema{
			fields: []fieldSpec{
				fieldUsername,
				fieldAuth,
				{label: "private-key", kind: normalize.KindSecret, src: paths("private-key")},
			},
		}
	case model.ProtocolHTTP:
		return schema{
			fields: []fieldSpec{
				fieldUsername,
				fieldAuth,
				{label: "headers", kind: normalize.KindStructured, src: paths("headers")},
			},
			tls: tlsOptional,
		}
	case model.ProtocolSOCKS5:
		return schema{
			fields: []fieldSpec{
				fieldUsername,
				fieldAuth,
			},
			tls: tlsOptional,
		}
	case model.ProtocolGeneric:
		return schema{
			fields: []fieldSpec{
				fieldAuth,
				fieldEncryption,
				{label: "net", kind: normalize.KindString, src: alias(normalize.FieldTransport)},
			},
		}
	}
	// model.ParseProtocol never yields a value outside model.Protocols; a
	// hand-built Protocol reaching here is a programming error.
	panic("identity: no schema for protocol " + string(p))
}
