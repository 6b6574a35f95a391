package identity

import (
	"sort"

	"github.com/John-Robertt/nodededup/internal/normalize"
)

const defaultNetwork = "tcp"

// transport flattens the transport layer: the network type (with its
// explicit/implicit marker) followed by the fields that network puts on the
// wire. Per-network options may live in a nested "<net>-opts" object (Clash)
// or flat on the node (URL-style parsers); both spellings resolve here.
func (kb *keyBuilder) transport() {
	v, ok := kb.aliases.Lookup(kb.params, normalize.FieldTransport)
	kb.value("net", normalize.KindString, v, ok, defaultNetwork)

	network := defaultNetwork
	if ok {
		network = normalize.String(v)
	}

	switch network {
	case "ws", "httpupgrade", "h2", "http", "xhttp", "splithttp":
		kb.transportPath(network)
		kb.transportHost(network)
	case "grpc":
		sv, sok := normalize.Lookup(kb.params,
			"grpc-opts.grpc-service-name",
			"grpc-opts.service-name",
			"grpc-service-name",
			"service-name",
		)
		kb.value("grpc-service", normalize.KindSecret, sv, sok, nil)
	}
}

func (kb *keyBuilder) transportPath(network string) {
	opts := network + "-opts"
	candidates := []string{opts + ".path"}
	if network == "ws" {
		candidates = append(candidates, "ws-path")
	}
	candidates = append(candidates, "path")

	v, ok := normalize.Lookup(kb.params, candidates...)
	if !ok {
		kb.labeled("path", "")
		return
	}
	// h2/http list several candidate paths; order is the client's pick order.
	if items, isList := v.([]any); isList {
		out := make([]any, 0, len(items))
		for _, it := range items {
			out = append(out, normalize.Path(it))
		}
		kb.labeled("path", normalize.Canonical(out))
		return
	}
	kb.labeled("path", normalize.Value(v, normalize.KindPath))
}

func (kb *keyBuilder) transportHost(network string) {
	opts := network + "-opts"
	candidates := []string{opts + ".headers.host", opts + ".host"}
	if network == "ws" {
		candidates = append(candidates, "ws-headers.host")
	}
	// In unified mode a bare "host" is a server-name alias and is consumed
	// there instead.
	if kb.aliases.Mode() == normalize.AliasStrict {
		candidates = append(candidates, "host")
	}

	v, ok := normalize.Lookup(kb.params, candidates...)
	if !ok {
		kb.labeled("host", "")
		return
	}
	// A host list is a set of equivalent Host header values.
	if items, isList := v.([]any); isList {
		hosts := make([]string, 0, len(items))
		for _, it := range items {
			hosts = append(hosts, normalize.Domain(it))
		}
		sort.Strings(hosts)
		out := make([]any, len(hosts))
		for i, h := range hosts {
			out[i] = h
		}
		kb.labeled("host", normalize.Canonical(out))
		return
	}
	kb.labeled("host", normalize.Value(v, normalize.KindDomain))
}

// optionalTLS writes the TLS switch and, only when TLS is on, the server name.
// A "security" field (tls/reality/xtls) from URL-style sources also turns it on.
func (kb *keyBuilder) optionalTLS() {
	v, ok := normalize.Lookup(kb.params, "tls")
	enabled := ok && normalize.Bool(v)
	if sec, sok := normalize.Lookup(kb.params, "security"); sok {
		switch normalize.String(sec) {
		case "tls", "reality", "xtls":
			enabled, ok = true, true
		case "none", "":
			ok = true
		}
	}
	if _, rok := normalize.Lookup(kb.params, "reality-opts"); rok {
		enabled, ok = true, true
	}
	kb.value("tls", normalize.KindBool, enabled, ok, false)
	if enabled {
		kb.serverName()
	}
}

func (kb *keyBuilder) serverName() {
	v, ok := kb.aliases.Lookup(kb.params, normalize.FieldServerName)
	kb.value("sni", normalize.KindDomain, v, ok, nil)
}

func (kb *keyBuilder) reality() {
	pbk, pok := normalize.Lookup(kb.params, "reality-opts.public-key", "public-key", "pbk")
	sid, sok := normalize.Lookup(kb.params, "reality-opts.short-id", "short-id", "sid")
	if !pok && !sok {
		return
	}
	kb.value("pbk", normalize.KindSecret, pbk, pok, nil)
	kb.value("sid", normalize.KindSecret, sid, sok, nil)
}
