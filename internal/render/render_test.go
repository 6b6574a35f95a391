package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/nodededup/internal/model"
)

func TestRender_Clash_FieldOrderAndQuoting(t *testing.T) {
	nodes := []model.Node{
		{
			Name:   "123",
			Type:   "Shadowsocks",
			Server: "example.com",
			Port:   json.Number("8388"),
			Params: map[string]any{
				"password": "123",
				"cipher":   "aes-128-gcm",
				"plugin":   "obfs",
				"plugin-opts": map[string]any{
					"mode": "tls",
					"host": "example.com",
				},
			},
		},
	}

	out, err := Render(TargetClash, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(out)
	want := strings.Join([]string{
		"proxies:",
		`  - name: "123"`,
		"    type: ss",
		`    server: "example.com"`,
		"    port: 8388",
		"    cipher: aes-128-gcm",
		`    password: "123"`,
		"    plugin: obfs",
		"    plugin-opts:",
		"      host: example.com",
		"      mode: tls",
		"",
	}, "\n")
	if got != want {
		t.Fatalf("output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_Clash_RoundTrip(t *testing.T) {
	nodes := []model.Node{
		{Name: "a", Type: "trojan", Server: "t.example.com", Port: 443, Params: map[string]any{"password": "yes", "alpn": []any{"h2"}}},
		{Name: "b", Type: "hy2", Server: "h.example.com", Port: 8443, Params: map[string]any{"password": "p"}},
	}
	out, err := Render(TargetClash, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, out)
	}
	if len(doc.Proxies) != 2 {
		t.Fatalf("len=%d, want=2", len(doc.Proxies))
	}
	if doc.Proxies[0]["password"] != "yes" {
		t.Fatalf("password=%#v, want string yes", doc.Proxies[0]["password"])
	}
	if doc.Proxies[1]["type"] != "hysteria2" {
		t.Fatalf("type=%v, want=hysteria2", doc.Proxies[1]["type"])
	}
}

func TestRender_Clash_Empty(t *testing.T) {
	out, err := Render(TargetClash, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "proxies: []\n" {
		t.Fatalf("out=%q, want=%q", out, "proxies: []\n")
	}
}

func TestRender_Clash_UnsupportedType(t *testing.T) {
	nodes := []model.Node{{Name: "x", Type: "quic-magic", Server: "s", Port: 1}}
	_, err := Render(TargetClash, nodes)
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RenderError, got %T: %v", err, err)
	}
	if re.AppError.Code != "RENDER_ERROR" || re.AppError.Hint != "index=0" {
		t.Fatalf("code/hint=%q/%q", re.AppError.Code, re.AppError.Hint)
	}
}

func TestRender_JSON(t *testing.T) {
	nodes := []model.Node{{Name: "a", Type: "vmess", Server: "v", Port: 443, Params: map[string]any{"uuid": "u"}}}
	out, err := Render(TargetJSON, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc struct {
		Proxies []map[string]any `json:"proxies"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Proxies) != 1 || doc.Proxies[0]["uuid"] != "u" || doc.Proxies[0]["name"] != "a" {
		t.Fatalf("proxies=%v", doc.Proxies)
	}

	empty, err := Render(TargetJSON, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(empty), `"proxies": []`) {
		t.Fatalf("empty=%s", empty)
	}
}

func TestParseTarget(t *testing.T) {
	cases := map[string]Target{"": TargetClash, "Clash": TargetClash, " json ": TargetJSON}
	for in, want := range cases {
		got, err := ParseTarget(in)
		if err != nil || got != want {
			t.Fatalf("ParseTarget(%q)=%q,%v, want=%q", in, got, err, want)
		}
	}
	_, err := ParseTarget("surge")
	var re *RenderError
	if !errors.As(err, &re) || re.AppError.Code != "UNSUPPORTED_TARGET" {
		t.Fatalf("expected UNSUPPORTED_TARGET, got %v", err)
	}
}

func TestClashType(t *testing.T) {
	cases := map[string]string{"ss": "ss", "Shadowsocks": "ss", "wg": "wireguard", "socks5": "socks5"}
	for in, want := range cases {
		got, ok := ClashType(in)
		if !ok || got != want {
			t.Fatalf("ClashType(%q)=%q,%v, want=%q", in, got, ok, want)
		}
	}
	if _, ok := ClashType("unknown"); ok {
		t.Fatalf("unknown type should not be accepted")
	}
}
