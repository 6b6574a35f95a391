package sub

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestParse_SSRawList(t *testing.T) {
	raw := strings.Join([]string{
		"# comment",
		"  ",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201",
		"ss://YWVzLTEyOC1nY206cDI=@example.com:8389#Node%202",
		"",
	}, "\n")

	nodes, err := Parse("https://example.com/sub.txt", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len=%d, want=2", len(nodes))
	}
	if nodes[0].Type != "ss" {
		t.Fatalf("type=%q, want=%q", nodes[0].Type, "ss")
	}
	if nodes[0].Name != "Node 1" {
		t.Fatalf("name=%q, want=%q", nodes[0].Name, "Node 1")
	}
	if nodes[0].Server != "example.com" || nodes[0].Port != 8388 {
		t.Fatalf("server/port=%q/%v, want example.com/8388", nodes[0].Server, nodes[0].Port)
	}
	if nodes[0].Params["cipher"] != "aes-128-gcm" || nodes[0].Params["password"] != "pass" {
		t.Fatalf("params=%v, want cipher=aes-128-gcm password=pass", nodes[0].Params)
	}
}

func TestParse_SSBase64List(t *testing.T) {
	raw := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201\n"
	b64 := base64.StdEncoding.EncodeToString([]byte(raw))

	nodes, err := Parse("https://example.com/sub.b64", b64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len=%d, want=1", len(nodes))
	}
	if nodes[0].Name != "Node 1" {
		t.Fatalf("name=%q, want=%q", nodes[0].Name, "Node 1")
	}
}

func TestParse_SSSIP002Plugin(t *testing.T) {
	raw := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?plugin=simple-obfs%3Bobfs%3Dtls%3Bobfs-host%3Dexample.com#obfs\n"
	nodes, err := Parse("https://example.com/sub.txt", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len=%d, want=1", len(nodes))
	}
	if got := nodes[0].Params["plugin"]; got != "simple-obfs" {
		t.Fatalf("plugin=%v, want=%q", got, "simple-obfs")
	}
	opts, ok := nodes[0].Params["plugin-opts"].(map[string]any)
	if !ok || len(opts) != 2 {
		t.Fatalf("plugin-opts=%#v, want 2 entries", nodes[0].Params["plugin-opts"])
	}
	if opts["obfs"] != "tls" || opts["obfs-host"] != "example.com" {
		t.Fatalf("plugin-opts=%v, want obfs=tls obfs-host=example.com", opts)
	}
}

func TestParse_SSOldBase64Form(t *testing.T) {
	decoded := "aes-128-gcm:pass@ex.com:443"
	b64 := base64.StdEncoding.EncodeToString([]byte(decoded))
	raw := "ss://" + b64 + "#old\n"

	nodes, err := Parse("https://example.com/sub.txt", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len=%d, want=1", len(nodes))
	}
	if nodes[0].Params["cipher"] != "aes-128-gcm" || nodes[0].Params["password"] != "pass" {
		t.Fatalf("params=%v, want aes-128-gcm/pass", nodes[0].Params)
	}
	if nodes[0].Server != "ex.com" || nodes[0].Port != 443 {
		t.Fatalf("server/port=%q/%v, want ex.com/443", nodes[0].Server, nodes[0].Port)
	}
}

func TestParse_SSPlainUserinfo(t *testing.T) {
	raw := "ss://2022-blake3-aes-128-gcm:c2VjcmV0a2V5MTIzNDU2Nw%3D%3D@example.com:443#plain\n"
	nodes, err := Parse("inline", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Params["cipher"] != "2022-blake3-aes-128-gcm" {
		t.Fatalf("cipher=%v, want=2022-blake3-aes-128-gcm", nodes[0].Params["cipher"])
	}
	if nodes[0].Params["password"] != "c2VjcmV0a2V5MTIzNDU2Nw==" {
		t.Fatalf("password=%v, want=c2VjcmV0a2V5MTIzNDU2Nw==", nodes[0].Params["password"])
	}
}

func TestParse_SSPasswordKeepsSpaces(t *testing.T) {
	decoded := "aes-128-gcm:pass 123 @ex.com:443"
	raw := "ss://" + base64.StdEncoding.EncodeToString([]byte(decoded)) + "#x\n"
	nodes, err := Parse("inline", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Params["password"] != "pass 123 " {
		t.Fatalf("password=%q, want=%q", nodes[0].Params["password"], "pass 123 ")
	}
}

func TestParse_SSUnknownQueryParamStrict(t *testing.T) {
	raw := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?foo=bar#x\n"
	_, err := Parse("https://example.com/sub.txt", raw)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.AppError.Code != "SUB_PARSE_ERROR" {
		t.Fatalf("code=%q, want=%q", pe.AppError.Code, "SUB_PARSE_ERROR")
	}
	if pe.AppError.Stage != "parse_sub" {
		t.Fatalf("stage=%q, want=%q", pe.AppError.Stage, "parse_sub")
	}
	if pe.AppError.Line != 1 {
		t.Fatalf("line=%d, want=1", pe.AppError.Line)
	}
	if pe.AppError.URL != "https://example.com/sub.txt" {
		t.Fatalf("url=%q, want=https://example.com/sub.txt", pe.AppError.URL)
	}
	if pe.AppError.Snippet == "" {
		t.Fatalf("snippet should not be empty")
	}
}
