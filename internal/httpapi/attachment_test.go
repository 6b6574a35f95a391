package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/John-Robertt/nodededup/internal/render"
)

func TestOutputFileName(t *testing.T) {
	tests := []struct {
		base   string
		target render.Target
		want   string
	}{
		{"", render.TargetClash, ""},
		{"  ", render.TargetJSON, ""},
		{"nodes", render.TargetClash, "nodes.yaml"},
		{"nodes", render.TargetJSON, "nodes.json"},
		{"nodes.yml", render.TargetClash, "nodes.yml"},
		{".hidden", render.TargetClash, ".hidden.yaml"},
		{"trailing.", render.TargetJSON, "trailing..json"},
	}
	for _, tt := range tests {
		got, err := outputFileName(tt.base, tt.target)
		if err != nil {
			t.Fatalf("outputFileName(%q) unexpected err: %v", tt.base, err)
		}
		if got != tt.want {
			t.Fatalf("outputFileName(%q)=%q, want=%q", tt.base, got, tt.want)
		}
	}
}

func TestOutputFileName_Rejects(t *testing.T) {
	for _, base := range []string{"a/b", `a\b`, "a\nb", strings.Repeat("x", 201)} {
		_, err := outputFileName(base, render.TargetClash)
		if err == nil {
			t.Fatalf("outputFileName(%q) expected error", base)
		}
		var ae *APIError
		if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
			t.Fatalf("outputFileName(%q) err=%v, want 400 APIError", base, err)
		}
	}
}

func TestContentDispositionAttachment_UTF8(t *testing.T) {
	got := contentDispositionAttachment(`节点 "A".yaml`)
	want := `attachment; filename="节点 \"A\".yaml"; filename*=UTF-8''%E8%8A%82%E7%82%B9%20%22A%22.yaml`
	if got != want {
		t.Fatalf("Content-Disposition=%q, want=%q", got, want)
	}
}
