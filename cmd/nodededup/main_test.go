package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDeriveHealthzURL_FromListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:25600", "http://127.0.0.1:25600/healthz"},
		{"0.0.0.0:25600", "http://127.0.0.1:25600/healthz"},
		{":25600", "http://127.0.0.1:25600/healthz"},
		{"25600", "http://127.0.0.1:25600/healthz"},
		{"[::]:25600", "http://127.0.0.1:25600/healthz"},
		{"http://127.0.0.1:25600", "http://127.0.0.1:25600/healthz"},
		{"http://127.0.0.1:25600/", "http://127.0.0.1:25600/healthz"},
	}
	for _, tt := range tests {
		got, err := deriveHealthzURL(tt.in)
		if err != nil {
			t.Fatalf("deriveHealthzURL(%q) unexpected err: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("deriveHealthzURL(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveHealthzURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "a:b:c"} {
		if _, err := deriveHealthzURL(in); err == nil {
			t.Fatalf("deriveHealthzURL(%q) expected error", in)
		}
	}
}

func newHealthzServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRunHealthcheck_OK(t *testing.T) {
	ts := newHealthzServer(t)
	if err := runHealthcheck(ts.URL+"/healthz", 200*time.Millisecond); err != nil {
		t.Fatalf("runHealthcheck unexpected err: %v", err)
	}
}

func TestRunHealthcheck_StatusNotOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := runHealthcheck(ts.URL, 200*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "unexpected status")
	}
}

func TestHealthcheckCmd(t *testing.T) {
	ts := newHealthzServer(t)

	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"healthcheck", "--listen", strings.TrimPrefix(ts.URL, "http://"), "--timeout", "1s"})
	if err := root.Execute(); err != nil {
		t.Fatalf("healthcheck err: %v", err)
	}
	if got := stdout.String(); got != "ok\n" {
		t.Fatalf("stdout=%q, want %q", got, "ok\n")
	}
}

func TestServeCmd_RejectsBadFlags(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--position", "middle"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for invalid --position")
	}
}
