package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/nodededup/internal/model"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "SUB_YAML_ERROR",
		Message: "Clash YAML 解析失败",
		Stage:   "parse_sub",
		URL:     "https://example.com/clash.yaml",
		Line:    123,
		Snippet: "- {name: a, type: ss",
		Hint:    "expected: proxies: [...]",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "SUB_YAML_ERROR" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "SUB_YAML_ERROR")
	}
	if resp.Error.Stage != "parse_sub" {
		t.Fatalf("stage = %q, want %q", resp.Error.Stage, "parse_sub")
	}
	if resp.Error.Line != 123 {
		t.Fatalf("line = %d, want %d", resp.Error.Line, 123)
	}
}
