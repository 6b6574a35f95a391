// Package render writes deduplicated nodes back out in a client format.
package render

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
)

type Target string

const (
	TargetClash Target = "clash"
	TargetJSON  Target = "json"
)

// ParseTarget accepts a target name case-insensitively. An empty name means
// TargetClash.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TargetClash):
		return TargetClash, nil
	case string(TargetJSON):
		return TargetJSON, nil
	default:
		return "", unsupportedTarget(s)
	}
}

// ContentType is the media type of a rendered document.
func (t Target) ContentType() string {
	if t == TargetJSON {
		return "application/json; charset=utf-8"
	}
	return "text/yaml; charset=utf-8"
}

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// Render serializes nodes for target. The output always carries a top-level
// "proxies" list so it can be fed back into the subscription parser.
func Render(target Target, nodes []model.Node) ([]byte, error) {
	switch target {
	case TargetClash:
		return renderClash(nodes)
	case TargetJSON:
		return renderJSON(nodes)
	default:
		return nil, unsupportedTarget(string(target))
	}
}

func unsupportedTarget(s string) error {
	return &RenderError{
		AppError: model.AppError{
			Code:    "UNSUPPORTED_TARGET",
			Message: fmt.Sprintf("不支持的 target：%s", s),
			Stage:   "render",
			Hint:    "supported: clash, json",
		},
	}
}
