package render

import (
	"encoding/json"

	"github.com/John-Robertt/nodededup/internal/model"
)

type jsonDoc struct {
	Proxies []model.Node `json:"proxies"`
}

func renderJSON(nodes []model.Node) ([]byte, error) {
	if nodes == nil {
		nodes = []model.Node{}
	}
	b, err := json.MarshalIndent(jsonDoc{Proxies: nodes}, "", "  ")
	if err != nil {
		return nil, &RenderError{
			AppError: model.AppError{Code: "RENDER_ERROR", Message: "JSON 编码失败", Stage: "render"},
			Cause:    err,
		}
	}
	return append(b, '\n'), nil
}
