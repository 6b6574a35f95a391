package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/keyexpr"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
	"github.com/John-Robertt/nodededup/internal/render"
	"github.com/John-Robertt/nodededup/internal/sub"
)

const (
	modeFull   = "full"
	modeByType = "by-type"
	modeBatch  = "batch"
	modeCustom = "custom"
)

type dedupRequest struct {
	Content  string
	Subs     []string
	Nodes    []model.Node
	Mode     string
	KeyExpr  string
	Options  dedup.Options
	Target   render.Target
	FileName string
}

type dedupRequestJSON struct {
	Content  string       `json:"content"`
	Subs     []string     `json:"subs"`
	Nodes    []model.Node `json:"nodes"`
	Mode     string       `json:"mode"`
	KeyExpr  string       `json:"keyExpr"`
	Options  *optionsJSON `json:"options"`
	Target   string       `json:"target"`
	FileName string       `json:"fileName"`
}

// optionsJSON uses pointers so an absent field keeps the server default.
type optionsJSON struct {
	Action         *string `json:"action"`
	KeepFirst      *bool   `json:"keepFirst"`
	CaseSensitive  *bool   `json:"caseSensitive"`
	Template       *string `json:"template"`
	Link           *string `json:"link"`
	Position       *string `json:"position"`
	ChunkSize      *int    `json:"chunkSize"`
	BatchFirstSeen *bool   `json:"batchFirstSeen"`
	AliasMode      *string `json:"aliasMode"`
}

func (o *optionsJSON) apply(opt dedup.Options) (dedup.Options, error) {
	if o == nil {
		return opt, nil
	}
	if o.Action != nil {
		opt.Action = dedup.Action(strings.ToLower(strings.TrimSpace(*o.Action)))
	}
	if o.KeepFirst != nil {
		opt.KeepFirst = *o.KeepFirst
	}
	if o.CaseSensitive != nil {
		opt.CaseSensitive = *o.CaseSensitive
	}
	if o.Template != nil {
		opt.Template = *o.Template
	}
	if o.Link != nil {
		opt.Link = *o.Link
	}
	if o.Position != nil {
		opt.Position = dedup.Position(strings.ToLower(strings.TrimSpace(*o.Position)))
	}
	if o.ChunkSize != nil {
		opt.ChunkSize = *o.ChunkSize
	}
	if o.BatchFirstSeen != nil {
		opt.BatchFirstSeen = *o.BatchFirstSeen
	}
	if o.AliasMode != nil {
		mode, ok := normalize.ParseAliasMode(*o.AliasMode)
		if !ok {
			return dedup.Options{}, requestError("INVALID_ARGUMENT", "不支持的 aliasMode（仅支持 strict/unified）", *o.AliasMode)
		}
		opt.AliasMode = mode
	}
	return opt, nil
}

func (s *server) handleDedup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes)
	req, err := s.parseDedupPOST(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	s.serveDedup(w, r, req)
}

// handleSub serves GET /sub so clients can subscribe to the deduplicated
// output of remote subscriptions directly.
func (s *server) handleSub(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSubGET(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	s.serveDedup(w, r, req)
}

func (s *server) serveDedup(w http.ResponseWriter, r *http.Request, req dedupRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opt.RequestTimeout)
	defer cancel()

	in, err := s.collectNodes(ctx, req)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	out, err := s.runDedup(in, req)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	body, err := render.Render(req.Target, out)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := setAttachmentHeaders(w, req.FileName, req.Target); err != nil {
		writeErrorFromErr(w, err)
		return
	}

	s.opt.Logger.Debug("dedup done",
		"mode", req.Mode,
		"action", string(req.Options.Action),
		"in", len(in),
		"out", len(out),
	)
	w.Header().Set("X-Dedup-Total", strconv.Itoa(len(in)))
	w.Header().Set("X-Dedup-Removed", strconv.Itoa(len(in)-len(out)))
	WriteBody(w, http.StatusOK, req.Target.ContentType(), body)
}

// collectNodes gathers inline nodes, then inline content, then remote
// subscriptions in request order.
func (s *server) collectNodes(ctx context.Context, req dedupRequest) ([]model.Node, error) {
	nodes := slices.Clone(req.Nodes)
	if strings.TrimSpace(req.Content) != "" {
		parsed, err := sub.Parse("content", req.Content)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, parsed...)
	}
	if len(req.Subs) == 0 {
		return nodes, nil
	}
	texts, err := s.fetcher.FetchAll(ctx, req.Subs)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		parsed, err := sub.Parse(req.Subs[i], text)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, parsed...)
	}
	return nodes, nil
}

func (s *server) runDedup(nodes []model.Node, req dedupRequest) ([]model.Node, error) {
	engine := s.opt.Engine
	switch req.Mode {
	case modeByType:
		return engine.DeduplicateByType(nodes, req.Options)
	case modeBatch:
		return engine.BatchDeduplicate(nodes, req.Options)
	case modeCustom:
		prog, err := s.program(req.KeyExpr, req.Options.AliasMode)
		if err != nil {
			return nil, err
		}
		return engine.CustomDeduplicate(nodes, prog.Key, req.Options.KeepFirst)
	default:
		return engine.Deduplicate(nodes, req.Options)
	}
}

// program returns the compiled form of expr, compiling at most once per
// expression and alias mode while it stays in the cache.
func (s *server) program(expr string, mode normalize.AliasMode) (*keyexpr.Program, error) {
	cacheKey := mode.String() + "\x00" + expr
	if p, ok := s.programs.Get(cacheKey); ok {
		return p, nil
	}
	p, err := keyexpr.Compile(expr, keyexpr.WithAliasMode(mode))
	if err != nil {
		return nil, err
	}
	s.programs.Add(cacheKey, p)
	return p, nil
}

func (s *server) parseDedupPOST(r *http.Request) (dedupRequest, error) {
	var body dedupRequestJSON
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return dedupRequest{}, bodyError(err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return dedupRequest{}, requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return dedupRequest{}, bodyError(err)
	}

	if strings.TrimSpace(body.Content) == "" && len(body.Subs) == 0 && body.Nodes == nil {
		return dedupRequest{}, requestError("INVALID_ARGUMENT", "缺少输入：content/subs/nodes 至少提供一个", "")
	}
	subs, err := cleanSubs(body.Subs, "subs", s.opt.MaxSubs)
	if err != nil {
		return dedupRequest{}, err
	}
	opt, err := body.Options.apply(s.opt.Defaults)
	if err != nil {
		return dedupRequest{}, err
	}
	return s.finishRequest(dedupRequest{
		Content:  body.Content,
		Subs:     subs,
		Nodes:    body.Nodes,
		Mode:     body.Mode,
		KeyExpr:  body.KeyExpr,
		Options:  opt,
		FileName: body.FileName,
	}, body.Target)
}

func (s *server) parseSubGET(r *http.Request) (dedupRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "sub", "target", "mode", "action", "keepFirst", "aliasMode", "fileName":
		default:
			return dedupRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}
	if len(q["sub"]) == 0 {
		return dedupRequest{}, requestError("INVALID_ARGUMENT", "缺少 sub 参数", "expected: sub=<url>")
	}
	subs, err := cleanSubs(q["sub"], "sub", s.opt.MaxSubs)
	if err != nil {
		return dedupRequest{}, err
	}

	var oj optionsJSON
	for key, dst := range map[string]**string{"action": &oj.Action, "aliasMode": &oj.AliasMode} {
		v, err := singleQuery(q, key, false)
		if err != nil {
			return dedupRequest{}, err
		}
		if v != "" {
			*dst = &v
		}
	}
	keepFirst, err := singleQuery(q, "keepFirst", false)
	if err != nil {
		return dedupRequest{}, err
	}
	if keepFirst != "" {
		b, perr := strconv.ParseBool(keepFirst)
		if perr != nil {
			return dedupRequest{}, requestError("INVALID_ARGUMENT", "keepFirst 必须是布尔值", keepFirst)
		}
		oj.KeepFirst = &b
	}
	opt, err := oj.apply(s.opt.Defaults)
	if err != nil {
		return dedupRequest{}, err
	}

	mode, err := singleQuery(q, "mode", false)
	if err != nil {
		return dedupRequest{}, err
	}
	if strings.TrimSpace(mode) == modeCustom {
		return dedupRequest{}, requestError("INVALID_ARGUMENT", "GET /sub 不支持 mode=custom", "use POST /api/dedup with keyExpr")
	}
	target, err := singleQuery(q, "target", false)
	if err != nil {
		return dedupRequest{}, err
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return dedupRequest{}, err
	}
	return s.finishRequest(dedupRequest{
		Subs:     subs,
		Mode:     mode,
		Options:  opt,
		FileName: fileName,
	}, target)
}

// finishRequest checks the fields shared by GET and POST.
func (s *server) finishRequest(req dedupRequest, target string) (dedupRequest, error) {
	req.Mode = strings.TrimSpace(req.Mode)
	if req.Mode == "" {
		req.Mode = modeFull
	}
	switch req.Mode {
	case modeFull, modeByType, modeBatch:
		if strings.TrimSpace(req.KeyExpr) != "" {
			return dedupRequest{}, requestError("INVALID_ARGUMENT", "keyExpr 仅在 mode=custom 时可用", "")
		}
	case modeCustom:
		if strings.TrimSpace(req.KeyExpr) == "" {
			return dedupRequest{}, requestError("INVALID_ARGUMENT", "mode=custom 需要 keyExpr", `example: server + ":" + string(port)`)
		}
		if req.Options.Action == dedup.ActionRename {
			return dedupRequest{}, requestError("INVALID_ARGUMENT", "mode=custom 仅支持 action=delete", "")
		}
	default:
		return dedupRequest{}, requestError("INVALID_ARGUMENT", "不支持的 mode（仅支持 full/by-type/batch/custom）", req.Mode)
	}
	if err := req.Options.Validate(); err != nil {
		return dedupRequest{}, err
	}

	t, err := render.ParseTarget(target)
	if err != nil {
		return dedupRequest{}, err
	}
	req.Target = t
	return req, nil
}

func cleanSubs(in []string, field string, limit int) ([]string, error) {
	if len(in) > limit {
		return nil, requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 数量超过上限（>%d）", field, limit), "")
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, requestError("INVALID_ARGUMENT", field+" 不能为空", "")
		}
		out = append(out, s)
	}
	return out, nil
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apiError(http.StatusRequestEntityTooLarge, model.AppError{
			Code:    "TOO_LARGE",
			Message: fmt.Sprintf("请求体过大（>%d bytes）", mbe.Limit),
			Stage:   "validate_request",
		}, err)
	}
	return requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}
