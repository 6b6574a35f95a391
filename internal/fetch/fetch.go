// Package fetch downloads remote subscriptions with bounded time, size and
// redirect budgets.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/nodededup/internal/model"
)

const (
	stage = "fetch_sub"

	DefaultTimeout       = 15 * time.Second
	DefaultMaxBytes      = 5 * 1024 * 1024
	DefaultMaxRedirects  = 5
	DefaultMaxConcurrent = 4
)

type Options struct {
	Timeout       time.Duration // default 15s
	MaxBytes      int64         // default 5 MiB
	MaxRedirects  int           // default 5
	MaxConcurrent int           // FetchAll parallelism, default 4
	UserAgent     string
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

// Fetcher reuses one http.Client across subscriptions. It is safe for
// concurrent use.
type Fetcher struct {
	opt    Options
	client *http.Client
}

func New(opt Options) *Fetcher {
	if opt.Timeout == 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.MaxRedirects == 0 {
		opt.MaxRedirects = DefaultMaxRedirects
	}
	if opt.MaxBytes == 0 {
		opt.MaxBytes = DefaultMaxBytes
	}
	if opt.MaxConcurrent <= 0 {
		opt.MaxConcurrent = DefaultMaxConcurrent
	}
	if opt.UserAgent == "" {
		opt.UserAgent = "nodededup"
	}
	maxRedirects := opt.MaxRedirects
	return &Fetcher{
		opt: opt,
		client: &http.Client{
			Timeout:   opt.Timeout,
			Transport: http.DefaultTransport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// 1st redirect => len(via)==1, 5th redirect => len(via)==5.
				if len(via) > maxRedirects {
					return errTooManyRedirects
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return errRedirectBadScheme
				}
				return nil
			},
		},
	}
}

// FetchText is New(Options{}).Fetch.
func FetchText(ctx context.Context, rawURL string) (string, error) {
	return New(Options{}).Fetch(ctx, rawURL)
}

// Fetch returns the body of rawURL as UTF-8 text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.opt.MaxBytes <= 0 {
		return "", fetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "响应大小上限必须大于 0", rawURL, nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "仅允许 http/https URL", rawURL, errors.Join(errInvalidURLOrScheme, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", rawURL, err)
	}
	req.Header.Set("User-Agent", f.opt.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		switch {
		case errors.Is(err, errTooManyRedirects):
			return "", fetchError(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("重定向次数超过上限（>%d）", f.opt.MaxRedirects), rawURL, err)
		case errors.Is(err, errRedirectBadScheme):
			return "", fetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", rawURL, err)
		case isTimeout(err):
			return "", fetchError(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取订阅超时", rawURL, err)
		default:
			return "", fetchError(http.StatusBadGateway, "FETCH_FAILED", "拉取订阅失败", rawURL, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fetchError(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), rawURL, nil)
	}

	// Read at most MaxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opt.MaxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return "", fetchError(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取订阅超时", rawURL, err)
		}
		return "", fetchError(http.StatusBadGateway, "FETCH_FAILED", "读取上游响应失败", rawURL, err)
	}
	if int64(len(body)) > f.opt.MaxBytes {
		return "", fetchError(http.StatusUnprocessableEntity, "TOO_LARGE", fmt.Sprintf("订阅内容过大（>%d bytes）", f.opt.MaxBytes), rawURL, nil)
	}
	if !utf8.Valid(body) {
		return "", fetchError(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "订阅内容不是合法 UTF-8 文本", rawURL, nil)
	}
	return string(body), nil
}

// FetchAll fetches every URL with at most MaxConcurrent requests in flight.
// Results keep the order of urls. The first failure cancels the rest and is
// the error returned.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]string, error) {
	out := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opt.MaxConcurrent)
	for i, u := range urls {
		g.Go(func() error {
			text, err := f.Fetch(gctx, u)
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isTimeout(err error) bool {
	// Go may wrap errors (e.g. *url.Error).
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func fetchError(status int, code, message, rawURL string, cause error) *FetchError {
	return &FetchError{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: cause,
	}
}
