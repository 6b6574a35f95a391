package httpapi

import (
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Robertt/nodededup/internal/fetch"
	"github.com/John-Robertt/nodededup/internal/keyexpr"
)

type server struct {
	opt      Options
	fetcher  *fetch.Fetcher
	programs *lru.Cache[string, *keyexpr.Program]
}

func newServer(opt Options) *server {
	opt = opt.withDefaults()
	// withDefaults keeps the size positive, the only case New rejects.
	programs, _ := lru.New[string, *keyexpr.Program](opt.KeyExprCacheSize)
	return &server{
		opt: opt,
		fetcher: fetch.New(fetch.Options{
			Timeout:       opt.FetchTimeout,
			MaxBytes:      opt.MaxFetchBytes,
			MaxConcurrent: opt.FetchConcurrency,
		}),
		programs: programs,
	}
}

func NewMux() *http.ServeMux {
	return NewMuxWithOptions(Options{})
}

func NewMuxWithOptions(opt Options) *http.ServeMux {
	return newServer(opt).routes()
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /sub", s.handleSub)
	mux.HandleFunc("POST /api/dedup", s.handleDedup)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}
