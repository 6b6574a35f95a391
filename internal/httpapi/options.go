package httpapi

import (
	"log/slog"
	"time"

	"github.com/John-Robertt/nodededup/internal/dedup"
)

// Options controls HTTP API runtime behavior.
type Options struct {
	// RequestTimeout is the hard upper bound for a single dedup request,
	// remote fetches included.
	RequestTimeout time.Duration

	// FetchTimeout is the per-URL timeout for remote subscriptions.
	FetchTimeout time.Duration

	MaxBodyBytes  int64
	MaxFetchBytes int64

	// MaxSubs caps the remote subscriptions one request may list, and
	// FetchConcurrency caps how many of them are fetched at once.
	MaxSubs          int
	FetchConcurrency int

	// KeyExprCacheSize bounds the number of compiled key expressions kept.
	KeyExprCacheSize int

	// Defaults seeds request options; fields present in a request override it.
	Defaults dedup.Options

	Logger *slog.Logger

	// Engine is shared by every request so /metrics can report its counters.
	// A fresh engine is created when nil.
	Engine *dedup.Engine
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 10 * 1024 * 1024
	}
	if o.MaxFetchBytes <= 0 {
		o.MaxFetchBytes = 5 * 1024 * 1024
	}
	if o.MaxSubs <= 0 {
		o.MaxSubs = 32
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	if o.KeyExprCacheSize <= 0 {
		o.KeyExprCacheSize = 128
	}
	if o.Defaults == (dedup.Options{}) {
		o.Defaults = dedup.DefaultOptions()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Engine == nil {
		o.Engine = dedup.NewEngine(dedup.WithLogger(o.Logger))
	}
	return o
}
