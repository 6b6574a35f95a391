// Package score rates how complete a node record is, on a 0-100 scale.
//
// Scores only break ties between nodes that already share a canonical key;
// they never influence grouping.
package score

import (
	"fmt"
	"log/slog"

	"github.com/John-Robertt/nodededup/internal/model"
)

// Context is what a strategy knows about the node besides its fields.
type Context struct {
	Protocol model.Protocol
}

// Strategy is one independently weighted scoring rule.
type Strategy interface {
	Name() string
	Weight() float64
	// Applicable reports whether the strategy has an opinion on n.
	Applicable(n model.Node, ctx Context) bool
	// Score returns a value in [0,100]. Out-of-range results are clamped.
	Score(n model.Node, ctx Context) (float64, error)
}

// Engine computes the weighted average of every applicable strategy.
// It is stateless and safe for concurrent use.
type Engine struct {
	strategies []Strategy
	logger     *slog.Logger
}

type Option func(*Engine)

// WithStrategies replaces the default strategy list.
func WithStrategies(s ...Strategy) Option {
	return func(e *Engine) { e.strategies = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// DefaultStrategies is the global completeness rule plus the protocol rules.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Completeness{},
		VMess{},
		VLESS{},
		Trojan{},
		Shadowsocks{},
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Score returns the weighted average of the applicable strategies. A strategy
// that fails is logged and left out of the average. When nothing applies, the
// Fallback heuristic decides.
func (e *Engine) Score(n model.Node) float64 {
	ctx := Context{Protocol: n.Protocol()}

	var sum, weights float64
	for _, s := range e.strategies {
		w := s.Weight()
		if w <= 0 || !s.Applicable(n, ctx) {
			continue
		}
		v, err := run(s, n, ctx)
		if err != nil {
			e.logger.Warn("score strategy failed",
				"strategy", s.Name(),
				"protocol", string(ctx.Protocol),
				"error", err,
			)
			continue
		}
		sum += clamp(v) * w
		weights += w
	}
	if weights == 0 {
		return Fallback(n)
	}
	return sum / weights
}

// run isolates third-party strategies: a panic is reported like an error.
func run(s Strategy, n model.Node, ctx Context) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Score(n, ctx)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
