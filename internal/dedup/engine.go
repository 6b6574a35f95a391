// Package dedup removes or disambiguates duplicate proxy nodes.
//
// Nodes are grouped by their canonical identity key. In delete mode the most
// complete member of each group survives at its own position; in rename mode
// every node survives and repeated display names get a sequence suffix.
//
// An Engine carries cumulative statistics and nothing else. Separate engines
// never share state.
package dedup

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/John-Robertt/nodededup/internal/identity"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
	"github.com/John-Robertt/nodededup/internal/score"
)

// Stats accumulates over every call until ResetStats.
type Stats struct {
	TotalProcessed    int   `json:"totalProcessed"`
	DuplicatesFound   int   `json:"duplicatesFound"`
	DuplicatesRemoved int   `json:"duplicatesRemoved"`
	ProcessingTimeMs  int64 `json:"processingTimeMs"`
}

type Engine struct {
	scorer *score.Engine
	logger *slog.Logger
	now    func() time.Time

	strict  *identity.Generator
	unified *identity.Generator

	mu    sync.Mutex
	stats Stats
}

type Option func(*Engine)

// WithScorer replaces the default scoring engine.
func WithScorer(s *score.Engine) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  slog.Default(),
		now:     time.Now,
		strict:  identity.NewGenerator(identity.WithAliasMode(normalize.AliasStrict)),
		unified: identity.NewGenerator(identity.WithAliasMode(normalize.AliasUnified)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.scorer == nil {
		e.scorer = score.NewEngine(score.WithLogger(e.logger))
	}
	return e
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{}
}

// Key returns the canonical key of n under the given alias mode.
func (e *Engine) Key(n model.Node, mode normalize.AliasMode) string {
	return e.generator(mode).Key(n)
}

func (e *Engine) generator(mode normalize.AliasMode) *identity.Generator {
	if mode == normalize.AliasUnified {
		return e.unified
	}
	return e.strict
}

// Deduplicate applies opt.Action to nodes and returns a new slice. The input
// slice and its nodes are left untouched. Only invalid options fail.
func (e *Engine) Deduplicate(nodes []model.Node, opt Options) ([]model.Node, error) {
	opt = opt.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	start := e.now()

	if opt.Action == ActionRename {
		out, found := rename(nodes, opt)
		e.record(len(nodes), found, 0, start)
		return out, nil
	}

	k := e.newKeeper(opt, false)
	for i, n := range nodes {
		k.add(n, i)
	}
	out := k.result()
	e.record(len(nodes), k.duplicates, len(nodes)-len(out), start)
	return out, nil
}

// DeduplicateByType partitions nodes by protocol and deduplicates each
// partition on its own. Partitions are concatenated in the order their first
// member appears.
func (e *Engine) DeduplicateByType(nodes []model.Node, opt Options) ([]model.Node, error) {
	opt = opt.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}

	var order []string
	parts := make(map[string][]model.Node)
	for _, n := range nodes {
		tag := n.Protocol().Tag(n.Type)
		if _, ok := parts[tag]; !ok {
			order = append(order, tag)
		}
		parts[tag] = append(parts[tag], n)
	}

	out := make([]model.Node, 0, len(nodes))
	for _, tag := range order {
		d, err := e.Deduplicate(parts[tag], opt)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
	}
	return out, nil
}

func (e *Engine) record(total, found, removed int, start time.Time) {
	elapsed := e.now().Sub(start).Milliseconds()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalProcessed += total
	e.stats.DuplicatesFound += found
	e.stats.DuplicatesRemoved += removed
	e.stats.ProcessingTimeMs += elapsed
}

// keeper holds one slot per distinct key. A slot is scored lazily, the first
// time a second member of its group shows up.
type keeper struct {
	gen       *identity.Generator
	scorer    *score.Engine
	keepFirst bool
	firstSeen bool

	index      map[string]int
	slots      []slot
	duplicates int
}

type slot struct {
	node   model.Node
	pos    int
	score  float64
	scored bool
}

func (e *Engine) newKeeper(opt Options, firstSeen bool) *keeper {
	return &keeper{
		gen:       e.generator(opt.AliasMode),
		scorer:    e.scorer,
		keepFirst: opt.KeepFirst,
		firstSeen: firstSeen,
		index:     make(map[string]int),
	}
}

func (k *keeper) add(n model.Node, pos int) {
	key := k.gen.Key(n)
	i, seen := k.index[key]
	if !seen {
		k.index[key] = len(k.slots)
		k.slots = append(k.slots, slot{node: n, pos: pos})
		return
	}
	k.duplicates++
	if k.firstSeen {
		return
	}

	s := &k.slots[i]
	if !s.scored {
		s.score = k.scorer.Score(s.node)
		s.scored = true
	}
	c := k.scorer.Score(n)
	if c > s.score || (c == s.score && !k.keepFirst) {
		*s = slot{node: n, pos: pos, score: c, scored: true}
	}
}

// result returns the kept nodes ordered by the position of the kept copy.
func (k *keeper) result() []model.Node {
	sort.SliceStable(k.slots, func(i, j int) bool { return k.slots[i].pos < k.slots[j].pos })
	out := make([]model.Node, len(k.slots))
	for i, s := range k.slots {
		out[i] = s.node.Clone()
	}
	return out
}
