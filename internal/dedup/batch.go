package dedup

import "github.com/John-Robertt/nodededup/internal/model"

// BatchDeduplicate runs delete mode over fixed-size chunks of nodes. The key
// index is global across chunks, so chunking never changes which groups
// exist. Memory held between chunks is one slot per distinct key.
//
// By default the best-scoring member of each group is tracked across chunk
// boundaries and the result equals Deduplicate. With opt.BatchFirstSeen the
// first copy of each key wins and no node is scored.
//
// Rename mode has no chunked form and is delegated to Deduplicate.
func (e *Engine) BatchDeduplicate(nodes []model.Node, opt Options) ([]model.Node, error) {
	opt = opt.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if opt.Action == ActionRename || len(nodes) <= opt.ChunkSize {
		if opt.Action == ActionDelete && opt.BatchFirstSeen {
			return e.firstSeen(nodes, opt), nil
		}
		return e.Deduplicate(nodes, opt)
	}

	start := e.now()
	k := e.newKeeper(opt, opt.BatchFirstSeen)
	for lo := 0; lo < len(nodes); lo += opt.ChunkSize {
		hi := min(lo+opt.ChunkSize, len(nodes))
		for i := lo; i < hi; i++ {
			k.add(nodes[i], i)
		}
		e.logger.Debug("dedup chunk done",
			"from", lo,
			"to", hi,
			"total", len(nodes),
			"groups", len(k.slots),
		)
	}
	out := k.result()
	e.record(len(nodes), k.duplicates, len(nodes)-len(out), start)
	return out, nil
}

func (e *Engine) firstSeen(nodes []model.Node, opt Options) []model.Node {
	start := e.now()
	k := e.newKeeper(opt, true)
	for i, n := range nodes {
		k.add(n, i)
	}
	out := k.result()
	e.record(len(nodes), k.duplicates, len(nodes)-len(out), start)
	return out
}
