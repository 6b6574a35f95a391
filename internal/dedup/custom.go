package dedup

import (
	"fmt"

	"github.com/John-Robertt/nodededup/internal/model"
)

// KeyFunc derives an ad-hoc identity for a node.
type KeyFunc func(model.Node) (string, error)

// CustomDeduplicate drops nodes whose keyFn result was already produced.
// With keepFirst the first copy survives, otherwise the last one does, each
// at its own position. A node for which keyFn fails or panics is logged and
// kept as unique. Only a nil keyFn is an error.
func (e *Engine) CustomDeduplicate(nodes []model.Node, keyFn KeyFunc, keepFirst bool) ([]model.Node, error) {
	if keyFn == nil {
		return nil, optionsError("自定义去重缺少 key 函数", "")
	}
	start := e.now()

	k := keeper{index: make(map[string]int)}
	for i, n := range nodes {
		key, err := callKeyFunc(keyFn, n)
		if err != nil {
			e.logger.Warn("custom key failed, node kept as unique",
				"index", i,
				"name", n.Name,
				"error", err,
			)
			k.slots = append(k.slots, slot{node: n, pos: i})
			continue
		}
		j, seen := k.index[key]
		if !seen {
			k.index[key] = len(k.slots)
			k.slots = append(k.slots, slot{node: n, pos: i})
			continue
		}
		k.duplicates++
		if !keepFirst {
			k.slots[j] = slot{node: n, pos: i}
		}
	}

	out := k.result()
	e.record(len(nodes), k.duplicates, len(nodes)-len(out), start)
	return out, nil
}

func callKeyFunc(fn KeyFunc, n model.Node) (key string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(n)
}
