package dedup

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

const testUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func vmess(name string, extra map[string]any) model.Node {
	m := map[string]any{
		"name":   name,
		"type":   "vmess",
		"server": "1.1.1.1",
		"port":   443,
		"uuid":   testUUID,
	}
	for k, v := range extra {
		m[k] = v
	}
	return model.NodeFromMap(m)
}

func trojan(name, password string) model.Node {
	return model.NodeFromMap(map[string]any{
		"name": name, "type": "trojan", "server": "t.example.com", "port": 443, "password": password,
	})
}

func quietEngine() *Engine {
	return NewEngine(WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
}

func names(nodes []model.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestScenarioSameVMessDifferentNames(t *testing.T) {
	e := NewEngine()
	out, err := e.Deduplicate([]model.Node{vmess("A", nil), vmess("B", nil)}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Name)
}

func TestScenarioExplicitNetworkIsDistinct(t *testing.T) {
	e := NewEngine()
	out, err := e.Deduplicate([]model.Node{
		vmess("A", map[string]any{"network": "ws"}),
		vmess("B", nil),
	}, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestScenarioTrojanSNIVersusHost(t *testing.T) {
	withSNI := model.NodeFromMap(map[string]any{"name": "a", "type": "trojan", "server": "t", "port": 443, "password": "pw", "sni": "x.com"})
	withHost := model.NodeFromMap(map[string]any{"name": "b", "type": "trojan", "server": "t", "port": 443, "password": "pw", "host": "x.com"})
	in := []model.Node{withSNI, withHost}
	e := NewEngine()

	strict, err := e.Deduplicate(in, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, strict, 2, "strict alias mode keeps sni and host apart")

	opt := DefaultOptions()
	opt.AliasMode = normalize.AliasUnified
	unified, err := e.Deduplicate(in, opt)
	require.NoError(t, err)
	assert.Len(t, unified, 1, "unified alias mode merges host into the server name")
	assert.Equal(t, e.Key(withSNI, normalize.AliasUnified), e.Key(withHost, normalize.AliasUnified))
}

func bigInput(unique, dups int) []model.Node {
	nodes := make([]model.Node, 0, unique+dups)
	for i := range unique {
		nodes = append(nodes, trojan(fmt.Sprintf("n%d", i), fmt.Sprintf("password-%05d", i)))
	}
	for i := range dups {
		src := (i * 7) % unique
		nodes = append(nodes, trojan(fmt.Sprintf("dup%d", i), fmt.Sprintf("password-%05d", src)))
	}
	return nodes
}

func TestScenarioLargeInputStats(t *testing.T) {
	e := NewEngine()
	nodes := bigInput(7000, 3000)

	out, err := e.Deduplicate(nodes, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, out, 7000)

	st := e.Stats()
	assert.Equal(t, 10000, st.TotalProcessed)
	assert.Equal(t, 3000, st.DuplicatesFound)
	assert.Equal(t, 3000, st.DuplicatesRemoved)
	assert.GreaterOrEqual(t, st.ProcessingTimeMs, int64(0))
}

func TestScenarioRenameBack(t *testing.T) {
	e := NewEngine()
	opt := DefaultOptions()
	opt.Action = ActionRename
	in := []model.Node{trojan("A", "1"), trojan("A", "2"), trojan("B", "3")}

	out, err := e.Deduplicate(in, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2", "B"}, names(out))
	assert.Equal(t, []string{"A", "A", "B"}, names(in), "input must not be modified")

	st := e.Stats()
	assert.Equal(t, 1, st.DuplicatesFound)
	assert.Equal(t, 0, st.DuplicatesRemoved)
}

func TestRenameLeavesUniqueNamesAlone(t *testing.T) {
	opt := DefaultOptions()
	opt.Action = ActionRename
	in := []model.Node{trojan("A", "1"), trojan("A", "2"), trojan("A-1", "3")}

	out, err := quietEngine().Deduplicate(in, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2", "A-1"}, names(out))
}

func TestRenameFrontPaddingAndTemplate(t *testing.T) {
	e := NewEngine()
	opt := DefaultOptions()
	opt.Action = ActionRename
	opt.Position = PositionFront
	opt.Link = " "
	opt.Template = "零一二三四五六七八九"

	var in []model.Node
	for i := range 10 {
		in = append(in, trojan("HK", fmt.Sprint(i)))
	}
	in = append(in, trojan("JP", "a"), trojan("JP", "b"), trojan("US", "c"))

	out, err := e.Deduplicate(in, opt)
	require.NoError(t, err)
	got := names(out)
	assert.Equal(t, "零一 HK", got[0])
	assert.Equal(t, "一零 HK", got[9])
	assert.Equal(t, "零二 JP", got[11])
	assert.Equal(t, "US", got[12])
}

func TestMostCompleteWins(t *testing.T) {
	// Same key; the unnamed copy scores lower on completeness.
	bare := vmess("", nil)
	rich := vmess("rich", nil)
	e := NewEngine()

	for _, keepFirst := range []bool{true, false} {
		opt := DefaultOptions()
		opt.KeepFirst = keepFirst

		out, err := e.Deduplicate([]model.Node{trojan("x", "1"), bare, trojan("y", "2"), rich}, opt)
		require.NoError(t, err)
		// The richer copy survives at its own position.
		assert.Equal(t, []string{"x", "y", "rich"}, names(out), "keepFirst=%v", keepFirst)

		out, err = e.Deduplicate([]model.Node{rich, bare}, opt)
		require.NoError(t, err)
		assert.Equal(t, []string{"rich"}, names(out), "keepFirst=%v", keepFirst)
	}
}

func TestKeepFirstBreaksTies(t *testing.T) {
	e := NewEngine()
	in := []model.Node{vmess("first", nil), trojan("other", "pw"), vmess("last", nil)}

	opt := DefaultOptions()
	out, err := e.Deduplicate(in, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "other"}, names(out))

	opt.KeepFirst = false
	out, err = e.Deduplicate(in, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "last"}, names(out))
}

func TestIdempotence(t *testing.T) {
	e := NewEngine()
	nodes := bigInput(300, 200)
	once, err := e.Deduplicate(nodes, DefaultOptions())
	require.NoError(t, err)
	twice, err := e.Deduplicate(once, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, names(once), names(twice))
}

func TestBatchEquivalence(t *testing.T) {
	e := NewEngine()
	nodes := bigInput(700, 300)
	// A richer duplicate far from its first copy.
	nodes = append([]model.Node{vmess("", nil)}, nodes...)
	nodes = append(nodes, vmess("rich", nil))

	want, err := e.Deduplicate(nodes, DefaultOptions())
	require.NoError(t, err)

	opt := DefaultOptions()
	opt.ChunkSize = 100
	got, err := e.BatchDeduplicate(nodes, opt)
	require.NoError(t, err)
	assert.Equal(t, names(want), names(got), "score reconciliation spans chunk boundaries")
	assert.Equal(t, "rich", got[len(got)-1].Name)
}

func TestBatchFirstSeenEquivalence(t *testing.T) {
	e := NewEngine()
	nodes := bigInput(700, 300)

	full, err := e.Deduplicate(nodes, DefaultOptions())
	require.NoError(t, err)

	opt := DefaultOptions()
	opt.ChunkSize = 100
	opt.BatchFirstSeen = true
	batched, err := e.BatchDeduplicate(nodes, opt)
	require.NoError(t, err)

	keys := func(nodes []model.Node) []string {
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = e.Key(n, normalize.AliasStrict)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, keys(full), keys(batched))
	assert.Equal(t, names(full), names(batched))

	// First-seen ignores completeness.
	small := []model.Node{vmess("", nil), vmess("rich", nil)}
	opt.ChunkSize = 1
	out, err := e.BatchDeduplicate(small, opt)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, names(out))
}

func TestBatchStats(t *testing.T) {
	e := NewEngine()
	opt := DefaultOptions()
	opt.ChunkSize = 64
	_, err := e.BatchDeduplicate(bigInput(500, 100), opt)
	require.NoError(t, err)
	st := e.Stats()
	assert.Equal(t, 600, st.TotalProcessed)
	assert.Equal(t, 100, st.DuplicatesRemoved)

	e.ResetStats()
	assert.Equal(t, Stats{}, e.Stats())
}

func TestDeduplicateByType(t *testing.T) {
	e := NewEngine()
	in := []model.Node{
		trojan("t1", "pw"),
		vmess("v1", nil),
		trojan("t2", "pw"),
		vmess("v2", nil),
		model.NodeFromMap(map[string]any{"name": "s1", "type": "ss", "server": "s", "port": 1, "cipher": "aes-128-gcm", "password": "x"}),
	}
	out, err := e.DeduplicateByType(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "v1", "s1"}, names(out))
}

func TestCustomDeduplicate(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	in := []model.Node{
		trojan("a", "1"),
		trojan("b", "2"),
		trojan("bad", "3"),
		trojan("a", "4"),
		trojan("boom", "5"),
		trojan("bad", "6"),
	}
	byName := func(n model.Node) (string, error) {
		switch n.Name {
		case "bad":
			return "", errors.New("no key")
		case "boom":
			panic("key function exploded")
		}
		return n.Name, nil
	}

	out, err := e.CustomDeduplicate(in, byName, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "bad", "boom", "bad"}, names(out))
	assert.Equal(t, "1", out[0].Params["password"])
	assert.Contains(t, buf.String(), "custom key failed")
	assert.Contains(t, buf.String(), "index=2")

	out, err = e.CustomDeduplicate(in, byName, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "bad", "a", "boom", "bad"}, names(out))
	assert.Equal(t, "4", out[2].Params["password"])

	_, err = e.CustomDeduplicate(in, nil, true)
	var oe *OptionsError
	require.ErrorAs(t, err, &oe)
}

func TestInvalidOptions(t *testing.T) {
	e := NewEngine()
	tests := []Options{
		{Strategy: "partial"},
		{Action: "merge"},
		{Position: "middle"},
		{Template: "0123"},
		{AliasMode: normalize.AliasMode(9)},
		{Link: "\n"},
	}
	for _, opt := range tests {
		_, err := e.Deduplicate([]model.Node{trojan("a", "1")}, opt)
		var oe *OptionsError
		require.ErrorAs(t, err, &oe, "opt=%+v", opt)
		assert.Equal(t, "INVALID_ARGUMENT", oe.AppError.Code)
		assert.Equal(t, "dedup", oe.AppError.Stage)

		_, err = e.BatchDeduplicate(nil, opt)
		assert.Error(t, err)
		_, err = e.DeduplicateByType(nil, opt)
		assert.Error(t, err)
	}
	assert.Equal(t, Stats{}, e.Stats(), "rejected calls leave stats alone")
}

func TestZeroOptionsAndEmptyInput(t *testing.T) {
	e := NewEngine()
	out, err := e.Deduplicate(nil, Options{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	// Zero-value options default everything except the tie break.
	out, err = e.Deduplicate([]model.Node{vmess("first", nil), vmess("last", nil)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"last"}, names(out))
}

func TestOutputDoesNotAliasInput(t *testing.T) {
	e := NewEngine()
	in := []model.Node{trojan("a", "1")}
	out, err := e.Deduplicate(in, DefaultOptions())
	require.NoError(t, err)
	out[0].Params["password"] = "changed"
	assert.Equal(t, "1", in[0].Params["password"])
}

func TestSeparateEnginesHaveSeparateStats(t *testing.T) {
	a, b := quietEngine(), quietEngine()
	_, err := a.Deduplicate([]model.Node{vmess("x", nil), vmess("y", nil)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, a.Stats().TotalProcessed)
	assert.Equal(t, 0, b.Stats().TotalProcessed)
}
