package keyexpr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/model"
)

func trojan(name, server string, port any, password string) model.Node {
	return model.NodeFromMap(map[string]any{
		"name": name, "type": "Trojan", "server": server, "port": port, "password": password,
	})
}

func TestCompileAndEvaluate(t *testing.T) {
	p, err := Compile(`server + ":" + string(port) + ":" + protocol`)
	require.NoError(t, err)

	got, err := p.Key(trojan("a", "Example.COM.", "443", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "example.com:443:trojan", got)
}

func TestNodeFieldsAndHelpers(t *testing.T) {
	p, err := Compile(`lower(node.password) + "@" + domain(node.server)`)
	require.NoError(t, err)
	got, err := p.Key(trojan("a", "EXAMPLE.com", 443, "PW"))
	require.NoError(t, err)
	assert.Equal(t, "pw@example.com", got)

	p, err = Compile(`"sni" in node ? node.sni : "none"`)
	require.NoError(t, err)
	got, err = p.Key(trojan("a", "s", 443, "pw"))
	require.NoError(t, err)
	assert.Equal(t, "none", got)
}

func TestNonStringResultsAreRendered(t *testing.T) {
	p, err := Compile(`port`)
	require.NoError(t, err)
	got, err := p.Key(trojan("a", "s", json.Number("8443"), "pw"))
	require.NoError(t, err)
	assert.Equal(t, "8443", got)

	p, err = Compile(`node.port > 1000`)
	require.NoError(t, err)
	got, err = p.Key(trojan("a", "s", 8443, "pw"))
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}

func TestBuiltinKeyVariable(t *testing.T) {
	p, err := Compile(`key`)
	require.NoError(t, err)
	a, err := p.Key(trojan("a", "s", 443, "pw"))
	require.NoError(t, err)
	b, err := p.Key(trojan("b", "S", "443", "pw"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{"", "   ", "server +", "[1, 2]", "{'a': 1}", "unknown_var"} {
		_, err := Compile(expr)
		var ce *CompileError
		require.ErrorAs(t, err, &ce, "expr=%q", expr)
		assert.Equal(t, "KEY_EXPR_INVALID", ce.AppError.Code)
		assert.Equal(t, "key_expr", ce.AppError.Stage)
	}
}

func TestRuntimeErrorFeedsCustomDeduplicate(t *testing.T) {
	p, err := Compile(`node.sni`)
	require.NoError(t, err)

	withSNI := model.NodeFromMap(map[string]any{"name": "a", "type": "trojan", "server": "s", "port": 1, "sni": "x.com"})
	sameSNI := model.NodeFromMap(map[string]any{"name": "b", "type": "trojan", "server": "t", "port": 2, "sni": "x.com"})
	noSNI := model.NodeFromMap(map[string]any{"name": "c", "type": "trojan", "server": "u", "port": 3})

	_, err = p.Key(noSNI)
	require.Error(t, err)

	e := dedup.NewEngine()
	out, err := e.CustomDeduplicate([]model.Node{withSNI, sameSNI, noSNI}, p.Key, true)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "c", out[1].Name, "a node whose key fails is kept")
}
