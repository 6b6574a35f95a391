// Package keyexpr compiles user supplied CEL expressions into node key
// functions for ad-hoc deduplication.
//
// An expression sees these variables:
//
//	node      map(string, dyn)  every field of the node, as parsed
//	server    string            normalized server host
//	port      int               port number, 0 when missing
//	protocol  string            canonical protocol tag
//	name      string            display name
//	key       string            the built-in canonical identity key
//
// and the helper functions domain(string) and lower(string). Example:
//
//	server + ":" + string(port) + ":" + protocol
package keyexpr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/John-Robertt/nodededup/internal/identity"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

// DefaultCostLimit bounds the evaluation cost of one expression on one node.
const DefaultCostLimit = 100_000

// Program is a compiled key expression. It is safe for concurrent use.
type Program struct {
	expr string
	prg  cel.Program
	gen  *identity.Generator
}

type options struct {
	costLimit uint64
	aliasMode normalize.AliasMode
}

type Option func(*options)

func WithCostLimit(limit uint64) Option {
	return func(o *options) {
		if limit > 0 {
			o.costLimit = limit
		}
	}
}

// WithAliasMode selects the alias mode used for the key variable.
func WithAliasMode(m normalize.AliasMode) Option {
	return func(o *options) { o.aliasMode = m }
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("node", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("server", cel.StringType),
		cel.Variable("port", cel.IntType),
		cel.Variable("protocol", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Function("domain",
			cel.Overload("domain_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc(func(s string) string { return normalize.Domain(s) })),
			),
		),
		cel.Function("lower",
			cel.Overload("lower_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc(strings.ToLower)),
			),
		),
	)
}

func stringFunc(fn func(string) string) func(ref.Val) ref.Val {
	return func(v ref.Val) ref.Val {
		s, ok := v.(types.String)
		if !ok {
			return types.MaybeNoSuchOverloadErr(v)
		}
		return types.String(fn(string(s)))
	}
}

// Compile parses and type-checks expr. The result must be a scalar that can
// be rendered as a string.
func Compile(expr string, opts ...Option) (*Program, error) {
	o := options{costLimit: DefaultCostLimit}
	for _, fn := range opts {
		fn(&o)
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, compileError(expr, "key 表达式为空", nil)
	}
	env, err := newEnv()
	if err != nil {
		return nil, compileError(expr, "初始化表达式环境失败", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, compileError(expr, "key 表达式编译失败", iss.Err())
	}
	switch ast.OutputType().Kind() {
	case types.StringKind, types.IntKind, types.UintKind, types.DoubleKind, types.BoolKind, types.DynKind:
	default:
		return nil, compileError(expr,
			fmt.Sprintf("key 表达式的结果类型不受支持：%s", ast.OutputType()), nil)
	}
	prg, err := env.Program(ast, cel.CostLimit(o.costLimit))
	if err != nil {
		return nil, compileError(expr, "key 表达式编译失败", err)
	}
	return &Program{
		expr: expr,
		prg:  prg,
		gen:  identity.NewGenerator(identity.WithAliasMode(o.aliasMode)),
	}, nil
}

func (p *Program) String() string { return p.expr }

// Key evaluates the expression against n. Its signature matches
// dedup.KeyFunc.
func (p *Program) Key(n model.Node) (string, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"node":     celValue(n.Map()),
		"server":   normalize.Domain(n.Server),
		"port":     int64(normalize.Int(n.Port, 0)),
		"protocol": n.Protocol().Tag(n.Type),
		"name":     n.Name,
		"key":      p.gen.Key(n),
	})
	if err != nil {
		return "", err
	}
	if s, ok := out.(types.String); ok {
		return string(s), nil
	}
	conv := out.ConvertToType(types.StringType)
	if types.IsError(conv) {
		return "", fmt.Errorf("key expression produced %s, want string", out.Type().TypeName())
	}
	s, ok := conv.(types.String)
	if !ok {
		return "", fmt.Errorf("key expression produced %s, want string", out.Type().TypeName())
	}
	return string(s), nil
}

// celValue converts decoded YAML/JSON values into the shapes the CEL type
// adapter understands.
func celValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = celValue(e)
		}
		return out
	case map[any]any:
		m, _ := normalize.AsMap(x)
		return celValue(m)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = celValue(e)
		}
		return out
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint16:
		return uint64(x)
	case float32:
		return float64(x)
	case nil:
		return types.NullValue
	default:
		return v
	}
}
