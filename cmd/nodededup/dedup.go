package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/nodededup/internal/config"
	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/fetch"
	"github.com/John-Robertt/nodededup/internal/keyexpr"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/render"
	"github.com/John-Robertt/nodededup/internal/sub"
)

type dedupFlags struct {
	byType  bool
	batch   bool
	keyExpr string
	target  string
	output  string
	quiet   bool
}

func newDedupCmd() *cobra.Command {
	var fl dedupFlags
	cmd := &cobra.Command{
		Use:   "dedup [file|url|-]...",
		Short: "对订阅文件或 URL 中的节点去重",
		Long: "读取本地文件、http(s) 订阅或标准输入（- 或不给参数），合并后去重，" +
			"以 Clash YAML 或 JSON 输出。统计信息写到标准错误。",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runDedup(cmd, cfg, fl, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&fl.byType, "by-type", false, "按协议分组后再去重")
	f.BoolVar(&fl.batch, "batch", false, "分批去重（批大小见 --chunk-size）")
	f.StringVar(&fl.keyExpr, "key-expr", "", `自定义去重 key 的 CEL 表达式，例如 server + ":" + string(port)`)
	f.StringVar(&fl.target, "target", "clash", "输出格式（clash/json）")
	f.StringVarP(&fl.output, "output", "o", "", "输出文件路径（默认标准输出）")
	f.BoolVarP(&fl.quiet, "quiet", "q", false, "不打印统计表")
	f.Duration("fetch-timeout", config.Default().FetchTimeout, "单次远程拉取的超时")
	f.Int64("max-fetch-bytes", config.Default().MaxFetchBytes, "单个订阅的大小上限")
	f.Int("fetch-concurrency", config.Default().FetchConcurrency, "同时拉取的订阅数量上限")
	addDedupFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("by-type", "batch", "key-expr")
	return cmd
}

func runDedup(cmd *cobra.Command, cfg config.Config, fl dedupFlags, args []string) error {
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	opt, err := cfg.Dedup.Options()
	if err != nil {
		return err
	}
	target, err := render.ParseTarget(fl.target)
	if err != nil {
		return err
	}

	var prog *keyexpr.Program
	if strings.TrimSpace(fl.keyExpr) != "" {
		if opt.Action == dedup.ActionRename {
			return fmt.Errorf("--key-expr only supports --action=delete")
		}
		if prog, err = keyexpr.Compile(fl.keyExpr, keyexpr.WithAliasMode(opt.AliasMode)); err != nil {
			return err
		}
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:       cfg.FetchTimeout,
		MaxBytes:      cfg.MaxFetchBytes,
		MaxConcurrent: cfg.FetchConcurrency,
	})
	in, err := readInputs(cmd.Context(), logger, cmd.InOrStdin(), fetcher, args)
	if err != nil {
		return err
	}

	engine := dedup.NewEngine(dedup.WithLogger(logger))
	var out []model.Node
	switch {
	case prog != nil:
		out, err = engine.CustomDeduplicate(in, prog.Key, opt.KeepFirst)
	case fl.byType:
		out, err = engine.DeduplicateByType(in, opt)
	case fl.batch:
		out, err = engine.BatchDeduplicate(in, opt)
	default:
		out, err = engine.Deduplicate(in, opt)
	}
	if err != nil {
		return err
	}

	body, err := render.Render(target, out)
	if err != nil {
		return err
	}
	if fl.output == "" {
		if _, err := cmd.OutOrStdout().Write(body); err != nil {
			return err
		}
	} else if err := os.WriteFile(fl.output, body, 0o644); err != nil {
		return err
	}

	if !fl.quiet {
		return printStats(cmd.ErrOrStderr(), engine.Stats(), len(out), opt.Action)
	}
	return nil
}

// readInputs parses every source in argument order. No arguments means
// standard input.
func readInputs(ctx context.Context, logger *slog.Logger, stdin io.Reader, fetcher *fetch.Fetcher, args []string) ([]model.Node, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var nodes []model.Node
	for i, src := range args {
		text, err := readSource(ctx, stdin, fetcher, src)
		if err != nil {
			return nil, err
		}
		parsed, err := sub.Parse(src, text)
		if err != nil {
			return nil, err
		}
		logger.Debug("source parsed", "index", i, "nodes", len(parsed))
		nodes = append(nodes, parsed...)
	}
	return nodes, nil
}

func readSource(ctx context.Context, stdin io.Reader, fetcher *fetch.Fetcher, src string) (string, error) {
	switch {
	case src == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return fetcher.Fetch(ctx, src)
	default:
		b, err := os.ReadFile(src)
		return string(b), err
	}
}

func printStats(w io.Writer, st dedup.Stats, kept int, action dedup.Action) error {
	table, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithData(pterm.TableData{
			{"项目", "数值"},
			{"输入节点", strconv.Itoa(st.TotalProcessed)},
			{"输出节点", strconv.Itoa(kept)},
			{"重复", strconv.Itoa(st.DuplicatesFound)},
			{"删除", strconv.Itoa(st.DuplicatesRemoved)},
			{"动作", string(action)},
			{"耗时", (time.Duration(st.ProcessingTimeMs) * time.Millisecond).String()},
		}).
		Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}
