package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/nodededup/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nodededup",
		Short:         "代理节点去重工具",
		Long:          "按协议语义识别重复的代理节点，删除或重命名重复项。可作为命令行工具或 HTTP 服务运行。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := config.Default()
	root.PersistentFlags().String("config", "", "YAML 配置文件路径")
	root.PersistentFlags().String("log-level", def.LogLevel, "日志级别（debug/info/warn/error）")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDedupCmd())
	root.AddCommand(newHealthcheckCmd())
	return root
}

// loadConfig layers the config file, .env, the environment and the flags of
// cmd that were set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	// Validate already rejected bad levels.
	lvl, _ := cfg.SlogLevel()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// addDedupFlags registers the flags that seed dedup options. Their defaults
// only document the built-in values; config.ApplyFlags reads changed flags.
func addDedupFlags(cmd *cobra.Command) {
	def := config.Default().Dedup
	f := cmd.Flags()
	f.String("action", def.Action, "重复节点的处理方式（delete/rename）")
	f.Bool("keep-first", def.KeepFirst, "得分相同时保留最先出现的节点")
	f.String("template", def.Template, "重命名编号使用的 10 个数字字符")
	f.String("link", def.Link, "重命名时名称与编号之间的连接符")
	f.String("position", def.Position, "重命名编号的位置（front/back）")
	f.Int("chunk-size", def.ChunkSize, "分批去重时每批的节点数")
	f.String("alias-mode", def.AliasMode, "host 字段的解释方式（strict/unified）")
}
