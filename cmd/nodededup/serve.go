package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/nodededup/internal/config"
	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	def := config.Default()
	f := cmd.Flags()
	f.String("listen", def.Listen, "HTTP 监听地址")
	f.Duration("read-header-timeout", def.ReadHeaderTimeout, "HTTP ReadHeaderTimeout（请求头读取超时）")
	f.Duration("request-timeout", def.RequestTimeout, "单次去重请求的总超时（包含远程拉取）")
	f.Duration("fetch-timeout", def.FetchTimeout, "单次远程拉取的超时（每个 URL 一次请求）")
	f.Duration("shutdown-timeout", def.ShutdownTimeout, "收到退出信号后的优雅退出等待时间")
	f.Int64("max-body-bytes", def.MaxBodyBytes, "请求体大小上限")
	f.Int64("max-fetch-bytes", def.MaxFetchBytes, "单个订阅的大小上限")
	f.Int("key-expr-cache-size", def.KeyExprCacheSize, "已编译 keyExpr 的缓存条数")
	f.Int("max-subs", def.MaxSubs, "单个请求可列出的订阅 URL 数量上限")
	f.Int("fetch-concurrency", def.FetchConcurrency, "同时拉取的订阅数量上限")
	addDedupFlags(cmd)
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := newLogger(os.Stderr, cfg)
	defaults, err := cfg.Dedup.Options()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: httpapi.NewHandlerWithOptions(httpapi.Options{
			RequestTimeout:   cfg.RequestTimeout,
			FetchTimeout:     cfg.FetchTimeout,
			MaxBodyBytes:     cfg.MaxBodyBytes,
			MaxFetchBytes:    cfg.MaxFetchBytes,
			KeyExprCacheSize: cfg.KeyExprCacheSize,
			MaxSubs:          cfg.MaxSubs,
			FetchConcurrency: cfg.FetchConcurrency,
			Defaults:         defaults,
			Logger:           logger,
			Engine:           dedup.NewEngine(dedup.WithLogger(logger)),
		}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("listening", "addr", "http://"+cfg.Listen)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
