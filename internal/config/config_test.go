package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opt, err := cfg.Dedup.Options()
	require.NoError(t, err)
	assert.Equal(t, dedup.DefaultOptions(), opt)
}

func TestLoad_Layers(t *testing.T) {
	path := writeFile(t, "nodededup.yaml", `
listen: 0.0.0.0:8080
fetch_timeout: 3s
max_subs: 8
dedup:
  action: rename
  link: "_"
  alias_mode: unified
`)
	envFile := writeFile(t, ".env", "NODEDEDUP_LOG_LEVEL=debug\nNODEDEDUP_LISTEN=127.0.0.1:9000\n")
	t.Setenv("NODEDEDUP_LISTEN", "127.0.0.1:9100")
	t.Setenv("NODEDEDUP_CHUNK_SIZE", "50")
	t.Cleanup(func() { _ = os.Unsetenv("NODEDEDUP_LOG_LEVEL") })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	// The real environment wins over .env, which wins over the file.
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 8, cfg.MaxSubs)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, "rename", cfg.Dedup.Action)
	assert.Equal(t, "_", cfg.Dedup.Link)
	assert.Equal(t, 50, cfg.Dedup.ChunkSize)
	assert.True(t, cfg.Dedup.KeepFirst, "absent keys keep their defaults")

	opt, err := cfg.Dedup.Options()
	require.NoError(t, err)
	assert.Equal(t, dedup.ActionRename, opt.Action)
	assert.Equal(t, normalize.AliasUnified, opt.AliasMode)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t))
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "CONFIG_INVALID", ce.AppError.Code)

	unknown := writeFile(t, "c.yaml", "listen: x\nlisten_addr: y\n")
	_, err = Load(unknown, noEnvFile(t))
	require.True(t, errors.As(err, &ce), "unknown keys are rejected")

	badDedup := writeFile(t, "d.yaml", "dedup:\n  template: \"0123\"\n")
	_, err = Load(badDedup, noEnvFile(t))
	require.True(t, errors.As(err, &ce))
	var oe *dedup.OptionsError
	assert.True(t, errors.As(err, &oe))

	noSubs := writeFile(t, "s.yaml", "max_subs: 0\n")
	_, err = Load(noSubs, noEnvFile(t))
	require.True(t, errors.As(err, &ce), "max_subs must be positive")

	t.Setenv("NODEDEDUP_KEEP_FIRST", "maybe")
	_, err = Load("", noEnvFile(t))
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "NODEDEDUP_KEEP_FIRST", ce.AppError.Snippet)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""), noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyFlags_OnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("listen", "ignored:1", "")
	fs.Bool("keep-first", true, "")
	fs.String("alias-mode", "strict", "")
	fs.String("output", "", "")
	require.NoError(t, fs.Parse([]string{"--keep-first=false", "--alias-mode", "unified", "--output", "x.yaml"}))

	cfg := Default()
	require.NoError(t, cfg.ApplyFlags(fs))
	assert.Equal(t, Default().Listen, cfg.Listen, "unset flags do not override")
	assert.False(t, cfg.Dedup.KeepFirst)
	assert.Equal(t, "unified", cfg.Dedup.AliasMode)
}

func TestApplyFlags_Invalid(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("position", "back", "")
	require.NoError(t, fs.Parse([]string{"--position", "middle"}))

	cfg := Default()
	err := cfg.ApplyFlags(fs)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "NODEDEDUP_KEY_EXPR_CACHE_SIZE", EnvName("key-expr-cache-size"))
}
