// Package config loads runtime settings in layers: built-in defaults, an
// optional YAML file, .env plus NODEDEDUP_* environment variables, and finally
// command-line flags that were explicitly set.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

const EnvPrefix = "NODEDEDUP_"

type Config struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	MaxFetchBytes     int64         `yaml:"max_fetch_bytes"`
	KeyExprCacheSize  int           `yaml:"key_expr_cache_size"`
	MaxSubs           int           `yaml:"max_subs"`
	FetchConcurrency  int           `yaml:"fetch_concurrency"`
	LogLevel          string        `yaml:"log_level"`

	Dedup DedupDefaults `yaml:"dedup"`
}

// DedupDefaults seeds dedup.Options for the CLI and the HTTP API.
type DedupDefaults struct {
	Action    string `yaml:"action"`
	KeepFirst bool   `yaml:"keep_first"`
	Template  string `yaml:"template"`
	Link      string `yaml:"link"`
	Position  string `yaml:"position"`
	ChunkSize int    `yaml:"chunk_size"`
	AliasMode string `yaml:"alias_mode"`
}

func Default() Config {
	return Config{
		Listen:            "127.0.0.1:25600",
		ReadHeaderTimeout: 5 * time.Second,
		RequestTimeout:    60 * time.Second,
		FetchTimeout:      15 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      10 * 1024 * 1024,
		MaxFetchBytes:     5 * 1024 * 1024,
		KeyExprCacheSize:  128,
		MaxSubs:           32,
		FetchConcurrency:  4,
		LogLevel:          "info",
		Dedup: DedupDefaults{
			Action:    string(dedup.ActionDelete),
			KeepFirst: true,
			Template:  dedup.DefaultTemplate,
			Link:      dedup.DefaultLink,
			Position:  string(dedup.PositionBack),
			ChunkSize: dedup.DefaultChunkSize,
			AliasMode: "strict",
		},
	}
}

type ConfigError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func configError(message, snippet string, cause error) *ConfigError {
	return &ConfigError{
		AppError: model.AppError{
			Code:    "CONFIG_INVALID",
			Message: message,
			Stage:   "config",
			Snippet: snippet,
		},
		Cause: cause,
	}
}

// Load applies defaults, the YAML file at path (skipped when empty), the
// given .env files (".env" when none) and the environment. Missing .env files
// are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, configError(".env 文件读取失败", f, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return configError("配置文件读取失败", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return configError("配置文件解析失败", path, err)
	}
	return nil
}

// settings maps a flag name to its setter. The environment variable of a
// setting is EnvPrefix plus the upper-cased name with '-' replaced by '_'.
var settings = map[string]func(c *Config, v string) error{
	"listen":              func(c *Config, v string) error { c.Listen = v; return nil },
	"read-header-timeout": func(c *Config, v string) error { return setDuration(&c.ReadHeaderTimeout, v) },
	"request-timeout":     func(c *Config, v string) error { return setDuration(&c.RequestTimeout, v) },
	"fetch-timeout":       func(c *Config, v string) error { return setDuration(&c.FetchTimeout, v) },
	"shutdown-timeout":    func(c *Config, v string) error { return setDuration(&c.ShutdownTimeout, v) },
	"max-body-bytes":      func(c *Config, v string) error { return setInt64(&c.MaxBodyBytes, v) },
	"max-fetch-bytes":     func(c *Config, v string) error { return setInt64(&c.MaxFetchBytes, v) },
	"key-expr-cache-size": func(c *Config, v string) error { return setInt(&c.KeyExprCacheSize, v) },
	"max-subs":            func(c *Config, v string) error { return setInt(&c.MaxSubs, v) },
	"fetch-concurrency":   func(c *Config, v string) error { return setInt(&c.FetchConcurrency, v) },
	"log-level":           func(c *Config, v string) error { c.LogLevel = v; return nil },
	"action":              func(c *Config, v string) error { c.Dedup.Action = v; return nil },
	"keep-first":          func(c *Config, v string) error { return setBool(&c.Dedup.KeepFirst, v) },
	"template":            func(c *Config, v string) error { c.Dedup.Template = v; return nil },
	"link":                func(c *Config, v string) error { c.Dedup.Link = v; return nil },
	"position":            func(c *Config, v string) error { c.Dedup.Position = v; return nil },
	"chunk-size":          func(c *Config, v string) error { return setInt(&c.Dedup.ChunkSize, v) },
	"alias-mode":          func(c *Config, v string) error { c.Dedup.AliasMode = v; return nil },
}

func EnvName(setting string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(setting, "-", "_"))
}

// ApplyEnv overrides settings from lookup, normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, set := range settings {
		env := EnvName(name)
		v, ok := lookup(env)
		if !ok {
			continue
		}
		if err := set(c, strings.TrimSpace(v)); err != nil {
			return configError("环境变量取值不合法", env, err)
		}
	}
	return nil
}

// ApplyFlags overrides settings with the flags of fs that were set on the
// command line. Flags that are not settings are ignored.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		set, ok := settings[f.Name]
		if !ok || err != nil {
			return
		}
		if serr := set(c, f.Value.String()); serr != nil {
			err = configError("命令行参数取值不合法", "--"+f.Name, serr)
		}
	})
	if err != nil {
		return err
	}
	return c.Validate()
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Listen) == "":
		return configError("listen 不能为空", "", nil)
	case c.RequestTimeout <= 0 || c.FetchTimeout <= 0:
		return configError("超时时间必须大于 0", "", nil)
	case c.MaxBodyBytes <= 0 || c.MaxFetchBytes <= 0:
		return configError("大小上限必须大于 0", "", nil)
	case c.KeyExprCacheSize <= 0:
		return configError("key_expr_cache_size 必须大于 0", "", nil)
	case c.MaxSubs <= 0 || c.FetchConcurrency <= 0:
		return configError("max_subs 与 fetch_concurrency 必须大于 0", "", nil)
	}
	if _, err := c.SlogLevel(); err != nil {
		return configError("log_level 不合法", c.LogLevel, err)
	}
	if _, err := c.Dedup.Options(); err != nil {
		return configError("dedup 默认参数不合法", "", err)
	}
	return nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel)))
	return lvl, err
}

// Options converts the defaults into dedup options.
func (d DedupDefaults) Options() (dedup.Options, error) {
	mode, ok := normalize.ParseAliasMode(d.AliasMode)
	if !ok {
		return dedup.Options{}, fmt.Errorf("unknown alias mode %q", d.AliasMode)
	}
	opt := dedup.Options{
		Strategy:  dedup.StrategyFull,
		Action:    dedup.Action(strings.ToLower(strings.TrimSpace(d.Action))),
		KeepFirst: d.KeepFirst,
		Template:  d.Template,
		Link:      d.Link,
		Position:  dedup.Position(strings.ToLower(strings.TrimSpace(d.Position))),
		ChunkSize: d.ChunkSize,
		AliasMode: mode,
	}
	if err := opt.Validate(); err != nil {
		return dedup.Options{}, err
	}
	return opt, nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
