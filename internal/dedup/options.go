package dedup

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/normalize"
)

type Action string

const (
	// ActionDelete drops nodes whose canonical key was already seen.
	ActionDelete Action = "delete"
	// ActionRename keeps every node and disambiguates repeated display names.
	ActionRename Action = "rename"
)

type Position string

const (
	PositionFront Position = "front"
	PositionBack  Position = "back"
)

// StrategyFull is the only dedup strategy: the whole canonical key.
const StrategyFull = "full"

const (
	DefaultTemplate  = "0123456789"
	DefaultLink      = "-"
	DefaultChunkSize = 1000
)

// Options configures one dedup call. Start from DefaultOptions: the zero
// value has KeepFirst=false, which keeps the last copy on score ties.
type Options struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Action   Action `json:"action" yaml:"action"`

	// KeepFirst breaks ties between equally scored duplicates. A strictly
	// more complete node always wins regardless of order.
	KeepFirst bool `json:"keepFirst" yaml:"keep_first"`

	// CaseSensitive is reserved. Keys are always built case-insensitively for
	// enumerated fields and byte-exact for secrets.
	CaseSensitive bool `json:"caseSensitive" yaml:"case_sensitive"`

	// Rename mode: Template holds the ten digit glyphs for 0-9, Link joins the
	// name and the sequence number, Position puts the number before or after.
	Template string   `json:"template" yaml:"template"`
	Link     string   `json:"link" yaml:"link"`
	Position Position `json:"position" yaml:"position"`

	// ChunkSize bounds each slice processed by BatchDeduplicate.
	ChunkSize int `json:"chunkSize" yaml:"chunk_size"`
	// BatchFirstSeen makes BatchDeduplicate keep the first copy of each key
	// without scoring. The default reconciles scores across chunks and matches
	// Deduplicate exactly.
	BatchFirstSeen bool `json:"batchFirstSeen" yaml:"batch_first_seen"`

	AliasMode normalize.AliasMode `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		Strategy:  StrategyFull,
		Action:    ActionDelete,
		KeepFirst: true,
		Template:  DefaultTemplate,
		Link:      DefaultLink,
		Position:  PositionBack,
		ChunkSize: DefaultChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyFull
	}
	if o.Action == "" {
		o.Action = ActionDelete
	}
	if o.Template == "" {
		o.Template = DefaultTemplate
	}
	if o.Position == "" {
		o.Position = PositionBack
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// Validate reports whether o, after defaults are filled in, is usable.
func (o Options) Validate() error {
	return o.withDefaults().validate()
}

func (o Options) validate() error {
	if o.Strategy != StrategyFull {
		return optionsError(fmt.Sprintf("不支持的去重策略：%s", o.Strategy), "supported: full")
	}
	switch o.Action {
	case ActionDelete, ActionRename:
	default:
		return optionsError(fmt.Sprintf("不支持的去重动作：%s", o.Action), "supported: delete, rename")
	}
	switch o.Position {
	case PositionFront, PositionBack:
	default:
		return optionsError(fmt.Sprintf("不支持的编号位置：%s", o.Position), "supported: front, back")
	}
	if n := utf8.RuneCountInString(o.Template); n != 10 {
		return optionsError(fmt.Sprintf("编号模板必须恰好包含 10 个字符（got=%d）", n), "example: 0123456789")
	}
	if strings.ContainsAny(o.Link, "\r\n\x00") {
		return optionsError("连接符包含非法控制字符", "")
	}
	switch o.AliasMode {
	case normalize.AliasStrict, normalize.AliasUnified:
	default:
		return optionsError("未知的字段别名模式", "supported: strict, unified")
	}
	return nil
}

// OptionsError reports invalid options. It is a caller bug, never a data
// problem, so it is returned instead of being absorbed.
type OptionsError struct {
	AppError model.AppError
	Cause    error
}

func (e *OptionsError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *OptionsError) Unwrap() error { return e.Cause }

func optionsError(message, hint string) error {
	return &OptionsError{
		AppError: model.AppError{
			Code:    "INVALID_ARGUMENT",
			Message: message,
			Stage:   "dedup",
			Hint:    hint,
		},
	}
}
