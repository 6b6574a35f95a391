package keyexpr

import (
	"fmt"

	"github.com/John-Robertt/nodededup/internal/model"
)

type CompileError struct {
	AppError model.AppError
	Cause    error
}

func (e *CompileError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *CompileError) Unwrap() error { return e.Cause }

func compileError(expr, message string, cause error) error {
	hint := `example: server + ":" + string(port)`
	if cause != nil {
		hint = cause.Error()
	}
	return &CompileError{
		AppError: model.AppError{
			Code:    "KEY_EXPR_INVALID",
			Message: message,
			Stage:   "key_expr",
			Snippet: expr,
			Hint:    hint,
		},
		Cause: cause,
	}
}
