package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/nodededup/internal/dedup"
	"github.com/John-Robertt/nodededup/internal/fetch"
	"github.com/John-Robertt/nodededup/internal/keyexpr"
	"github.com/John-Robertt/nodededup/internal/model"
	"github.com/John-Robertt/nodededup/internal/render"
	"github.com/John-Robertt/nodededup/internal/sub"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		WriteError(w, fe.Status, fe.AppError)
		return
	}

	// Bad options or key expressions are request errors => 400.
	var oe *dedup.OptionsError
	if errors.As(err, &oe) {
		WriteError(w, http.StatusBadRequest, oe.AppError)
		return
	}

	var ke *keyexpr.CompileError
	if errors.As(err, &ke) {
		WriteError(w, http.StatusBadRequest, ke.AppError)
		return
	}

	// Subscription/render errors are user content errors => 422.
	var pe *sub.ParseError
	if errors.As(err, &pe) {
		WriteError(w, http.StatusUnprocessableEntity, pe.AppError)
		return
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		status := http.StatusUnprocessableEntity
		if re.AppError.Code == "UNSUPPORTED_TARGET" {
			status = http.StatusBadRequest
		}
		WriteError(w, status, re.AppError)
		return
	}

	// Fallback: internal bug.
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
