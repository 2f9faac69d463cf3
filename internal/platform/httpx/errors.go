// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Extender is implemented by domain errors that carry structured fields for the problem body.
type Extender interface {
	ProblemFields() map[string]any
}

// Kinder is implemented by domain errors that name their failure kind.
type Kinder interface {
	Kind() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, title := classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		detail = ""
	}
	problem := ProblemDetail{Title: title, Status: status, Detail: detail}
	var kinder Kinder
	if errors.As(err, &kinder) {
		problem.Kind = kinder.Kind()
	}
	var ext Extender
	if errors.As(err, &ext) {
		problem.Extensions = ext.ProblemFields()
	}
	WriteProblem(w, problem)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
