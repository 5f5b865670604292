package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/render"

	"github.com/jhsobrinho/educareapp-sub000/internal/infrastructure"
)

// ErrorHandler provides centralized error handling: every domain error is
// mapped to an RFC 7807 problem and logged with request context.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	// Callers need to distinguish "nothing happened, safe to retry" from
	// hard failures; transport failures are the only retryable kind.
	problem.WithExtension("retryable", IsRetryable(err))

	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	switch {
	case errors.Is(err, ErrForbidden):
		return NewProblemDetails(
			http.StatusForbidden,
			TypeForbidden,
			"Forbidden",
			"You don't have permission to perform this action",
			r.URL.Path,
		)

	case errors.Is(err, ErrLicenseNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeLicenseNotFound,
			"License Not Found",
			"The specified license was not found",
			r.URL.Path,
		)

	case errors.Is(err, ErrTeamNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeTeamNotFound,
			"Team Not Found",
			"The specified team was not found",
			r.URL.Path,
		)

	case errors.Is(err, ErrDuplicateKey):
		return NewProblemDetails(
			http.StatusConflict,
			TypeDuplicateKey,
			"Duplicate License Key",
			"A license with this key already exists",
			r.URL.Path,
		)

	case errors.Is(err, ErrLicenseInactive):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeLicenseInactive,
			"License Inactive",
			"The license is not active and cannot be allocated",
			r.URL.Path,
		)

	case errors.Is(err, ErrLicenseExpired):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeLicenseExpired,
			"License Expired",
			"The license has expired. Please renew to continue",
			r.URL.Path,
		)

	case errors.Is(err, ErrCapacityExceeded):
		return NewProblemDetails(
			http.StatusConflict,
			TypeCapacityExceeded,
			"Capacity Exceeded",
			"The license has no remaining seats",
			r.URL.Path,
		)

	case errors.Is(err, ErrHasBoundTeams):
		return NewProblemDetails(
			http.StatusConflict,
			TypeHasBoundTeams,
			"License Has Bound Teams",
			"Teams are still bound to this license; detach them first",
			r.URL.Path,
		)

	case errors.Is(err, ErrMemberLimitExceeded):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeMemberLimit,
			"Member Limit Exceeded",
			"The team exceeds the member limit of its license",
			r.URL.Path,
		)

	case errors.Is(err, ErrImmutableField):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeImmutableField,
			"Immutable Field",
			"Key, model and type cannot change after creation",
			r.URL.Path,
		)

	case errors.Is(err, ErrAccountantOwnedField):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeAccountantOwned,
			"Accountant-Owned Field",
			"Seat usage and team bindings are mutated only through allocation",
			r.URL.Path,
		)

	case errors.Is(err, ErrConflict):
		return NewProblemDetails(
			http.StatusConflict,
			TypeConflict,
			"Conflict",
			"The record was modified concurrently; reload and retry",
			r.URL.Path,
		)

	case errors.Is(err, ErrTransportFailure):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeTransportFailure,
			"Storage Unavailable",
			"The data store could not be reached; the request did not take effect",
			r.URL.Path,
		)

	default:
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Type == ErrTypeValidation {
			return NewProblemDetails(
				http.StatusBadRequest,
				TypeValidation,
				"Validation Failed",
				appErr.Message,
				r.URL.Path,
			)
		}

		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request",
			r.URL.Path,
		)
	}
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))

	render.Render(w, r, problem)
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
