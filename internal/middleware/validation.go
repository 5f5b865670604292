package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
)

// ValidationMiddleware provides request validation using struct tags
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
	maxBodySize  int64
}

// NewValidationMiddleware creates a new validation middleware with the
// domain validators registered.
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *ValidationMiddleware {
	v := validator.New()

	v.RegisterValidation("license_key", isLicenseKey)
	v.RegisterValidation("member_role", isMemberRole)

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ValidationMiddleware{
		validator:    v,
		logger:       logger.With(slog.String("component", "validation_middleware")),
		errorHandler: errorHandler,
		maxBodySize:  1 << 20, // 1MB
	}
}

// ValidateRequest rejects oversized or malformed JSON bodies before
// they reach a handler. GET, HEAD and OPTIONS pass through untouched.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxBodySize {
			problem := apperrors.NewProblemDetails(
				http.StatusRequestEntityTooLarge,
				apperrors.TypeValidation,
				"Payload Too Large",
				fmt.Sprintf("request body exceeds the maximum of %d bytes", m.maxBodySize),
				r.URL.Path,
			)
			render.Render(w, r, problem)
			return
		}

		if r.Body != nil && r.ContentLength > 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBodySize))
			if err != nil {
				m.logger.ErrorContext(r.Context(), "failed to read request body",
					slog.String("error", err.Error()),
				)
				m.errorHandler.HandleError(w, r, apperrors.NewValidationError("unable to read request body"))
				return
			}

			// Restore body for handlers
			r.Body = io.NopCloser(bytes.NewReader(body))

			if len(body) > 0 && !json.Valid(body) {
				m.errorHandler.HandleError(w, r, apperrors.NewValidationError("request body contains invalid JSON"))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// ValidateStruct validates a struct against its validate tags and
// returns the field errors, or nil when the value is valid.
func (m *ValidationMiddleware) ValidateStruct(v interface{}) []apperrors.ValidationError {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []apperrors.ValidationError{{Field: "request", Message: err.Error()}}
	}

	out := make([]apperrors.ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, apperrors.ValidationError{
			Field:   fe.Field(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

// ContentTypeValidator ensures mutating requests carry an allowed
// Content-Type.
func ContentTypeValidator(contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				problem := apperrors.NewProblemDetails(
					http.StatusBadRequest,
					apperrors.TypeValidation,
					"Missing Content-Type",
					"Content-Type header is required",
					r.URL.Path,
				)
				render.Render(w, r, problem)
				return
			}

			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			problem := apperrors.NewProblemDetails(
				http.StatusUnsupportedMediaType,
				apperrors.TypeValidation,
				"Unsupported Media Type",
				fmt.Sprintf("content type %q is not supported", contentType),
				r.URL.Path,
			)
			render.Render(w, r, problem)
		})
	}
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "license_key":
		return fmt.Sprintf("%s must match the EDU-XXXX-XXXX-XXXX key format", field)
	case "member_role":
		return fmt.Sprintf("%s must be coordinator, parent or professional", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isLicenseKey validates the EDU-XXXX-XXXX-XXXX key layout
func isLicenseKey(fl validator.FieldLevel) bool {
	return license.HasGeneratedFormat(fl.Field().String())
}

// isMemberRole validates team member roles
func isMemberRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "coordinator", "parent", "professional":
		return true
	}
	return false
}
