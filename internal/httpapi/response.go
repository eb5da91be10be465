package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"mubarakway/internal/auth"
	"mubarakway/internal/storage"
)

var (
	// ErrInvalidInput is returned for bodies or queries that cannot be bound.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLocationRequired is returned when no coordinates are given or saved.
	ErrLocationRequired = errors.New("location required")
	// ErrUnauthenticated is returned when a handler needs a Telegram user but has none.
	ErrUnauthenticated = errors.New("telegram user required")
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Envelope is the standard API response wrapper.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a successful response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

// HTTPErrorHandler returns the global error handler for echo.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, apiErr := mapError(err)
		if status == http.StatusInternalServerError {
			log.Error("unhandled error", "path", c.Path(), "error", err)
		}
		if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
			log.Error("send error response", "error", jsonErr)
		}
	}
}

func mapError(err error) (int, APIError) {
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{Code: http.StatusText(echoErr.Code), Message: msg}
	}

	var validationErr *ValidationError
	switch {
	case errors.Is(err, auth.ErrMissing), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, APIError{
			Code:    "UNAUTHORIZED",
			Message: "Telegram authentication required",
		}
	case errors.Is(err, auth.ErrInvalidHash):
		return http.StatusUnauthorized, APIError{
			Code:    "INVALID_AUTH",
			Message: "Invalid Telegram authentication",
		}
	case errors.Is(err, auth.ErrExpired):
		return http.StatusUnauthorized, APIError{
			Code:    "AUTH_EXPIRED",
			Message: "Authentication expired",
		}
	case errors.Is(err, auth.ErrMalformed):
		return http.StatusUnauthorized, APIError{
			Code:    "AUTH_ERROR",
			Message: "Authentication failed",
		}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "NOT_FOUND",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, ErrLocationRequired):
		return http.StatusBadRequest, APIError{
			Code:    "LOCATION_REQUIRED",
			Message: "Set a location or pass lat and lon",
		}
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "INVALID_INPUT",
			Message: "The request is invalid",
		}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Validation failed",
			Details: []FieldError{{Field: validationErr.Field, Message: validationErr.Message}},
		}
	default:
		return http.StatusInternalServerError, APIError{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		}
	}
}
