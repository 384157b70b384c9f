package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/vallemarketing/valle360-teste-sub009/internal/auth"
	"github.com/vallemarketing/valle360-teste-sub009/internal/domain"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error represents an API error
type Error struct {
	Message    string
	StatusCode int
	Code       string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest     = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrNotFound           = &Error{Message: "Resource not found", StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	ErrUnauthorized       = &Error{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrForbidden          = &Error{Message: "Forbidden", StatusCode: http.StatusForbidden, Code: "FORBIDDEN"}
	ErrConflict           = &Error{Message: "Resource already exists", StatusCode: http.StatusConflict, Code: "CONFLICT"}
	ErrServiceUnavailable = &Error{Message: "Service unavailable", StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE"}
)

// NewValidationError creates a new validation error with a custom message
func NewValidationError(message string) *Error {
	return &Error{
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
	}
}

// toAPIError maps domain and infrastructure errors onto HTTP errors
func toAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return NewValidationError(verr.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, signature.ErrUnknownProvider):
		return &Error{Message: "Unknown provider", StatusCode: http.StatusBadRequest, Code: "UNKNOWN_PROVIDER"}
	case errors.Is(err, signature.ErrInvalidPayload):
		return &Error{Message: "Could not parse event: " + err.Error(), StatusCode: http.StatusBadRequest, Code: "INVALID_PAYLOAD"}
	case errors.Is(err, signature.ErrInvalidSignature):
		return &Error{Message: "Invalid signature", StatusCode: http.StatusUnauthorized, Code: "INVALID_SIGNATURE"}
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrDuplicateKey):
		return ErrConflict
	case errors.Is(err, search.ErrDisabled):
		return ErrServiceUnavailable
	}
	return nil
}

// WriteError writes an error response
func WriteError(c *gin.Context, err error) {
	if apiErr := toAPIError(err); apiErr != nil {
		c.AbortWithStatusJSON(apiErr.StatusCode, ErrorResponse{Error: apiErr.Message, Code: apiErr.Code})
		return
	}

	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
		Code:  "INTERNAL_ERROR",
	})
}
