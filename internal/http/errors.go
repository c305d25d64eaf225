package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"scout/internal/fetch"
	"scout/internal/llm"
	"scout/internal/search"
)

// Stable error type tokens surfaced in every failure envelope.
const (
	ErrTypeInvalidInput       = "INVALID_INPUT"
	ErrTypeUnauthorized       = "UNAUTHORIZED"
	ErrTypeInvalidAPIKey      = "INVALID_API_KEY"
	ErrTypeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrTypeRateLimited        = "RATE_LIMITED"
	ErrTypeQuotaExceeded      = "QUOTA_EXCEEDED"
	ErrTypeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrTypeSearchService      = "SEARCH_SERVICE_ERROR"
	ErrTypeInternal           = "INTERNAL_ERROR"
)

// mapError classifies a research failure into an HTTP status, a stable
// error type token, and a non-sensitive message.
func mapError(err error) (int, string, string) {
	var apiErr *llm.APIError
	switch {
	case llm.IsAuthError(err):
		return fiber.StatusUnauthorized, ErrTypeInvalidAPIKey, "The provided API key was rejected by the LLM provider"
	case llm.IsQuotaError(err):
		return fiber.StatusPaymentRequired, ErrTypeQuotaExceeded, "LLM provider quota or billing limit reached"
	case errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusTooManyRequests:
		return fiber.StatusTooManyRequests, ErrTypeRateLimited, "LLM provider rate limit exceeded, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable, ErrTypeServiceUnavailable, "Upstream request timed out"
	case isSearchError(err):
		return fiber.StatusServiceUnavailable, ErrTypeSearchService, "Search service is unavailable"
	case llm.IsRetryable(err):
		return fiber.StatusServiceUnavailable, ErrTypeServiceUnavailable, "Upstream service is unavailable"
	default:
		return fiber.StatusInternalServerError, ErrTypeInternal, "Internal error while processing the request"
	}
}

func isSearchError(err error) bool {
	var ferr *search.FailedError
	var nerr *fetch.NetworkError
	return errors.As(err, &ferr) || errors.As(err, &nerr)
}

// fail writes the uniform error envelope, attaching original error
// text only in debug mode.
func fail(c *fiber.Ctx, status int, errType, message string, cause error, debug bool) error {
	resp := ErrorResponse{Success: false, Error: message, ErrorType: errType}
	if debug && cause != nil {
		resp.Detail = cause.Error()
	}
	return c.Status(status).JSON(resp)
}
