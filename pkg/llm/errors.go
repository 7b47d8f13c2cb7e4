package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies oracle failures.
type ErrorType string

const (
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeResponse    ErrorType = "response"
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured oracle error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

func classifyWithContext(err error, model, endpoint string) *Error {
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = model
	}
	if llmErr.Endpoint == "" {
		llmErr.Endpoint = endpoint
	}
	return llmErr
}

// ClassifyError categorizes an error and returns a structured Error.
// Typed SDK errors are inspected first, then the message text.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return NewError(ErrorTypeCanceled, "request canceled", false, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}

	if status := statusCodeOf(err); status > 0 {
		return classifyStatus(err, status)
	}

	var anthropicAPIErr *anthropic.APIError
	if errors.As(err, &anthropicAPIErr) {
		switch {
		case anthropicAPIErr.IsRateLimitErr():
			return NewError(ErrorTypeRateLimit, "rate limited", true, err)
		case anthropicAPIErr.IsOverloadedErr(), anthropicAPIErr.IsApiErr():
			return NewError(ErrorTypeEndpoint, "server error", true, err)
		case anthropicAPIErr.IsAuthenticationErr(), anthropicAPIErr.IsPermissionErr():
			return NewError(ErrorTypeAuth, "authentication failed", false, err)
		case anthropicAPIErr.IsNotFoundErr():
			return NewError(ErrorTypeModel, "model not found", false, err)
		}
	}

	return classifyMessage(err)
}

func statusCodeOf(err error) int {
	var openaiAPIErr *openai.APIError
	if errors.As(err, &openaiAPIErr) {
		return openaiAPIErr.HTTPStatusCode
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode
	}
	var anthropicReqErr *anthropic.RequestError
	if errors.As(err, &anthropicReqErr) {
		return anthropicReqErr.StatusCode
	}
	return 0
}

func classifyStatus(err error, status int) *Error {
	var llmErr *Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		llmErr = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case status == http.StatusNotFound:
		llmErr = NewError(ErrorTypeModel, "model or endpoint not found", false, err)
	case status == http.StatusTooManyRequests:
		llmErr = NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		llmErr = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case status >= 500:
		llmErr = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		llmErr = NewError(ErrorTypeUnknown, "request rejected", false, err)
	}
	llmErr.StatusCode = status
	return llmErr
}

func classifyMessage(err error) *Error {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	var llmErr *Error
	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		llmErr = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		llmErr = NewError(ErrorTypeModel, "model not found", false, err)
	case strings.Contains(errStr, "404"):
		llmErr = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		llmErr = NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		llmErr = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit"):
		llmErr = NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case strings.Contains(lower, "overloaded") || strings.Contains(errStr, "529"):
		llmErr = NewError(ErrorTypeEndpoint, "provider overloaded", true, err)
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		llmErr = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		llmErr = NewError(ErrorTypeUnknown, "llm error", false, err)
	}
	llmErr.StatusCode = statusCode
	return llmErr
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
