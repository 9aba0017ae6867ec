package structurer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
// 每次调用只发送一次请求，不重试，返回模型的原始文本。
type LLMClient interface {
	Complete(ctx context.Context, env Envelope) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// ErrMissingAPIKey is reported before any request is attempted.
var ErrMissingAPIKey = errors.New("llm api key missing")

// ErrorKind classifies completion failures.
type ErrorKind string

const (
	KindUnauthorized  ErrorKind = "unauthorized"
	KindRateLimited   ErrorKind = "rate_limited"
	KindServerError   ErrorKind = "server_error"
	KindNetworkError  ErrorKind = "network_error"
	KindEmptyResponse ErrorKind = "empty_response"
)

// CompletionError is the only error type an LLMClient returns.
type CompletionError struct {
	Kind       ErrorKind
	StatusCode int
	// Message is the upstream error message, or the status line when the
	// error body was not JSON.
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *CompletionError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("completion %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("completion %s", e.Kind)
	}
}

func (e *CompletionError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// kindForStatus maps a non-2xx status code onto the taxonomy.
func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindServerError
	}
}

// UserMessage renders err as the text shown in the error banner.
func UserMessage(err error) string {
	if errors.Is(err, ErrInvalidInput) {
		return "Please enter a prompt before submitting."
	}
	var ce *CompletionError
	if !errors.As(err, &ce) {
		return "An unexpected error occurred"
	}
	switch ce.Kind {
	case KindUnauthorized:
		return "The API key was rejected. Please check the API key in your .env file."
	case KindRateLimited:
		if ce.RetryAfter > 0 {
			return fmt.Sprintf("Rate limit reached. Try again in %s.", ce.RetryAfter)
		}
		return "Rate limit reached. Please wait a moment and try again."
	case KindServerError:
		return "API error: " + ce.Message
	case KindNetworkError:
		return "Could not reach the completion service. Check your connection and try again."
	case KindEmptyResponse:
		return "No content received from API"
	default:
		return "An unexpected error occurred"
	}
}
