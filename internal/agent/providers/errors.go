// Package providers implements the LLM provider adapters behind the
// agent.LLMProvider interface: Anthropic (native SDK), an
// OpenAI-compatible adapter covering OpenAI, Azure OpenAI, and
// OpenRouter, and AWS Bedrock. Each adapter handles streaming, tool
// calling, retry with backoff, and error classification.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/corefield/agentcore/pkg/models"
)

// ProviderError is the structured error every adapter surfaces. Kind
// carries the error taxonomy (RateLimit, AuthFailed, BadRequest,
// ServerError, NetworkError) so the executor and retry layer branch on
// kind, not on strings.
type ProviderError struct {
	Kind     models.ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause and wraps it.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Kind:     classifyError(cause),
	}
	if cause != nil {
		err.Message = cause.Error()
	}
	return err
}

// WithStatus attaches the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Kind = classifyStatus(status)
	return e
}

// IsRetryable reports whether the error should be retried with backoff.
// Per the runtime's retry policy only network and server errors are
// retried; rate limits, auth failures, and bad requests fail the loop.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == models.KindLLMNetworkError || pe.Kind == models.KindLLMServerError
	}
	kind := classifyError(err)
	return kind == models.KindLLMNetworkError || kind == models.KindLLMServerError
}

func classifyStatus(status int) models.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return models.KindLLMRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.KindLLMAuthFailed
	case status >= 400 && status < 500:
		return models.KindLLMBadRequest
	case status >= 500:
		return models.KindLLMServerError
	default:
		return models.KindLLMNetworkError
	}
}

func classifyError(err error) models.ErrorKind {
	if err == nil {
		return models.KindLLMNetworkError
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "rate limit") || strings.Contains(s, "rate_limit") || strings.Contains(s, "too many requests") || strings.Contains(s, "429"):
		return models.KindLLMRateLimit
	case strings.Contains(s, "unauthorized") || strings.Contains(s, "invalid api key") || strings.Contains(s, "authentication") || strings.Contains(s, "401") || strings.Contains(s, "403"):
		return models.KindLLMAuthFailed
	case strings.Contains(s, "invalid request") || strings.Contains(s, "bad request") || strings.Contains(s, "400"):
		return models.KindLLMBadRequest
	case strings.Contains(s, "internal server") || strings.Contains(s, "server error") || strings.Contains(s, "overloaded") || strings.Contains(s, "500") || strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "529"):
		return models.KindLLMServerError
	default:
		return models.KindLLMNetworkError
	}
}
