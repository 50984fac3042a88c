package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corefield/agentcore/pkg/models"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   models.ErrorKind
	}{
		{429, models.KindLLMRateLimit},
		{401, models.KindLLMAuthFailed},
		{403, models.KindLLMAuthFailed},
		{400, models.KindLLMBadRequest},
		{500, models.KindLLMServerError},
		{503, models.KindLLMServerError},
	}
	for _, c := range cases {
		err := NewProviderError("test", "m", errors.New("boom")).WithStatus(c.status)
		assert.Equal(t, c.kind, err.Kind, "status %d", c.status)
	}
}

func TestIsRetryableOnlyForNetworkAndServerErrors(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError("p", "m", errors.New("x")).WithStatus(500)))
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(NewProviderError("p", "m", errors.New("x")).WithStatus(429)))
	assert.False(t, IsRetryable(NewProviderError("p", "m", errors.New("x")).WithStatus(401)))
	assert.False(t, IsRetryable(NewProviderError("p", "m", errors.New("x")).WithStatus(400)))
}

func TestProviderErrorMessageShape(t *testing.T) {
	err := NewProviderError("anthropic", "claude-x", errors.New("boom")).WithStatus(503)
	msg := err.Error()
	assert.Contains(t, msg, "llm_server_error")
	assert.Contains(t, msg, "anthropic")
	assert.Contains(t, msg, "model=claude-x")
	assert.Contains(t, msg, "status=503")
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := NewProviderError("p", "m", fmt.Errorf("wrap: %w", cause))
	assert.True(t, errors.Is(err, cause))
}
