package agent

import (
	"context"
	"fmt"
	"strings"

	ctxengine "github.com/corefield/agentcore/internal/context"
)

const summarizePrompt = `Summarize the following conversation segment. Preserve decisions made,
files touched, open questions, and any constraints stated by the user.
Be concise; the summary replaces the segment in a longer conversation.`

// ProviderSummarizer implements the context engine's Summarizer by
// asking the configured LLM provider for a summary of a message span.
type ProviderSummarizer struct {
	provider LLMProvider
	model    string
}

// NewProviderSummarizer builds a summarizer over provider. model may be
// empty to use the provider default.
func NewProviderSummarizer(provider LLMProvider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: model}
}

// Summarize implements ctxengine.Summarizer.
func (s *ProviderSummarizer) Summarize(ctx context.Context, messages []ctxengine.Message) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("summarizer: no provider")
	}

	var transcript strings.Builder
	for _, m := range messages {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	req := &CompletionRequest{
		Model:  s.model,
		System: summarizePrompt,
		Messages: []CompletionMessage{
			{Role: "user", Content: transcript.String()},
		},
		MaxTokens: 1024,
	}

	chunks, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		out.WriteString(chunk.Text)
	}
	return out.String(), nil
}
