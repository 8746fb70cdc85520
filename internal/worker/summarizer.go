package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// Summarizer produces a short summary of a note.
type Summarizer interface {
	Summarize(ctx context.Context, text string, sentences int) (string, error)
}

// Extractive picks the most representative sentences of the note itself.
type Extractive struct{}

// Summarize implements Summarizer.
func (Extractive) Summarize(ctx context.Context, text string, sentences int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Summarize(text, sentences), nil
}

// AnthropicSummarizer asks a hosted model for the summary. Notes already
// short enough are returned unchanged without a call.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSummarizer builds a summarizer for the given key and model.
func NewAnthropicSummarizer(apiKey, model string) (*AnthropicSummarizer, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic summarizer requires an API key")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Summarize implements Summarizer.
func (a *AnthropicSummarizer) Summarize(ctx context.Context, text string, sentences int) (string, error) {
	if sentences <= 0 {
		sentences = DefaultSummarySentences
	}
	if len(sentencePattern.FindAllString(text, -1)) <= sentences {
		return text, nil
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(summaryPrompt(text, sentences))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	if len(msg.Content) == 0 {
		return "", errors.New("empty summary response")
	}
	return strings.TrimSpace(msg.Content[0].Text), nil
}

func summaryPrompt(text string, sentences int) string {
	return fmt.Sprintf(`Summarize the following note in at most %d sentences.
Keep ticker symbols, indicator names and numbers exactly as written.
Output ONLY the summary, no preamble.

Note:
%s`, sentences, text)
}
