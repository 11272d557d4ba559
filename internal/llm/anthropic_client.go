package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dlqrecover/pipeline/internal/model"
)

// anthropicSDKClient adapts the Anthropic Go SDK's Messages API to the
// narrow anthropicAPI contract this package depends on. This file is the
// only place in the codebase that imports anthropic-sdk-go.
type anthropicSDKClient struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicSDKClient builds the real API-calling client. apiKey empty
// falls back to the SDK's default ANTHROPIC_API_KEY environment lookup.
func NewAnthropicSDKClient(apiKey, modelName string) *anthropicSDKClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := anthropic.NewClient(opts...)
	return &anthropicSDKClient{client: &c, model: anthropic.Model(modelName)}
}

// CreateMessage implements anthropicAPI.
func (a *anthropicSDKClient) CreateMessage(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64, temperature float64) (string, model.TokenUsage, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", model.TokenUsage{}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	usage := model.TokenUsage{
		Input:  int(msg.Usage.InputTokens),
		Output: int(msg.Usage.OutputTokens),
	}
	return text, usage, nil
}

var _ anthropicAPI = (*anthropicSDKClient)(nil)
