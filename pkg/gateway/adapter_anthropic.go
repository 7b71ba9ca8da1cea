package gateway

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicPricing names the per-million-token cost for one Anthropic
// model, used to compute CostUSD from the SDK's reported usage since the
// SDK itself only reports token counts.
type AnthropicPricing struct {
	CostInPerMTok  float64
	CostOutPerMTok float64
}

// AnthropicAdapter is the PromptAdapter for direct Anthropic API access
// (§4.B "Provider-neutral adaptation"; §1 "Specific LLM vendor clients
// are consumed via a provider-abstraction interface but not specified
// here" -- this is one concrete such client, reached only through the
// PromptAdapter interface, never called directly elsewhere).
type AnthropicAdapter struct {
	client  anthropic.Client
	pricing map[string]AnthropicPricing
}

// NewAnthropicAdapter constructs an adapter with the given API key and
// per-model pricing table (keyed by model ID).
func NewAnthropicAdapter(apiKey string, pricing map[string]AnthropicPricing) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		pricing: pricing,
	}
}

func (a *AnthropicAdapter) Provider() string { return "anthropic" }

// Call issues a Messages.New request, always prefixing the system block
// with the mandatory safety prefix ahead of the trusted system prompt
// (§4.B "always preserving a mandatory safety prefix").
func (a *AnthropicAdapter) Call(ctx context.Context, req ModelRequest) (ModelResult, error) {
	systemBlocks := []anthropic.TextBlockParam{
		{Text: req.SafetyPrefix},
		{Text: req.SystemPrompt},
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelID),
		MaxTokens: int64(req.MaxTokens),
		System:    systemBlocks,
		Messages:  msgs,
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ModelResult{}, fmt.Errorf("%w: anthropic: %w", ErrModelCallFailed, err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	inTok := int(msg.Usage.InputTokens)
	outTok := int(msg.Usage.OutputTokens)
	price := a.pricing[req.ModelID]
	cost := float64(inTok)/1_000_000*price.CostInPerMTok + float64(outTok)/1_000_000*price.CostOutPerMTok

	return ModelResult{
		Content:      content,
		InputTokens:  inTok,
		OutputTokens: outTok,
		CostUSD:      cost,
	}, nil
}
