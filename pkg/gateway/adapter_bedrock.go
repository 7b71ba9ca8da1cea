package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockPricing mirrors AnthropicPricing for models reached through AWS
// Bedrock instead of the direct Anthropic API -- a distinct provider for
// circuit-breaker and fallback purposes even when the underlying model
// family is the same (§4.C "per-provider" breaker state).
type BedrockPricing struct {
	CostInPerMTok  float64
	CostOutPerMTok float64
}

// bedrockAnthropicBody is the Anthropic-on-Bedrock Messages API wire
// shape, distinct from the direct API's SDK types because Bedrock wraps
// model invocation in its own InvokeModel envelope.
type bedrockAnthropicBody struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	System           string                 `json:"system,omitempty"`
	Messages         []bedrockMessage       `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockAdapter is the PromptAdapter for Anthropic models reached via
// AWS Bedrock, ALUSKORT's secondary-provider fallback target for tier-0
// and tier-1 (§4.C "FALLBACK_REGISTRY... tier-0 and tier-1 have a
// secondary-provider fallback").
type BedrockAdapter struct {
	client  *bedrockruntime.Client
	pricing map[string]BedrockPricing
}

// NewBedrockAdapter constructs an adapter over an already-configured
// bedrockruntime client (credentials resolved via aws-sdk-go-v2/config,
// §6 "provider credentials (per provider)").
func NewBedrockAdapter(client *bedrockruntime.Client, pricing map[string]BedrockPricing) *BedrockAdapter {
	return &BedrockAdapter{client: client, pricing: pricing}
}

func (a *BedrockAdapter) Provider() string { return "bedrock" }

// Call wraps the request in Bedrock's InvokeModel envelope, always
// prefixing the system field with the mandatory safety prefix (§4.B).
func (a *BedrockAdapter) Call(ctx context.Context, req ModelRequest) (ModelResult, error) {
	msgs := make([]bedrockMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, bedrockMessage{Role: m.Role, Content: m.Content})
	}

	body := bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        req.MaxTokens,
		System:           req.SafetyPrefix + "\n\n" + req.SystemPrompt,
		Messages:         msgs,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ModelResult{}, fmt.Errorf("%w: bedrock: marshal request: %w", ErrModelCallFailed, err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return ModelResult{}, fmt.Errorf("%w: bedrock: %w", ErrModelCallFailed, err)
	}

	var resp bedrockAnthropicResponse
	if err := json.NewDecoder(bytes.NewReader(out.Body)).Decode(&resp); err != nil {
		return ModelResult{}, fmt.Errorf("%w: bedrock: decode response: %w", ErrModelCallFailed, err)
	}

	var content string
	for _, c := range resp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	price := a.pricing[req.ModelID]
	cost := float64(resp.Usage.InputTokens)/1_000_000*price.CostInPerMTok +
		float64(resp.Usage.OutputTokens)/1_000_000*price.CostOutPerMTok

	return ModelResult{
		Content:      content,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      cost,
	}, nil
}
