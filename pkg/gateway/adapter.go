package gateway

import "context"

// ModelMessage is one turn of provider-neutral conversation, already
// evidence-wrapped and PII-redacted by the time it reaches an adapter.
type ModelMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// ModelRequest is what the gateway hands a PromptAdapter after steps 1-6
// of the input pipeline have run (§4.B).
type ModelRequest struct {
	ModelID          string
	SystemPrompt     string // trusted system instructions, always preserved
	SafetyPrefix     string // mandatory safety prefix, never omitted
	Messages         []ModelMessage
	MaxTokens        int
	RequireJSON      bool // JSON-output directive; AnthropicAdapter and BedrockAdapter do not read it
	ExtendedThinking bool // AnthropicAdapter and BedrockAdapter do not read it
}

// ModelResult is a provider call's raw result before gateway
// post-processing (deanonymize, output validation).
type ModelResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// PromptAdapter translates trusted system instructions plus the
// structured evidence block into one provider's message format, always
// preserving the mandatory safety prefix, and decodes that provider's
// response back into a ModelResult (§4.B "Provider-neutral adaptation").
// Provider-specific semantics live behind the adapter so the rest of the
// gateway never branches on provider. The AnthropicAdapter and
// BedrockAdapter in this package set no cache control and send no
// JSON-output or extended-thinking directive: RequireJSON and
// ExtendedThinking reach them but are not passed on to the provider.
type PromptAdapter interface {
	Provider() string
	Call(ctx context.Context, req ModelRequest) (ModelResult, error)
}
