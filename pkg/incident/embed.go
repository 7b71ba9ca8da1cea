package incident

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultEmbeddingModelID is the Titan text embedding model incident
// memory embeds with; EmbeddingDimensions must match the model's output
// width and the incidents collection's configured size.
const (
	DefaultEmbeddingModelID = "amazon.titan-embed-text-v2:0"
	EmbeddingDimensions     = 1024
	EmbeddingVersion        = "titan-v2"
)

// titanEmbedRequest and titanEmbedResponse are the Titan embedding wire
// shapes, hand-declared the same way pkg/gateway's bedrockAnthropicBody
// declares the Messages shape: bedrockruntime exposes raw InvokeModel
// bodies, not typed per-model structs.
type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// BedrockEmbedder embeds case text via a Titan model on AWS Bedrock,
// reusing the same bedrockruntime client the gateway's fallback adapter
// holds rather than introducing a second provider surface.
type BedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockEmbedder constructs an embedder over an already-configured
// bedrockruntime client. An empty modelID selects the default Titan
// model.
func NewBedrockEmbedder(client *bedrockruntime.Client, modelID string) *BedrockEmbedder {
	if modelID == "" {
		modelID = DefaultEmbeddingModelID
	}
	return &BedrockEmbedder{client: client, modelID: modelID}
}

// ModelID returns the embedding model identifier, the provenance value
// vector upserts must carry (§4.F).
func (e *BedrockEmbedder) ModelID() string { return e.modelID }

// Embed returns the embedding vector for text.
func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text, Dimensions: EmbeddingDimensions})
	if err != nil {
		return nil, fmt.Errorf("incident: marshal embed request: %w", err)
	}
	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("incident: invoke embedding model: %w", err)
	}
	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("incident: decode embed response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("incident: embedding model %s returned an empty vector", e.modelID)
	}
	return resp.Embedding, nil
}
