package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Vector collections are keyed by domain (§6 "collections keyed by
// domain (incidents, techniques, playbooks, TI reports)").
const (
	CollectionIncidents  = "incidents"
	CollectionTechniques = "techniques"
	CollectionPlaybooks  = "playbooks"
	CollectionTIReports  = "ti_reports"
)

// VectorPoint is one upserted embedding plus its mandatory payload
// metadata (§4.F "upserts must carry {embedding_model_id,
// embedding_dimensions, embedding_version}"; §6 "every point carries
// {tenant_id, embedding_model_id, embedding_dimensions,
// embedding_version, doc_id} in its payload").
type VectorPoint struct {
	DocID               string
	TenantID            string
	Vector              []float32
	EmbeddingModelID    string
	EmbeddingDimensions int
	EmbeddingVersion    string
	Extra               map[string]any
}

// VectorMatch is one k-NN search result.
type VectorMatch struct {
	DocID    string
	Score    float32
	Payload  map[string]any
}

// Vector wraps a qdrant.Client, grounded in the qdrant/go-client
// dependency mined from the ashita-ai-akashi manifest in the retrieval
// pack's other_examples (§4.F "a vector store with filtered k-NN";
// §1 Non-goals "we do not specify... a vector index implementation" --
// only the client contract is owned here, the index itself is qdrant's).
type Vector struct {
	client *qdrant.Client
}

// NewVector wraps an already-connected qdrant client.
func NewVector(client *qdrant.Client) *Vector {
	return &Vector{client: client}
}

// EnsureCollection creates collection (HNSW, cosine distance) if it does
// not already exist (§4.F "a vector client (HNSW, cosine...)").
func (v *Vector) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	exists, err := v.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("store: collection exists check: %w", err)
	}
	if exists {
		return nil
	}
	return v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert writes points, each carrying the mandatory embedding-provenance
// payload fields.
func (v *Vector) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	pts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := map[string]any{
			"doc_id":               p.DocID,
			"tenant_id":            p.TenantID,
			"embedding_model_id":    p.EmbeddingModelID,
			"embedding_dimensions":  p.EmbeddingDimensions,
			"embedding_version":     p.EmbeddingVersion,
		}
		for k, val := range p.Extra {
			payload[k] = val
		}
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.DocID)).String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return nil
}

// SearchFiltered runs a k-NN query scoped by a mandatory tenant filter
// (§4.F "metadata filter mandatory" -- there is no unscoped search method
// on this type by design, preventing an accidental cross-tenant query).
func (v *Vector) SearchFiltered(ctx context.Context, collection string, queryVector []float32, tenantID string, limit uint64) ([]VectorMatch, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("tenant_id", tenantID),
		},
	}
	resp, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}

	out := make([]VectorMatch, 0, len(resp))
	for _, pt := range resp {
		payload := make(map[string]any, len(pt.Payload))
		for k, val := range pt.Payload {
			payload[k] = qdrantValueToInterface(val)
		}
		docID, _ := payload["doc_id"].(string)
		out = append(out, VectorMatch{DocID: docID, Score: pt.Score, Payload: payload})
	}
	return out, nil
}

func qdrantValueToInterface(val *qdrant.Value) any {
	switch v := val.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(v.StructValue.GetFields()))
		for k, fv := range v.StructValue.GetFields() {
			fields[k] = qdrantValueToInterface(fv)
		}
		return fields
	case *qdrant.Value_ListValue:
		values := make([]any, len(v.ListValue.GetValues()))
		for i, lv := range v.ListValue.GetValues() {
			values[i] = qdrantValueToInterface(lv)
		}
		return values
	default:
		return nil
	}
}

// MergeDualRead merges two result sets keyed by doc_id, preferring the
// target-version set's entry on a collision (§4.F "dual-read merge by
// doc_id preferring the target version"), used while an embedding
// migration is in flight and both the old and new collection must be
// queried.
func MergeDualRead(source, target []VectorMatch) []VectorMatch {
	byDoc := make(map[string]VectorMatch, len(source)+len(target))
	var order []string
	for _, m := range source {
		if _, ok := byDoc[m.DocID]; !ok {
			order = append(order, m.DocID)
		}
		byDoc[m.DocID] = m
	}
	for _, m := range target {
		if _, ok := byDoc[m.DocID]; !ok {
			order = append(order, m.DocID)
		}
		byDoc[m.DocID] = m // target wins on collision
	}
	out := make([]VectorMatch, 0, len(order))
	for _, id := range order {
		out = append(out, byDoc[id])
	}
	return out
}
