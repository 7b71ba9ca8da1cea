package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDualRead_TargetWinsOnCollision(t *testing.T) {
	source := []VectorMatch{
		{DocID: "doc-1", Score: 0.5, Payload: map[string]any{"embedding_version": "v1"}},
		{DocID: "doc-2", Score: 0.9, Payload: map[string]any{"embedding_version": "v1"}},
	}
	target := []VectorMatch{
		{DocID: "doc-1", Score: 0.6, Payload: map[string]any{"embedding_version": "v2"}},
	}

	merged := MergeDualRead(source, target)

	byDoc := make(map[string]VectorMatch, len(merged))
	for _, m := range merged {
		byDoc[m.DocID] = m
	}
	assert.Equal(t, "v2", byDoc["doc-1"].Payload["embedding_version"], "target set must win on doc_id collision")
	assert.Equal(t, "v1", byDoc["doc-2"].Payload["embedding_version"])
}

func TestMergeDualRead_PreservesFirstSeenOrder(t *testing.T) {
	source := []VectorMatch{{DocID: "doc-a"}, {DocID: "doc-b"}}
	target := []VectorMatch{{DocID: "doc-c"}, {DocID: "doc-a"}}

	merged := MergeDualRead(source, target)

	ids := make([]string, len(merged))
	for i, m := range merged {
		ids[i] = m.DocID
	}
	assert.Equal(t, []string{"doc-a", "doc-b", "doc-c"}, ids)
}
