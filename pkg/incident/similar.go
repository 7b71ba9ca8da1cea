package incident

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aluskort/platform/pkg/store"
)

// Embedder turns case text into an embedding vector. The embedding model
// itself is an external collaborator reached through a provider SDK;
// BedrockEmbedder in this package is the shipped implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// vectorSearcher is the slice of store.Vector the searcher needs,
// narrowed so tests can substitute a fake without a live qdrant.
type vectorSearcher interface {
	SearchFiltered(ctx context.Context, collection string, queryVector []float32, tenantID string, limit uint64) ([]store.VectorMatch, error)
}

// Match is one retrieved prior incident with its ranking components.
type Match struct {
	Incident   *Incident
	Similarity float64
	Recency    float64
	Score      float64
}

// Searcher retrieves similar prior incidents for enrichment, ranking
// cosine similarity against recency so stale matches sink unless flagged
// rare-but-important. With no vector store or embedder wired it degrades
// to a recency-only ranking over the tenant's most recent incidents --
// fail-open, same as the IOC cache, never blocking an investigation on a
// missing retrieval backend.
type Searcher struct {
	Repo   *Repository
	Vector vectorSearcher // nil when no vector store is configured
	Embed  Embedder       // nil when no embedding provider is configured

	// Collection is the live incidents collection. targetCollection is
	// non-empty only while an embedding migration is in flight, enabling
	// the dual-read merge that prefers the target version (§4.F); it is
	// mutex-guarded because the migration admin surface flips it while
	// enrichment reads it.
	Collection string

	mu               sync.RWMutex
	targetCollection string

	Limit int
	Now   func() time.Time
}

// SetTargetCollection enables (non-empty) or disables (empty) the
// dual-read merge against a migration target collection.
func (s *Searcher) SetTargetCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetCollection = collection
}

// TargetCollection returns the current migration target, empty when no
// migration is in flight.
func (s *Searcher) TargetCollection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetCollection
}

// NewSearcher constructs a Searcher over the incidents collection with
// the default retrieval depth.
func NewSearcher(repo *Repository, vector *store.Vector, embed Embedder) *Searcher {
	s := &Searcher{
		Repo:       repo,
		Embed:      embed,
		Collection: store.CollectionIncidents,
		Limit:      5,
		Now:        func() time.Time { return time.Now().UTC() },
	}
	if vector != nil {
		s.Vector = vector
	}
	return s
}

// Similar returns up to Limit prior incidents ranked by
// similarity x recency, highest first.
func (s *Searcher) Similar(ctx context.Context, tenantID, query string) ([]Match, error) {
	if s.Vector == nil || s.Embed == nil {
		return s.recentOnly(ctx, tenantID)
	}

	vec, err := s.Embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("incident: embed query: %w", err)
	}

	hits, err := s.Vector.SearchFiltered(ctx, s.Collection, vec, tenantID, uint64(s.Limit))
	if err != nil {
		return nil, fmt.Errorf("incident: vector search: %w", err)
	}
	if target := s.TargetCollection(); target != "" {
		targetHits, err := s.Vector.SearchFiltered(ctx, target, vec, tenantID, uint64(s.Limit))
		if err != nil {
			return nil, fmt.Errorf("incident: vector search (target): %w", err)
		}
		hits = store.MergeDualRead(hits, targetHits)
	}

	ids := make([]string, 0, len(hits))
	similarity := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.DocID)
		similarity[h.DocID] = float64(h.Score)
	}
	incidents, err := s.Repo.ListByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	matches := make([]Match, 0, len(incidents))
	for _, in := range incidents {
		sim := similarity[in.IncidentID]
		rec := RecencyAt(in.ClosedAt, now, in.RareImportant)
		matches = append(matches, Match{Incident: in, Similarity: sim, Recency: rec, Score: sim * rec})
	}
	sortMatches(matches)
	return s.trim(matches), nil
}

// recentOnly is the no-vector fallback: the tenant's most recent
// incidents, recency as the whole score.
func (s *Searcher) recentOnly(ctx context.Context, tenantID string) ([]Match, error) {
	incidents, err := s.Repo.ListRecent(ctx, tenantID, s.Limit)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	matches := make([]Match, 0, len(incidents))
	for _, in := range incidents {
		rec := RecencyAt(in.ClosedAt, now, in.RareImportant)
		matches = append(matches, Match{Incident: in, Recency: rec, Score: rec})
	}
	sortMatches(matches)
	return s.trim(matches), nil
}

func (s *Searcher) trim(matches []Match) []Match {
	if s.Limit > 0 && len(matches) > s.Limit {
		return matches[:s.Limit]
	}
	return matches
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}
