package store

import (
	"context"
	"fmt"
	"sync"
)

// EmbeddingMigrationState tracks which doc_ids have already been
// re-embedded into a target collection/version, making re-runs over the
// same points a no-op (§8 law "Re-running the embedding migration over
// the same points is a no-op after first completion (idempotent)").
// Persisted state lives in the "embedding migration state" relational
// table named in §6; this in-memory index is the fast-path check a
// migration worker consults before doing the (expensive) re-embed work.
type EmbeddingMigrationState struct {
	mu        sync.Mutex
	completed map[string]bool // doc_id+target_version -> done
}

// NewEmbeddingMigrationState constructs empty tracking state.
func NewEmbeddingMigrationState() *EmbeddingMigrationState {
	return &EmbeddingMigrationState{completed: make(map[string]bool)}
}

func migrationKey(docID, targetVersion string) string {
	return docID + "@" + targetVersion
}

// AlreadyMigrated reports whether docID has already been migrated to
// targetVersion.
func (s *EmbeddingMigrationState) AlreadyMigrated(docID, targetVersion string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[migrationKey(docID, targetVersion)]
}

// MarkMigrated records that docID has been migrated to targetVersion.
func (s *EmbeddingMigrationState) MarkMigrated(docID, targetVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[migrationKey(docID, targetVersion)] = true
}

// MigratedPoint is one persisted (doc_id, target_version) completion row.
type MigratedPoint struct {
	DocID         string `db:"doc_id"`
	TargetVersion string `db:"target_version"`
}

// Seed preloads completed (doc_id, target_version) pairs, typically the
// contents of the embedding_migration_state table at startup, so a
// resumed migration stays a no-op over points an earlier run finished.
func (s *EmbeddingMigrationState) Seed(points []MigratedPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.completed[migrationKey(p.DocID, p.TargetVersion)] = true
	}
}

// MigratePoint re-embeds and upserts one point into target only if it
// hasn't already been migrated to targetVersion, returning whether work
// was actually done (false means the call was a no-op).
func (s *EmbeddingMigrationState) MigratePoint(docID, targetVersion string, doMigrate func() error) (migrated bool, err error) {
	if s.AlreadyMigrated(docID, targetVersion) {
		return false, nil
	}
	if err := doMigrate(); err != nil {
		return false, err
	}
	s.MarkMigrated(docID, targetVersion)
	return true, nil
}

// EmbeddingMigrationRepo persists migration completions to the
// embedding_migration_state table so a restarted worker resumes instead
// of re-embedding the whole corpus. Marks are fail-open at the caller:
// losing a mark costs one redundant re-embed on the next run, never
// correctness, since the vector upsert itself is idempotent by doc_id.
type EmbeddingMigrationRepo struct {
	rel *Relational
}

// NewEmbeddingMigrationRepo wraps a Relational for migration-state rows.
func NewEmbeddingMigrationRepo(rel *Relational) *EmbeddingMigrationRepo {
	return &EmbeddingMigrationRepo{rel: rel}
}

// LoadCompleted returns every persisted completion pair, the seed for
// EmbeddingMigrationState at startup.
func (r *EmbeddingMigrationRepo) LoadCompleted(ctx context.Context) ([]MigratedPoint, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var rows []MigratedPoint
	if err := r.rel.DB().SelectContext(queryCtx, &rows,
		`SELECT doc_id, target_version FROM embedding_migration_state`); err != nil {
		return nil, fmt.Errorf("store: load migration state: %w", err)
	}
	return rows, nil
}

// Mark records one completed (doc_id, target_version) pair; re-marking
// an existing pair is a no-op.
func (r *EmbeddingMigrationRepo) Mark(ctx context.Context, docID, targetVersion string) error {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	_, err := r.rel.DB().ExecContext(queryCtx, `
		INSERT INTO embedding_migration_state (doc_id, target_version)
		VALUES ($1, $2)
		ON CONFLICT (doc_id, target_version) DO NOTHING`, docID, targetVersion)
	if err != nil {
		return fmt.Errorf("store: mark migrated: %w", err)
	}
	return nil
}
