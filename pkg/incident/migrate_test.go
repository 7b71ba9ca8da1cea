package incident

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluskort/platform/pkg/store"
)

type fakeUpserter struct {
	ensured []string
	upserts []store.VectorPoint
}

func (f *fakeUpserter) EnsureCollection(_ context.Context, collection string, _ int) error {
	f.ensured = append(f.ensured, collection)
	return nil
}

func (f *fakeUpserter) Upsert(_ context.Context, _ string, points []store.VectorPoint) error {
	f.upserts = append(f.upserts, points...)
	return nil
}

func expectListAllPages(mock sqlmock.Sqlmock) {
	page := sqlmock.NewRows(incidentCols)
	incidentRow(page, "inc-1", "t1", "Brute force", false, fixedNow())
	incidentRow(page, "inc-2", "t2", "Phishing", false, fixedNow())
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory WHERE incident_id > $1")).
		WillReturnRows(page)
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory WHERE incident_id > $1")).
		WillReturnRows(sqlmock.NewRows(incidentCols))
}

func TestMigration_RunReembedsEveryIncident(t *testing.T) {
	repo, mock := newMockRepo(t)
	expectListAllPages(mock)

	vec := &fakeUpserter{}
	m := &Migration{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		State:            store.NewEmbeddingMigrationState(),
		EmbeddingModelID: DefaultEmbeddingModelID,
		Dimensions:       EmbeddingDimensions,
	}

	migrated, skipped, err := m.Run(context.Background(), "incidents_v2", "titan-v2")
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)
	assert.Zero(t, skipped)
	assert.Equal(t, []string{"incidents_v2"}, vec.ensured)
	require.Len(t, vec.upserts, 2)
	assert.Equal(t, "titan-v2", vec.upserts[0].EmbeddingVersion)
	assert.Equal(t, "t1", vec.upserts[0].TenantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigration_RerunOverSamePointsIsNoOp(t *testing.T) {
	repo, mock := newMockRepo(t)
	expectListAllPages(mock)
	expectListAllPages(mock)

	vec := &fakeUpserter{}
	m := &Migration{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		State:      store.NewEmbeddingMigrationState(),
		Dimensions: EmbeddingDimensions,
	}

	_, _, err := m.Run(context.Background(), "incidents_v2", "titan-v2")
	require.NoError(t, err)

	migrated, skipped, err := m.Run(context.Background(), "incidents_v2", "titan-v2")
	require.NoError(t, err)
	assert.Zero(t, migrated)
	assert.Equal(t, 2, skipped)
	assert.Len(t, vec.upserts, 2, "second run must not re-upsert")
}

func TestMigration_SeededStateSkipsPersistedCompletions(t *testing.T) {
	repo, mock := newMockRepo(t)
	expectListAllPages(mock)

	state := store.NewEmbeddingMigrationState()
	state.Seed([]store.MigratedPoint{{DocID: "inc-1", TargetVersion: "titan-v2"}})

	vec := &fakeUpserter{}
	m := &Migration{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		State:      state,
		Dimensions: EmbeddingDimensions,
	}

	migrated, skipped, err := m.Run(context.Background(), "incidents_v2", "titan-v2")
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)
	assert.Equal(t, 1, skipped)
	require.Len(t, vec.upserts, 1)
	assert.Equal(t, "inc-2", vec.upserts[0].DocID)
}
