package incident

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluskort/platform/pkg/store"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sdb := sqlx.NewDb(db, "sqlmock")
	rel := store.NewRelationalFromDB(sdb, 5*time.Second)
	return NewRepository(rel), mock
}

var incidentCols = []string{
	"incident_id", "tenant_id", "title", "summary", "rule_family", "severity",
	"classification", "techniques", "playbook_ids", "rare_important", "closed_at",
}

func incidentRow(rows *sqlmock.Rows, id, tenant, title string, rare bool, closedAt time.Time) *sqlmock.Rows {
	return rows.AddRow(id, tenant, title, "", "auth", "high", "true_positive",
		[]byte(`["T1059"]`), []byte(`["pb-isolate"]`), rare, closedAt)
}

type fakeVector struct {
	byCollection map[string][]store.VectorMatch
	queried      []string
}

func (f *fakeVector) SearchFiltered(_ context.Context, collection string, _ []float32, _ string, _ uint64) ([]store.VectorMatch, error) {
	f.queried = append(f.queried, collection)
	return f.byCollection[collection], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func fixedNow() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

func TestSearcher_RanksBySimilarityTimesRecency(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := fixedNow()
	// inc-old is the closer vector match but a year stale; inc-new is a
	// weaker match closed yesterday and must outrank it.
	rows := sqlmock.NewRows(incidentCols)
	incidentRow(rows, "inc-old", "t1", "Old brute force", false, now.AddDate(-1, 0, 0))
	incidentRow(rows, "inc-new", "t1", "Fresh brute force", false, now.AddDate(0, 0, -1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory WHERE tenant_id = ? AND incident_id IN")).
		WillReturnRows(rows)

	vec := &fakeVector{byCollection: map[string][]store.VectorMatch{
		store.CollectionIncidents: {
			{DocID: "inc-old", Score: 0.95},
			{DocID: "inc-new", Score: 0.80},
		},
	}}
	s := &Searcher{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		Collection: store.CollectionIncidents, Limit: 5,
		Now: fixedNow,
	}

	matches, err := s.Similar(context.Background(), "t1", "brute force on host")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "inc-new", matches[0].Incident.IncidentID)
	assert.Equal(t, "inc-old", matches[1].Incident.IncidentID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearcher_RareImportantKeepsOldIncidentRetrievable(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := fixedNow()
	rows := sqlmock.NewRows(incidentCols)
	incidentRow(rows, "inc-rare", "t1", "Rare supply chain hit", true, now.AddDate(-3, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory WHERE tenant_id = ? AND incident_id IN")).
		WillReturnRows(rows)

	vec := &fakeVector{byCollection: map[string][]store.VectorMatch{
		store.CollectionIncidents: {{DocID: "inc-rare", Score: 0.9}},
	}}
	s := &Searcher{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		Collection: store.CollectionIncidents, Limit: 5,
		Now: fixedNow,
	}

	matches, err := s.Similar(context.Background(), "t1", "supply chain")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Recency, 0.1)
}

func TestSearcher_DualReadQueriesBothCollectionsDuringMigration(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := fixedNow()
	rows := sqlmock.NewRows(incidentCols)
	incidentRow(rows, "inc-1", "t1", "Credential stuffing", false, now.AddDate(0, 0, -2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory")).WillReturnRows(rows)

	// Same doc in both collections; the target's (higher) score must win.
	vec := &fakeVector{byCollection: map[string][]store.VectorMatch{
		"incidents":    {{DocID: "inc-1", Score: 0.5}},
		"incidents_v2": {{DocID: "inc-1", Score: 0.7}},
	}}
	s := &Searcher{
		Repo: repo, Vector: vec, Embed: fakeEmbedder{},
		Collection: "incidents", Limit: 5,
		Now: fixedNow,
	}
	s.SetTargetCollection("incidents_v2")

	matches, err := s.Similar(context.Background(), "t1", "credential stuffing")
	require.NoError(t, err)
	assert.Equal(t, []string{"incidents", "incidents_v2"}, vec.queried)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.7, matches[0].Similarity, 1e-9)
}

func TestSearcher_FallsBackToRecentWithoutVectorStore(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := fixedNow()
	rows := sqlmock.NewRows(incidentCols)
	incidentRow(rows, "inc-1", "t1", "Recent phishing", false, now.AddDate(0, 0, -1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM incident_memory WHERE tenant_id = $1")).
		WillReturnRows(rows)

	s := &Searcher{Repo: repo, Limit: 5, Now: fixedNow}

	matches, err := s.Similar(context.Background(), "t1", "phishing")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Similarity)
	assert.Equal(t, matches[0].Recency, matches[0].Score)
}

func TestRepository_SetRareImportant_UnknownIncident(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE incident_memory SET rare_important")).
		WithArgs(true, "t1", "inc-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRareImportant(context.Background(), "t1", "inc-missing", true)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO incident_memory")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &Incident{
		IncidentID: "inc-1", TenantID: "t1", Title: "Brute force", Severity: "high",
		Techniques: []string{"T1110"}, ClosedAt: fixedNow(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
