package investigation

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

func TestRepository_Save_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	gs := New("inv-1", "alert-1", "tenant-1", false)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO investigations")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), gs)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ClaimPending_NoneAvailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	emptyRows := sqlmock.NewRows([]string{
		"investigation_id", "alert_id", "tenant_id", "state", "context", "decisions",
		"budget", "case_facts", "shadow_mode", "last_interaction_at", "claimed_by", "claimed_at", "created_at",
	})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT investigation_id, alert_id, tenant_id, state, context, decisions")).
		WillReturnRows(emptyRows)
	mock.ExpectCommit()

	gs, err := repo.ClaimPending(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, gs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ClaimPending_ClaimsOldestUnclaimed(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{
		"investigation_id", "alert_id", "tenant_id", "state", "context", "decisions",
		"budget", "case_facts", "shadow_mode", "last_interaction_at", "claimed_by", "claimed_at", "created_at",
	}).AddRow(
		"inv-1", "alert-1", "tenant-1", "enriching", []byte("{}"), []byte("{}"),
		[]byte("{}"), []byte("{}"), false, time.Now(), nil, nil, time.Now(),
	)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT investigation_id, alert_id, tenant_id, state, context, decisions")).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE investigations SET claimed_by")).
		WithArgs("worker-1", sqlmock.AnyArg(), "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gs, err := repo.ClaimPending(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, gs)
	assert.Equal(t, "inv-1", gs.InvestigationID)
	assert.Equal(t, StateEnriching, gs.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ReapOrphans(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE investigations SET claimed_by = NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"investigation_id"}).AddRow("inv-stale"))

	ids, err := repo.ReapOrphans(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-stale"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
