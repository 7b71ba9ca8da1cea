package audit

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

func TestRepository_EnsureMonthPartition_IssuesRangeDDL(t *testing.T) {
	repo, mock := newMockRepo(t)
	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_records_2026_01 PARTITION OF audit_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureMonthPartition(context.Background(), monthStart))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DropMonthPartition_DetachesAndDrops(t *testing.T) {
	repo, mock := newMockRepo(t)
	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1) IS NOT NULL")).
		WithArgs("audit_records_2026_01").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE audit_records DETACH PARTITION audit_records_2026_01")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE audit_records_2026_01")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	dropped, err := repo.DropMonthPartition(context.Background(), monthStart)
	require.NoError(t, err)
	assert.True(t, dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DropMonthPartition_NoPartitionIsNotAnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1) IS NOT NULL")).
		WithArgs("audit_records_2026_01").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	dropped, err := repo.DropMonthPartition(context.Background(), monthStart)
	require.NoError(t, err)
	assert.False(t, dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DropMonthPartition_PropagatesDDLError(t *testing.T) {
	repo, mock := newMockRepo(t)
	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1) IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE audit_records DETACH PARTITION")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.DropMonthPartition(context.Background(), monthStart)
	assert.Error(t, err)
}

func TestRepository_ListTenants_ReturnsSortedTenantIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"tenant_id"}).AddRow("acme").AddRow("globex")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT tenant_id FROM audit_chain_heads")).WillReturnRows(rows)

	tenants, err := repo.ListTenants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, tenants)
}

func TestRepository_ListRecords_RequiresTenantID(t *testing.T) {
	repo, _ := newMockRepo(t)
	_, err := repo.ListRecords(context.Background(), Filter{})
	assert.Error(t, err)
}
