package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTaxonomyRepo(t *testing.T) (*TaxonomyRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTaxonomyRepo(NewRelationalFromDB(sqlx.NewDb(db, "sqlmock"), 5*time.Second)), mock
}

func TestTaxonomyRepo_ListTechniqueIDs(t *testing.T) {
	repo, mock := newMockTaxonomyRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT technique_id, version FROM taxonomy_ids")).
		WillReturnRows(sqlmock.NewRows([]string{"technique_id", "version"}).
			AddRow("T1059", "v16").
			AddRow("AML.T0010", "v17").
			AddRow("T1110", "v16"))

	ids, version, err := repo.ListTechniqueIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"T1059", "AML.T0010", "T1110"}, ids)
	assert.Equal(t, "v17", version, "highest version string wins")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaxonomyRepo_EmptyTable(t *testing.T) {
	repo, mock := newMockTaxonomyRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT technique_id, version FROM taxonomy_ids")).
		WillReturnRows(sqlmock.NewRows([]string{"technique_id", "version"}))

	ids, version, err := repo.ListTechniqueIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, version)
}
