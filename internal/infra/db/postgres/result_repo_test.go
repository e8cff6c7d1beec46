package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	domain "github.com/bryanwahyu/automaton-intel/internal/domain/publication"
)

var created = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*ResultRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewResultRepository(db), mock
}

func TestSaveReturningID(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id")).
		WithArgs("run-9", "modules/post/bar.rb", "bar.rb", "post", "added", "", nil, "", "55", "", sqlmock.AnyArg(), created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))

	res := &domain.Result{
		RunID:     "run-9",
		Module:    modules.Module{Name: "bar.rb", Path: "modules/post/bar.rb", Status: modules.StatusAdded, Category: "post"},
		Analysis:  &analysis.Analysis{Summary: "s"},
		PageID:    "55",
		CreatedAt: created,
	}
	require.NoError(t, repo.Save(context.Background(), res))
	assert.Equal(t, int64(31), res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveError(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO module_results")).WillReturnError(errors.New("connection refused"))

	err := repo.Save(context.Background(), &domain.Result{RunID: "r", CreatedAt: created})
	assert.Error(t, err)
}

func TestListByRunPlaceholders(t *testing.T) {
	repo, mock := newRepo(t)
	cols := []string{"id", "run_id", "module_path", "module_name", "category", "status", "module_url",
		"last_commit", "ticket_key", "page_id", "error", "analysis_json", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id=$1 ORDER BY id ASC")).
		WithArgs("run-9").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			31, "run-9", "modules/post/bar.rb", "bar.rb", "post", "added", "u",
			created, "", "55", nil, []byte(`{"summary":"s","recommendations":[],"potential_indicators":[]}`), created))

	list, err := repo.ListByRun(context.Background(), "run-9")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s", list[0].Analysis.Summary)
	assert.Equal(t, "55", list[0].PageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1")).WithArgs(5).WillReturnError(errors.New("timeout"))

	_, err := repo.Latest(context.Background(), 5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
