package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	domain "github.com/bryanwahyu/automaton-intel/internal/domain/publication"
)

const schema = `
CREATE TABLE IF NOT EXISTS module_results (
  id            BIGINT AUTO_INCREMENT PRIMARY KEY,
  run_id        VARCHAR(64)  NOT NULL,
  module_path   VARCHAR(512) NOT NULL,
  module_name   VARCHAR(255) NOT NULL,
  category      VARCHAR(64)  NOT NULL,
  status        VARCHAR(32)  NOT NULL,
  module_url    TEXT,
  last_commit   DATETIME NULL,
  ticket_key    VARCHAR(64)  NOT NULL DEFAULT '',
  page_id       VARCHAR(64)  NOT NULL DEFAULT '',
  error         TEXT,
  analysis_json JSON NULL,
  created_at    DATETIME NOT NULL,
  INDEX idx_module_results_run (run_id),
  INDEX idx_module_results_created (created_at)
)`

const selectCols = `
SELECT id, run_id, module_path, module_name, category, status, module_url,
       last_commit, ticket_key, page_id, error, analysis_json, created_at
FROM module_results`

// ResultRepository menyimpan riwayat hasil per modul (audit, bukan dedup)
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Migrate creates the table when it does not exist yet.
func (r *ResultRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Ping dipakai health check
func (r *ResultRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save inserts one result row and sets res.ID.
func (r *ResultRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO module_results
  (run_id, module_path, module_name, category, status, module_url,
   last_commit, ticket_key, page_id, error, analysis_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);
`
	analysisJSON, err := encodeAnalysis(res.Analysis)
	if err != nil {
		return err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	m := res.Module
	out, err := r.db.ExecContext(ctx, q,
		string(res.RunID), m.Path, m.Name, stringOrDash(m.Category), stringOrDash(string(m.Status)), m.URL,
		nullTime(m.LastCommit), res.TicketKey, res.PageID, res.Error, analysisJSON, res.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = id
	return nil
}

// Latest returns the newest results across runs.
func (r *ResultRepository) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectCols+` ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// ListByRun returns every result of one run in insert order.
func (r *ResultRepository) ListByRun(ctx context.Context, runID domain.RunID) ([]*domain.Result, error) {
	rows, err := r.db.QueryContext(ctx, selectCols+` WHERE run_id=? ORDER BY id ASC;`, string(runID))
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]*domain.Result, error) {
	defer rows.Close()

	out := []*domain.Result{}
	for rows.Next() {
		var (
			res          domain.Result
			runID        string
			status       string
			url, errText sql.NullString
			lastCommit   sql.NullTime
			analysisJSON sql.NullString
		)
		if err := rows.Scan(
			&res.ID, &runID, &res.Module.Path, &res.Module.Name, &res.Module.Category, &status, &url,
			&lastCommit, &res.TicketKey, &res.PageID, &errText, &analysisJSON, &res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.RunID = domain.RunID(runID)
		res.Module.Status = modules.Status(status)
		res.Module.URL = url.String
		res.Module.LastCommit = lastCommit.Time
		res.Error = errText.String
		a, err := decodeAnalysis(analysisJSON)
		if err != nil {
			return nil, err
		}
		res.Analysis = a
		out = append(out, &res)
	}
	return out, rows.Err()
}
