package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	domain "github.com/bryanwahyu/automaton-intel/internal/domain/publication"
)

const schema = `
CREATE TABLE IF NOT EXISTS module_results (
  id            BIGSERIAL PRIMARY KEY,
  run_id        TEXT NOT NULL,
  module_path   TEXT NOT NULL,
  module_name   TEXT NOT NULL,
  category      TEXT NOT NULL,
  status        TEXT NOT NULL,
  module_url    TEXT,
  last_commit   TIMESTAMPTZ,
  ticket_key    TEXT NOT NULL DEFAULT '',
  page_id       TEXT NOT NULL DEFAULT '',
  error         TEXT,
  analysis_json JSONB,
  created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_module_results_run ON module_results (run_id);
CREATE INDEX IF NOT EXISTS idx_module_results_created ON module_results (created_at);`

const selectCols = `
SELECT id, run_id, module_path, module_name, category, status, module_url,
       last_commit, ticket_key, page_id, error, analysis_json, created_at
FROM module_results`

type ResultRepository struct{ db *sql.DB }

func NewResultRepository(db *sql.DB) *ResultRepository { return &ResultRepository{db: db} }

func (r *ResultRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *ResultRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Save inserts one result row; the id comes back through RETURNING.
func (r *ResultRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO module_results
  (run_id, module_path, module_name, category, status, module_url,
   last_commit, ticket_key, page_id, error, analysis_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id;`

	analysisJSON, err := encodeAnalysis(res.Analysis)
	if err != nil {
		return err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	m := res.Module
	return r.db.QueryRowContext(ctx, q,
		string(res.RunID), m.Path, m.Name, stringOrDash(m.Category), stringOrDash(string(m.Status)), m.URL,
		nullTime(m.LastCommit), res.TicketKey, res.PageID, res.Error, analysisJSON, res.CreatedAt,
	).Scan(&res.ID)
}

func (r *ResultRepository) Latest(ctx context.Context, limit int) ([]*domain.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectCols+` ORDER BY created_at DESC, id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

func (r *ResultRepository) ListByRun(ctx context.Context, runID domain.RunID) ([]*domain.Result, error) {
	rows, err := r.db.QueryContext(ctx, selectCols+` WHERE run_id=$1 ORDER BY id ASC;`, string(runID))
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
