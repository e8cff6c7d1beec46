package publication

import (
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// RunID identifier satu kali jalan pipeline
type RunID string

// Result pairs a module with its analysis (or the error that stopped it) and
// what the sinks produced for it.
type Result struct {
	ID        int64              `json:"id,omitempty"`
	RunID     RunID              `json:"run_id"`
	Module    modules.Module     `json:"module"`
	Analysis  *analysis.Analysis `json:"analysis,omitempty"`
	Error     string             `json:"error,omitempty"`
	TicketKey string             `json:"ticket_key,omitempty"`
	PageID    string             `json:"page_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Published reports whether at least one sink accepted the result.
func (r *Result) Published() bool { return r.TicketKey != "" || r.PageID != "" }

// Run summarises one pipeline execution.
type Run struct {
	ID         RunID     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Found      int       `json:"found"`
	Analyzed   int       `json:"analyzed"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
}
