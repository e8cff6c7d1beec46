package publication

import (
	"context"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// TicketSink opens one issue per analysed module. It returns the issue key,
// or "" when creation failed; failures are logged by the sink.
type TicketSink interface {
	CreateTicket(ctx context.Context, m modules.Module, a *analysis.Analysis) string
}

// WikiSink publishes one child page per analysed module under a container
// page. It reports success; failures are logged by the sink.
type WikiSink interface {
	PublishAnalysis(ctx context.Context, m modules.Module, a *analysis.Analysis) (pageID string, ok bool)
}

// Repository port untuk riwayat hasil (audit saja, bukan dedup)
type Repository interface {
	Save(ctx context.Context, r *Result) error
	Latest(ctx context.Context, limit int) ([]*Result, error)
	ListByRun(ctx context.Context, runID RunID) ([]*Result, error)
}

// Archive port untuk penyimpanan artefak (MinIO)
type Archive interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
	PutText(ctx context.Context, key, text string) (string, error)
}
