package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/indent"
)

// IndentCloseSweepJob re-runs the closure gate for vendor indents that are
// paid but whose parent indent is still open. Deliveries that land after the
// last payment would otherwise leave the indent IN_PROGRESS forever.
type IndentCloseSweepJob struct {
	service *indent.Service
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// NewIndentCloseSweepJob constructs the sweep job.
func NewIndentCloseSweepJob(service *indent.Service, pool *pgxpool.Pool, logger *slog.Logger) *IndentCloseSweepJob {
	return &IndentCloseSweepJob{service: service, pool: pool, logger: logger}
}

// Handle processes TaskTypeIndentCloseSweep tasks.
func (j *IndentCloseSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IndentCloseSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	candidates := []string{payload.VendorIndentID}
	if payload.VendorIndentID == "" {
		var err error
		candidates, err = j.openCandidates(ctx)
		if err != nil {
			return err
		}
	}

	var closed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range candidates {
		id := id
		g.Go(func() error {
			done, err := j.service.CheckAndCloseIndent(gctx, id)
			if err != nil {
				// One stuck indent must not abort the sweep.
				j.logger.Warn("closure gate", slog.String("vendor_indent_id", id), slog.Any("error", err))
				return nil
			}
			if done {
				closed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.logger.Info("indent close sweep finished",
		slog.Int("candidates", len(candidates)),
		slog.Int64("closed", closed.Load()))
	return nil
}

// openCandidates returns one paid vendor indent per still-open indent; the
// gate re-reads all siblings anyway.
func (j *IndentCloseSweepJob) openCandidates(ctx context.Context) ([]string, error) {
	rows, err := j.pool.Query(ctx, `SELECT DISTINCT ON (vi.indent_id) vi.id
FROM vendor_indents vi
JOIN indents i ON i.id = vi.indent_id
WHERE vi.unified_status = 'PAID' AND i.unified_status = 'IN_PROGRESS'
ORDER BY vi.indent_id, vi.created_at`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list sweep candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("jobs: scan sweep candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterate sweep candidates: %w", err)
	}
	return ids, nil
}
