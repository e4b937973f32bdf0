package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/repository"
)

var _ repository.BatchRunRepository = (*batchRunRepo)(nil)

// querier is the subset of *pgxpool.Pool the repo needs; pgx.Tx satisfies it too.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type batchRunRepo struct {
	db querier
}

func NewBatchRunRepo(pool *pgxpool.Pool) *batchRunRepo {
	return &batchRunRepo{db: pool}
}

func (r *batchRunRepo) Save(ctx context.Context, run *model.BatchRun) error {
	if r.db == nil {
		return domain.ErrInvalidExecContext
	}
	if run == nil || run.ID == "" {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO batch_runs (id, snippets, images, status, job_id, conversation_id, polls, records_pushed, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  job_id = EXCLUDED.job_id,
  conversation_id = EXCLUDED.conversation_id,
  polls = EXCLUDED.polls,
  records_pushed = EXCLUDED.records_pushed,
  error = EXCLUDED.error,
  finished_at = EXCLUDED.finished_at;`

	tag, err := r.db.Exec(ctx, q,
		run.ID, run.Snippets, run.Images, string(run.Status), run.JobID, run.ConversationID,
		run.Polls, run.RecordsPushed, run.Error, run.StartedAt, nullTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("save batch run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("save batch run %s: %d rows affected", run.ID, tag.RowsAffected())
	}
	return nil
}

func (r *batchRunRepo) ListRecent(ctx context.Context, limit int) ([]*model.BatchRun, error) {
	if r.db == nil {
		return nil, domain.ErrInvalidExecContext
	}
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	const q = `
SELECT id, snippets, images, status, job_id, conversation_id, polls, records_pushed, error, started_at, finished_at
FROM batch_runs
ORDER BY started_at DESC, id DESC
LIMIT $1;`

	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close()

	out := make([]*model.BatchRun, 0, limit)
	for rows.Next() {
		var (
			run      model.BatchRun
			status   string
			finished *time.Time
		)
		if err := rows.Scan(&run.ID, &run.Snippets, &run.Images, &status, &run.JobID, &run.ConversationID,
			&run.Polls, &run.RecordsPushed, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan batch run: %w", err)
		}
		run.Status = model.BatchRunStatus(status)
		if finished != nil {
			run.FinishedAt = *finished
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch runs: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
