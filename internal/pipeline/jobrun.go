package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/model"
)

// maxJobMessageLen bounds failure messages stored in the audit log.
const maxJobMessageLen = 500

// JobRuns is the append-only audit log of pipeline invocations. Rows are
// inserted once, after the invocation finishes, and never mutated.
type JobRuns struct {
	pool db.Pool
}

// NewJobRuns creates a job-run log backed by the given pool.
func NewJobRuns(pool db.Pool) *JobRuns {
	return &JobRuns{pool: pool}
}

// Record inserts one audit row. The message is truncated to fit the log.
func (j *JobRuns) Record(ctx context.Context, jobName, sourceKey string, status model.JobStatus, rowCount int64, message string, startedAt, finishedAt time.Time) error {
	if len(message) > maxJobMessageLen {
		message = message[:maxJobMessageLen]
	}
	_, err := j.pool.Exec(ctx,
		`INSERT INTO permit_data.etl_job_runs
		   (id, job_name, source_key, status, row_count, message, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), jobName, sourceKey, string(status), rowCount, message, startedAt, finishedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "jobrun: record %s", jobName)
	}
	return nil
}

// List returns the most recent job runs, newest first.
func (j *JobRuns) List(ctx context.Context, limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.pool.Query(ctx,
		`SELECT id, job_name, source_key, status, row_count, COALESCE(message, ''), started_at, finished_at
		 FROM permit_data.etl_job_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "jobrun: list")
	}
	defer rows.Close()

	var runs []model.JobRun
	for rows.Next() {
		var r model.JobRun
		var status string
		if err := rows.Scan(&r.ID, &r.JobName, &r.SourceKey, &status, &r.RowCount, &r.Message, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "jobrun: scan")
		}
		r.Status = model.JobStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
