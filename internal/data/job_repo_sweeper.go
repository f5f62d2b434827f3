package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-jobqueue/internal/data/pgxutil"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// Advisory lock namespace for sweeper retention. Major key 2000 is reserved for the job queue.
var (
	sweeperDeleteLock = pgxutil.LockKey{Major: 2000, Minor: 1}
)

// RecoverStale returns processing jobs whose updated_at is older than the cutoff (or missing)
// to queued, or marks them failed when the mode is fail. It is a single bulk update and
// returns the number of rows changed.
func (r *JobRepo) RecoverStale(ctx context.Context, params model.RecoverStaleParams) (int64, error) {
	if params.Cutoff.IsZero() {
		return 0, errors.New("cutoff is required")
	}
	mode := params.Mode
	if mode == "" {
		mode = model.RecoveryModeRequeue
	}

	now := r.now()
	var (
		res sql.Result
		err error
	)
	switch mode {
	case model.RecoveryModeRequeue:
		res, err = r.DB.ExecContext(ctx, `
			WITH recovered AS (
				UPDATE jobs
				SET status = 'queued',
				    updated_at = $2
				WHERE status = 'processing'
				  AND (updated_at < $1 OR updated_at IS NULL)
				RETURNING id
			)
			SELECT pg_notify($3::text, id) FROM recovered
		`, params.Cutoff.UTC(), now, JobQueuedChannel)
	case model.RecoveryModeFail:
		res, err = r.DB.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'failed',
			    error = $3,
			    result = NULL,
			    completed_at = $2,
			    updated_at = $2
			WHERE status = 'processing'
			  AND (updated_at < $1 OR updated_at IS NULL)
		`, params.Cutoff.UTC(), now, model.AbandonedJobError)
	default:
		return 0, fmt.Errorf("unknown recovery mode %q", mode)
	}
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteOldJobs deletes terminal jobs with the given status whose completed_at is older than MaxAge.
// At most BatchSize rows are removed per call. Concurrent sweepers skip the batch rather than wait.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params model.DeleteOldJobsParams) (int64, error) {
	if !params.Status.IsTerminal() {
		return 0, fmt.Errorf("invalid job status for deletion: %s", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var deleted int64
	_, err := pgxutil.WithLockedSQLTx(ctx, r.DB, sweeperDeleteLock, func(tx *sql.Tx) error {
		cutoff := r.now().Add(-params.MaxAge)
		res, err := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = $1
				  AND completed_at < $2
				ORDER BY completed_at
				LIMIT $3
			)
		`, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old jobs: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
