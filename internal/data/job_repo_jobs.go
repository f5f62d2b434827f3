package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/mmk-jobqueue/internal/data/pgxutil"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Insert stores a new queued job and notifies listeners in the same transaction.
func (r *JobRepo) Insert(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				INSERT INTO jobs (id, owner_id, type, status, payload, created_at)
				VALUES ($1, $2, $3, 'queued', $4, $5)
				RETURNING `+jobColumns,
				id, req.OwnerID, req.Type, []byte(req.Payload), r.now(),
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			j, collectErr := collectJobFromRows(rows)
			rows.Close()
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}

			if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, JobQueuedChannel, j.ID); err != nil {
				return fmt.Errorf("send job notification: %w", err)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// SelectOldestQueued returns the oldest queued job, or nil when the queue is empty.
// The row is not locked; Claim decides ownership.
func (r *JobRepo) SelectOldestQueued(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select oldest queued job: %w", err)
	}
	return job, nil
}

// Claim moves a job from queued to processing. It returns the number of rows changed;
// 0 means another worker claimed it first or the job is no longer queued.
func (r *JobRepo) Claim(ctx context.Context, id string) (int64, error) {
	if id == "" {
		return 0, ErrJobIDRequired
	}
	now := r.now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'processing',
		    started_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'queued'
	`, id, now)
	if err != nil {
		return 0, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim rows affected: %w", err)
	}
	return n, nil
}

// Finalize writes a terminal status. The write is unconditional on the current status:
// the claim already established ownership.
func (r *JobRepo) Finalize(ctx context.Context, params model.FinalizeParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	now := r.now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    result = $3,
		    error = $4,
		    completed_at = $5,
		    updated_at = $5
		WHERE id = $1
	`, params.ID, params.Status, nullableJSON(params.Result), nullableString(params.Error), now)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("finalize job: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, filtered by the given options.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	var (
		where []string
		args  []any
	)
	addFilter := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if opts.OwnerID != "" {
		addFilter("owner_id = $%d", opts.OwnerID)
	}
	if opts.Status != nil {
		addFilter("status = $%d", string(*opts.Status))
	}
	if opts.Type != nil {
		addFilter("type = $%d", string(*opts.Type))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	var sb strings.Builder
	sb.WriteString("SELECT " + jobColumns + " FROM jobs")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		jobs, err = collectJobsFromRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns job counts per status, optionally for a single owner.
func (r *JobRepo) Stats(ctx context.Context, ownerID string) (*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM jobs
		WHERE ($1 = '' OR owner_id = $1)
		GROUP BY status
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &model.JobStats{}
	for rows.Next() {
		var (
			status model.JobStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats.Add(status, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job stats rows: %w", err)
	}
	return stats, nil
}

// WaitForNotification blocks until a job is queued or ctx is done.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	quoted := pgx.Identifier{JobQueuedChannel}.Sanitize()
	if _, err := conn.ExecContext(ctx, "LISTEN "+quoted); err != nil {
		return fmt.Errorf("listen %s: %w", JobQueuedChannel, err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
