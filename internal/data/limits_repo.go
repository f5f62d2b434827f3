package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

// LimitsRepo reads and writes operator tunables in the job_limits table.
type LimitsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewLimitsRepo creates a LimitsRepo. A nil TimeProvider uses the system clock.
func NewLimitsRepo(db *sql.DB, tp TimeProvider) *LimitsRepo {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &LimitsRepo{DB: db, timeProvider: tp}
}

// GetInt returns the value stored under key, or ErrLimitNotFound.
func (r *LimitsRepo) GetInt(ctx context.Context, key string) (int64, error) {
	var v int64
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM job_limits WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLimitNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get limit %s: %w", key, err)
	}
	return v, nil
}

// Set upserts a tunable.
func (r *LimitsRepo) Set(ctx context.Context, key string, value int64) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.ValidationField("key", "limit key is required")
	}
	if value < 0 {
		return apperrors.ValidationField("value", "limit value must not be negative")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_limits (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`, key, value, r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("set limit %s: %w", key, err))
	}
	return nil
}

// List returns all tunables ordered by key.
func (r *LimitsRepo) List(ctx context.Context) ([]model.Limit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key, value, updated_at FROM job_limits ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var limits []model.Limit
	for rows.Next() {
		var l model.Limit
		if err := rows.Scan(&l.Key, &l.Value, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan limit: %w", err)
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}
