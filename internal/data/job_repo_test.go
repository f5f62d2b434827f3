package data

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/testutil"
)

func TestJobRepo_Insert(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("stores a queued job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			job, err := repo.Insert(ctx, testutil.EchoJobRequest("", "owner-1"))
			require.NoError(t, err)
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, model.JobStatusQueued, job.Status)
			assert.Equal(t, "owner-1", job.OwnerID)
			assert.Nil(t, job.UpdatedAt)
			assert.Nil(t, job.Result)
			assert.Nil(t, job.Error)
			assert.JSONEq(t, `{"owner_id":"owner-1","message":"hi"}`, string(job.Payload))
		})
	})

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			_, err := repo.Insert(ctx, testutil.EchoJobRequest("dup-1", "owner-1"))
			require.NoError(t, err)

			_, err = repo.Insert(ctx, testutil.EchoJobRequest("dup-1", "owner-1"))
			require.Error(t, err)
			assert.True(t, apperrors.IsConflict(err))
		})
	})

	t.Run("accepts any well-formed type", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			desc, err := repo.Insert(ctx, testutil.ProductDescriptionJobRequest("owner-2"))
			require.NoError(t, err)
			assert.Equal(t, model.JobTypeProductDescription, desc.Type)

			// No processor is needed to enqueue; the worker fails it later.
			ghost, err := repo.Insert(ctx, testutil.UnregisteredJobRequest("owner-2"))
			require.NoError(t, err)
			assert.Equal(t, model.JobType("ghost"), ghost.Type)
			assert.Equal(t, model.JobStatusQueued, ghost.Status)
		})
	})

	t.Run("invalid request is a validation error", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Insert(context.Background(), &model.CreateJobRequest{Type: model.JobTypeEcho})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	})
}

func TestJobRepo_SelectOldestQueued(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()

		job, err := repo.SelectOldestQueued(ctx)
		require.NoError(t, err)
		assert.Nil(t, job, "empty queue yields no job")

		base := testutil.TestTime()
		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "newer", Status: "queued", CreatedAt: base.Add(time.Minute)})
		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "older", Status: "queued", CreatedAt: base})
		testutil.InsertJobRow(t, db, testutil.JobRow{
			ID: "busy", Status: "processing", CreatedAt: base.Add(-time.Hour), UpdatedAt: testutil.TimePtr(base),
		})

		job, err = repo.SelectOldestQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, "older", job.ID)
	})
}

func TestJobRepo_ClaimAndFinalize(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("claim then finalize done", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			clock := NewFixedTimeProvider(testutil.TestTime())
			repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})
			ctx := context.Background()

			job, err := repo.Insert(ctx, testutil.EchoJobRequest("j1", "owner-1"))
			require.NoError(t, err)

			n, err := repo.Claim(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			claimed, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusProcessing, claimed.Status)
			require.NotNil(t, claimed.UpdatedAt)
			assert.True(t, claimed.UpdatedAt.Equal(testutil.TestTime()))

			n, err = repo.Claim(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), n, "second claim must lose")

			clock.AddTime(time.Second)
			require.NoError(t, repo.Finalize(ctx, model.FinalizeParams{
				ID: job.ID, Status: model.JobStatusDone, Result: job.Payload,
			}))

			done, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusDone, done.Status)
			assert.JSONEq(t, string(job.Payload), string(done.Result))
			assert.Nil(t, done.Error)
			require.NotNil(t, done.CompletedAt)
			assert.True(t, done.CompletedAt.Equal(testutil.TestTime().Add(time.Second)))
		})
	})

	t.Run("finalize failed records the error", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			testutil.InsertJobRow(t, db, testutil.JobRow{ID: "j2", Type: "ghost", Status: "processing"})
			require.NoError(t, repo.Finalize(ctx, model.FinalizeParams{
				ID: "j2", Status: model.JobStatusFailed, Error: `no processor registered for job type "ghost"`,
			}))

			failed, err := repo.GetByID(ctx, "j2")
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, failed.Status)
			require.NotNil(t, failed.Error)
			assert.Contains(t, *failed.Error, "no processor")
			assert.Nil(t, failed.Result)
		})
	})

	t.Run("finalize rejects non-terminal status and unknown id", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			err := repo.Finalize(ctx, model.FinalizeParams{ID: "x", Status: model.JobStatusQueued})
			require.ErrorIs(t, err, model.ErrInvalidTransition)

			err = repo.Finalize(ctx, model.FinalizeParams{ID: "missing", Status: model.JobStatusDone})
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	})
}

func TestJobRepo_ClaimRace(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		_, err := repo.Insert(ctx, testutil.EchoJobRequest("race-1", "owner-1"))
		require.NoError(t, err)

		const workers = 8
		var (
			mu     sync.Mutex
			counts []int64
		)
		fns := make([]func() error, workers)
		for i := range fns {
			fns[i] = func() error {
				n, err := repo.Claim(ctx, "race-1")
				mu.Lock()
				counts = append(counts, n)
				mu.Unlock()
				return err
			}
		}
		for _, err := range testutil.RunConcurrent(fns...) {
			require.NoError(t, err)
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		assert.Equal(t, int64(1), total, "exactly one claim must succeed")
	})
}

func TestJobRepo_RecoverStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	timeout := 1800 * time.Second

	t.Run("requeues stale and null updated_at rows only", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			now := time.Now().UTC()
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			testutil.InsertJobRow(t, db, testutil.JobRow{
				ID: "stale", Status: "processing", UpdatedAt: testutil.TimePtr(now.Add(-2 * timeout)),
			})
			testutil.InsertJobRow(t, db, testutil.JobRow{ID: "nullts", Status: "processing"})
			testutil.InsertJobRow(t, db, testutil.JobRow{
				ID: "fresh", Status: "processing", UpdatedAt: testutil.TimePtr(now.Add(-time.Minute)),
			})
			testutil.InsertJobRow(t, db, testutil.JobRow{
				ID: "old-done", Status: "done", UpdatedAt: testutil.TimePtr(now.Add(-3 * timeout)),
			})

			n, err := repo.RecoverStale(ctx, model.RecoverStaleParams{Cutoff: now.Add(-timeout)})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			states := map[string]string{}
			for _, s := range testutil.InspectJobStates(t, db) {
				states[s.ID] = s.Status
			}
			assert.Equal(t, "queued", states["stale"])
			assert.Equal(t, "queued", states["nullts"])
			assert.Equal(t, "processing", states["fresh"])
			assert.Equal(t, "done", states["old-done"])

			again, err := repo.RecoverStale(ctx, model.RecoverStaleParams{Cutoff: now.Add(-timeout)})
			require.NoError(t, err)
			assert.Zero(t, again, "recovered rows are not recovered twice")
		})
	})

	t.Run("fail mode marks abandoned rows failed", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			now := time.Now().UTC()
			repo := NewJobRepo(db, RepoConfig{})
			ctx := context.Background()

			testutil.InsertJobRow(t, db, testutil.JobRow{
				ID: "stale", Status: "processing", UpdatedAt: testutil.TimePtr(now.Add(-2 * timeout)),
			})

			n, err := repo.RecoverStale(ctx, model.RecoverStaleParams{
				Cutoff: now.Add(-timeout), Mode: model.RecoveryModeFail,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			job, err := repo.GetByID(ctx, "stale")
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, job.Status)
			require.NotNil(t, job.Error)
			assert.Equal(t, model.AbandonedJobError, *job.Error)
		})
	})
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})
		ctx := context.Background()

		for _, id := range []string{"a", "b"} {
			testutil.InsertJobRow(t, db, testutil.JobRow{ID: id, Status: "processing"})
			require.NoError(t, repo.Finalize(ctx, model.FinalizeParams{ID: id, Status: model.JobStatusDone}))
		}
		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "q", Status: "queued"})

		clock.AddTime(48 * time.Hour)
		n, err := repo.DeleteOldJobs(ctx, model.DeleteOldJobsParams{
			Status: model.JobStatusDone, MaxAge: 24 * time.Hour, BatchSize: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "batch size bounds each call")

		_, err = repo.DeleteOldJobs(ctx, model.DeleteOldJobsParams{
			Status: model.JobStatusQueued, MaxAge: time.Hour, BatchSize: 10,
		})
		require.Error(t, err, "non-terminal jobs are never deleted")

		assert.Len(t, testutil.InspectJobStates(t, db), 2)
	})
}

func TestJobRepo_ListAndStats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()
		base := testutil.TestTime()

		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "a1", OwnerID: "alice", Status: "queued", CreatedAt: base})
		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "a2", OwnerID: "alice", Status: "failed", CreatedAt: base.Add(time.Second)})
		testutil.InsertJobRow(t, db, testutil.JobRow{ID: "b1", OwnerID: "bob", Status: "queued", CreatedAt: base})

		jobs, err := repo.List(ctx, model.JobListOptions{OwnerID: "alice"})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "a2", jobs[0].ID, "newest first")

		queued := model.JobStatusQueued
		jobs, err = repo.List(ctx, model.JobListOptions{Status: &queued, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, jobs, 1)

		stats, err := repo.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobStats{Queued: 2, Failed: 1}, *stats)

		stats, err = repo.Stats(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, model.JobStats{Queued: 1}, *stats)
	})
}

func TestJobRepo_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- repo.WaitForNotification(ctx) }()

		// Retry the insert until the listener has subscribed and observed one.
		require.Eventually(t, func() bool {
			if _, err := repo.Insert(ctx, testutil.EchoJobRequest("", "owner-1")); err != nil {
				return false
			}
			select {
			case err := <-errCh:
				return err == nil
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 4*time.Second, 10*time.Millisecond)
	})
}
