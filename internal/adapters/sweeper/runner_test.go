package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/mocks"
)

func TestNewRunner_RequiresStorage(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunner_RunSweepsUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecoveryRepository(ctrl)

	swept := make(chan struct{}, 1)
	repo.EXPECT().RecoverStale(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p model.RecoverStaleParams) (int64, error) {
			assert.Equal(t, model.RecoveryModeRequeue, p.Mode)
			select {
			case swept <- struct{}{}:
			default:
			}
			return 0, nil
		}).
		AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	cfg := config.SweeperConfig{Interval: 10 * time.Second, BatchSize: 10}
	cfg.Sanitize()
	r, err := NewRunner(RunnerOptions{Repo: repo, Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, r.Service())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// The first sweep runs after up to 10% of the interval of jitter.
	select {
	case <-swept:
	case <-time.After(3 * time.Second):
		t.Fatal("no sweep ran")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
