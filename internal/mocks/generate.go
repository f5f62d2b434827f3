// Package mocks provides gomock implementations of the core ports for unit tests.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().Claim(gomock.Any(), "job-1").Return(int64(1), nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_store_mock.go github.com/target/mmk-jobqueue/internal/core JobStore
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/target/mmk-jobqueue/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=recovery_repository_mock.go github.com/target/mmk-jobqueue/internal/core RecoveryRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=limits_repository_mock.go github.com/target/mmk-jobqueue/internal/core LimitsRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/target/mmk-jobqueue/internal/core CacheRepository
