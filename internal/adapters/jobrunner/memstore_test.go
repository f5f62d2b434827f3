package jobrunner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// memStore is an in-memory core.JobStore whose Claim is a compare-and-set on status.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	order  []string
	claims map[string]int
}

var _ core.JobStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*model.Job), claims: make(map[string]int)}
}

func (s *memStore) add(id, owner string, jobType model.JobType, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &model.Job{
		ID:        id,
		OwnerID:   owner,
		Type:      jobType,
		Status:    model.JobStatusQueued,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, id)
}

func (s *memStore) get(id string) model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) claimCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims[id]
}

func (s *memStore) SelectOldestQueued(context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if j := s.jobs[id]; j.Status == model.JobStatusQueued {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) Claim(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.JobStatusQueued {
		return 0, nil
	}
	now := time.Now()
	j.Status = model.JobStatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = &now
	s.claims[id]++
	return 1, nil
}

func (s *memStore) Finalize(_ context.Context, params model.FinalizeParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[params.ID]
	if !ok {
		return errJobMissing
	}
	now := time.Now()
	j.Status = params.Status
	j.Result = params.Result
	j.Error = nil
	if params.Error != "" {
		msg := params.Error
		j.Error = &msg
	}
	j.CompletedAt = &now
	j.UpdatedAt = &now
	return nil
}

func (s *memStore) Insert(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	s.add(req.ID, req.OwnerID, req.Type, string(req.Payload))
	j := s.get(req.ID)
	return &j, nil
}
