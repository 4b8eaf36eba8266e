package orchestration

import (
	"context"
	"sync"
	"time"

	"weld/pkg/errors"
)

// MemoryStore keeps instances in a map. Used by unit tests and local
// runs without MongoDB; semantics mirror the Mongo store exactly.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
	}
}

func (s *MemoryStore) Create(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.BatchID]; ok {
		return errors.ErrConflict.WithDetail("batch_id", inst.BatchID)
	}

	s.instances[inst.BatchID] = inst.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, batchID string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[batchID]
	if !ok {
		return nil, errors.ErrNotFound.WithDetail("batch_id", batchID)
	}
	return inst.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[inst.BatchID]
	if !ok {
		return errors.ErrNotFound.WithDetail("batch_id", inst.BatchID)
	}
	if stored.Version != inst.Version {
		return errors.ErrConflict.
			WithDetail("batch_id", inst.BatchID).
			WithDetail("expected_version", inst.Version).
			WithDetail("stored_version", stored.Version).
			AsRetryable()
	}

	inst.Version++
	inst.LastUpdatedAt = time.Now()
	s.instances[inst.BatchID] = inst.Clone()
	return nil
}

func (s *MemoryStore) ListByPhase(ctx context.Context, phase Phase) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Instance
	for _, inst := range s.instances {
		if inst.Phase == phase {
			result = append(result, inst.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, phase Phase, olderThan time.Time) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Instance
	for _, inst := range s.instances {
		if inst.Phase == phase && inst.LastUpdatedAt.Before(olderThan) {
			result = append(result, inst.Clone())
		}
	}
	return result, nil
}
