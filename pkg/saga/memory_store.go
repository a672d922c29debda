package saga

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store, used by tests and single-process runs
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]*Instance)}
}

func (s *MemoryStore) Save(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[instance.ID]; exists {
		return ErrDuplicateInstance
	}
	s.instances[instance.ID] = instance.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instance.ID]; !ok {
		return ErrInstanceNotFound
	}
	s.instances[instance.ID] = instance.clone()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Instance
	for _, inst := range s.instances {
		if inst.Status == status {
			out = append(out, inst.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
