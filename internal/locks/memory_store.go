package locks

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryStore держит блокировки в памяти процесса; подходит для одного экземпляра
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
}

func (s *MemoryStore) Acquire(_ context.Context, resource, token string, ttl time.Duration) (bool, error) {
	resource, token, err := normalize(resource, token)
	if err != nil {
		return false, err
	}
	ttl = normalizeTTL(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current, held := s.locks[resource]
	if held && now.Before(current.expiresAt) && current.token != token {
		return false, nil
	}
	s.locks[resource] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, resource, token string) (bool, error) {
	resource, token, err := normalize(resource, token)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, held := s.locks[resource]
	if !held || current.token != token {
		return false, nil
	}
	delete(s.locks, resource)
	return true, nil
}
