package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// HandoffStore implements ports.HandoffStore in process memory.
type HandoffStore struct {
	mu     sync.Mutex
	target *domain.NavigationTarget
	view   *domain.SavedView
}

// NewHandoffStore creates an empty store.
func NewHandoffStore() *HandoffStore {
	return &HandoffStore{}
}

func (s *HandoffStore) PutTarget(_ context.Context, t domain.NavigationTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = &t
	return nil
}

func (s *HandoffStore) TakeTarget(_ context.Context) (*domain.NavigationTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.target
	s.target = nil
	return t, nil
}

func (s *HandoffStore) PutView(_ context.Context, v domain.SavedView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = &v
	return nil
}

func (s *HandoffStore) GetView(_ context.Context) (*domain.SavedView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return nil, nil
	}
	v := *s.view
	return &v, nil
}

func (s *HandoffStore) DeleteView(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = nil
	return nil
}
