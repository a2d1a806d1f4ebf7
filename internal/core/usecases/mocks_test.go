package usecases_test

import (
	"context"
	"sync"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

var errCacheMiss = ports.ErrCacheMiss

// --- Mock PostSource ---

type mockPostSource struct {
	recentFn func(ctx context.Context, identity string) ([]domain.Post, error)
	searchFn func(ctx context.Context, query string, limit int) ([]domain.Post, error)
}

func (m *mockPostSource) RecentPosts(ctx context.Context, identity string) ([]domain.Post, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, identity)
	}
	return nil, nil
}

func (m *mockPostSource) SearchPosts(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

// --- Fake PositionSource ---

type fakePositions struct {
	fixes     chan domain.Fix
	watchErr  error
	currentFn func(ctx context.Context) (domain.Fix, error)
}

func newFakePositions() *fakePositions {
	return &fakePositions{fixes: make(chan domain.Fix, 16)}
}

func (f *fakePositions) Watch(ctx context.Context, fn func(domain.Fix)) error {
	if f.watchErr != nil {
		return f.watchErr
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case fix := <-f.fixes:
			fn(fix)
		}
	}
}

func (f *fakePositions) Current(ctx context.Context) (domain.Fix, error) {
	if f.currentFn != nil {
		return f.currentFn(ctx)
	}
	<-ctx.Done()
	return domain.Fix{}, ctx.Err()
}

// --- In-memory HandoffStore ---

type memHandoff struct {
	mu     sync.Mutex
	target *domain.NavigationTarget
	view   *domain.SavedView
}

func (m *memHandoff) PutTarget(_ context.Context, t domain.NavigationTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = &t
	return nil
}

func (m *memHandoff) TakeTarget(_ context.Context) (*domain.NavigationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.target
	m.target = nil
	return t, nil
}

func (m *memHandoff) PutView(_ context.Context, v domain.SavedView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = &v
	return nil
}

func (m *memHandoff) GetView(_ context.Context) (*domain.SavedView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.view == nil {
		return nil, nil
	}
	v := *m.view
	return &v, nil
}

func (m *memHandoff) DeleteView(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = nil
	return nil
}

// --- Recording EventPublisher ---

type recordingEvents struct {
	mu     sync.Mutex
	events [][]byte
}

func (r *recordingEvents) PublishSessionEvent(_ context.Context, _ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- Fixed Locator ---

type locatorFunc func(ctx context.Context) (domain.Coordinate, error)

func (f locatorFunc) Current(ctx context.Context) (domain.Coordinate, error) { return f(ctx) }

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (c *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
