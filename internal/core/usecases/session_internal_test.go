package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

type noPosts struct{}

func (noPosts) RecentPosts(context.Context, string) ([]domain.Post, error) { return nil, nil }

func (noPosts) SearchPosts(context.Context, string, int) ([]domain.Post, error) { return nil, nil }

// idlePositions never delivers a fix on its own.
type idlePositions struct{}

func (idlePositions) Watch(ctx context.Context, _ func(domain.Fix)) error {
	<-ctx.Done()
	return nil
}

func (idlePositions) Current(ctx context.Context) (domain.Fix, error) {
	<-ctx.Done()
	return domain.Fix{}, ctx.Err()
}

func newIdleSession(t *testing.T) *MapSession {
	t.Helper()
	cfg := DefaultSessionConfig()
	cfg.Feed.RefreshInterval = 0
	s := NewMapSession("s1", "u1", cfg, SessionDeps{Posts: noPosts{}, Positions: idlePositions{}})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func (s *MapSession) currentLocGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locGen
}

func TestSession_LocationCallbacksDroppedAfterUnmount(t *testing.T) {
	ctx := context.Background()
	s := newIdleSession(t)
	require.NoError(t, s.Mount(ctx))
	gen := s.currentLocGen()
	require.NoError(t, s.Unmount(ctx))

	s.onLocation(gen, domain.Coordinate{Lat: 9, Lng: 9})
	s.onLocationError(gen, domain.ErrLocationTimeout)

	snap := s.Snapshot()
	assert.Nil(t, snap.Location)
	assert.Empty(t, snap.Notice)
	assert.False(t, snap.Mounted)
}

func TestSession_LocationCallbacksOfOldMountIgnoredAfterRemount(t *testing.T) {
	ctx := context.Background()
	s := newIdleSession(t)
	require.NoError(t, s.Mount(ctx))
	old := s.currentLocGen()
	require.NoError(t, s.Unmount(ctx))
	require.NoError(t, s.Mount(ctx))

	s.onLocation(old, domain.Coordinate{Lat: 9, Lng: 9})
	assert.Nil(t, s.Snapshot().Location)

	here := domain.Coordinate{Lat: 43.1, Lng: 141.4}
	s.onLocation(s.currentLocGen(), here)
	snap := s.Snapshot()
	require.NotNil(t, snap.Location)
	assert.Equal(t, here, *snap.Location)
	assert.Equal(t, here, snap.Viewport.Center)
}
