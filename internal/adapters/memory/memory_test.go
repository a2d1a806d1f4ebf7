package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

var (
	_ ports.HandoffStore    = (*HandoffStore)(nil)
	_ ports.PositionSource  = (*PushSource)(nil)
	_ ports.EventPublisher  = (*Broker)(nil)
	_ ports.EventSubscriber = (*Broker)(nil)
	_ ports.DeviceReporter  = (*Devices)(nil)
)

func TestHandoffStore_TakeEmptiesMailbox(t *testing.T) {
	s := NewHandoffStore()
	ctx := context.Background()
	require.NoError(t, s.PutTarget(ctx, domain.NavigationTarget{PostID: "p1"}))

	got, err := s.TakeTarget(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.PostID)

	got, err = s.TakeTarget(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandoffStore_View(t *testing.T) {
	s := NewHandoffStore()
	ctx := context.Background()

	v, err := s.GetView(ctx)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.PutView(ctx, domain.SavedView{Zoom: 9}))
	v, _ = s.GetView(ctx)
	require.NotNil(t, v)
	assert.Equal(t, 9, v.Zoom)

	require.NoError(t, s.DeleteView(ctx))
	v, _ = s.GetView(ctx)
	assert.Nil(t, v)
}

func TestPushSource_WatchAndCurrent(t *testing.T) {
	src := NewPushSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.Fix, 1)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- src.Watch(ctx, func(f domain.Fix) { got <- f })
	}()

	current := make(chan domain.Fix, 1)
	go func() {
		f, err := src.Current(ctx)
		if err == nil {
			current <- f
		}
	}()

	fix := domain.Fix{Coordinate: domain.Coordinate{Lat: 1, Lng: 2}}
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.watchers) == 1 && len(src.waiters) == 1
	}, time.Second, 5*time.Millisecond)
	src.Push(fix)

	assert.Equal(t, fix, <-got)
	assert.Equal(t, fix, <-current)
	last, ok := src.Last()
	assert.True(t, ok)
	assert.Equal(t, fix, last)

	cancel()
	assert.NoError(t, <-watchDone)
}

func TestPushSource_Fail(t *testing.T) {
	src := NewPushSource()
	done := make(chan error, 1)
	go func() {
		done <- src.Watch(context.Background(), func(domain.Fix) {})
	}()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	src.Fail(domain.ErrLocationPermissionDenied)
	assert.True(t, errors.Is(<-done, domain.ErrLocationPermissionDenied))
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	var mu sync.Mutex
	var received []string
	unsubscribe, err := b.SubscribeSessionEvents(ctx, "s1", func(data []byte) {
		mu.Lock()
		received = append(received, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, b.PublishSessionEvent(ctx, "s1", []byte("a")))
	require.NoError(t, b.PublishSessionEvent(ctx, "s2", []byte("other")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.NoError(t, b.PublishSessionEvent(ctx, "s1", []byte("late")))
	mu.Lock()
	assert.Equal(t, []string{"a"}, received)
	mu.Unlock()
}

func TestDevices_RoutesByDevice(t *testing.T) {
	devices := NewDevices()
	ctx := context.Background()

	got := make(chan domain.Fix, 1)
	done := make(chan error, 1)
	go func() {
		done <- devices.Source("phone-a").Watch(ctx, func(f domain.Fix) { got <- f })
	}()
	src := devices.source("phone-a")
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, devices.ReportFix(ctx, "phone-b", domain.Fix{Coordinate: domain.Coordinate{Lat: 1, Lng: 1}}))
	fix := domain.Fix{Coordinate: domain.Coordinate{Lat: 43.06, Lng: 141.35}, Accuracy: 5}
	require.NoError(t, devices.ReportFix(ctx, "phone-a", fix))
	assert.Equal(t, fix, <-got)

	require.NoError(t, devices.ReportError(ctx, "phone-a", domain.ErrLocationUnavailable))
	assert.ErrorIs(t, <-done, domain.ErrLocationUnavailable)

	last, ok := devices.source("phone-b").Last()
	require.True(t, ok)
	assert.Equal(t, 1.0, last.Lat)
}
