package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// PositionSource is the device geolocation capability.
type PositionSource interface {
	// Watch delivers fixes to fn until ctx is done or the source fails.
	// It returns nil when ctx ends the watch.
	Watch(ctx context.Context, fn func(domain.Fix)) error
	// Current requests one fresh fix, independent of any watch.
	Current(ctx context.Context) (domain.Fix, error)
}

// EventPublisher fans session snapshots out to observers.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, sessionID string, data []byte) error
}

// EventSubscriber receives session snapshots published by EventPublisher.
type EventSubscriber interface {
	SubscribeSessionEvents(ctx context.Context, sessionID string, handler func(data []byte)) (unsubscribe func(), err error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// DeviceReporter forwards client-reported fixes and failures to the
// PositionSource of a device.
type DeviceReporter interface {
	ReportFix(ctx context.Context, deviceID string, fix domain.Fix) error
	ReportError(ctx context.Context, deviceID string, err error) error
}
