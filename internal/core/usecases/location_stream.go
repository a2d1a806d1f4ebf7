package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
)

// LocationStreamConfig tunes fix acceptance.
type LocationStreamConfig struct {
	// Timeout is how long a subscription may go without an accepted fix
	// before ErrLocationTimeout is reported. Watching continues afterwards.
	Timeout time.Duration
	// MaxAccuracy drops fixes whose reported accuracy radius exceeds it.
	// Zero disables the filter.
	MaxAccuracy float64
}

// DefaultLocationStreamConfig mirrors the high-accuracy watch settings.
func DefaultLocationStreamConfig() LocationStreamConfig {
	return LocationStreamConfig{Timeout: 10 * time.Second, MaxAccuracy: 100}
}

// LocationStream wraps a PositionSource into a single-consumer subscription
// of coordinates with a fixed failure taxonomy.
type LocationStream struct {
	source ports.PositionSource
	cfg    LocationStreamConfig
	log    *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewLocationStream creates a LocationStream. A nil source behaves as a
// device without geolocation.
func NewLocationStream(source ports.PositionSource, cfg LocationStreamConfig, log *slog.Logger) *LocationStream {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLocationStreamConfig().Timeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocationStream{source: source, cfg: cfg, log: log}
}

type locationSubscription struct {
	closed   atomic.Bool
	onUpdate func(domain.Coordinate)
	onError  func(error)
}

func (s *locationSubscription) update(c domain.Coordinate) {
	if s.closed.Load() || s.onUpdate == nil {
		return
	}
	s.onUpdate(c)
}

func (s *locationSubscription) fail(err error) {
	if s.closed.Load() || s.onError == nil {
		return
	}
	s.onError(err)
}

// Subscribe starts delivering coordinates to onUpdate and failures to
// onError. Callbacks run on a stream goroutine and may fire before
// Subscribe returns. The returned function stops the subscription and is
// safe to call more than once.
func (l *LocationStream) Subscribe(onUpdate func(domain.Coordinate), onError func(error)) (func(), error) {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return nil, domain.ErrAlreadySubscribed
	}
	l.active = true
	l.mu.Unlock()
	metrics.ActiveLocationSubscriptions.Inc()

	sub := &locationSubscription{onUpdate: onUpdate, onError: onError}
	ctx, cancel := context.WithCancel(context.Background())
	go l.watch(ctx, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.closed.Store(true)
			cancel()
			l.mu.Lock()
			l.active = false
			l.mu.Unlock()
			metrics.ActiveLocationSubscriptions.Dec()
		})
	}, nil
}

func (l *LocationStream) watch(ctx context.Context, sub *locationSubscription) {
	if l.source == nil {
		metrics.LocationUpdates.WithLabelValues("error").Inc()
		sub.fail(domain.ErrLocationUnavailable)
		return
	}

	watchdog := time.AfterFunc(l.cfg.Timeout, func() {
		metrics.LocationUpdates.WithLabelValues("error").Inc()
		sub.fail(domain.ErrLocationTimeout)
	})
	defer watchdog.Stop()

	err := l.source.Watch(ctx, func(fix domain.Fix) {
		if !l.accept(fix) {
			return
		}
		watchdog.Reset(l.cfg.Timeout)
		sub.update(fix.Coordinate)
	})
	if err != nil && ctx.Err() == nil {
		metrics.LocationUpdates.WithLabelValues("error").Inc()
		l.log.Warn("location watch ended", "error", err)
		sub.fail(classifyLocationError(err))
	}
}

func (l *LocationStream) accept(fix domain.Fix) bool {
	if !fix.Valid() {
		metrics.LocationUpdates.WithLabelValues("dropped").Inc()
		return false
	}
	if l.cfg.MaxAccuracy > 0 && fix.Accuracy > l.cfg.MaxAccuracy {
		metrics.LocationUpdates.WithLabelValues("dropped").Inc()
		l.log.Debug("dropping low accuracy fix", "accuracy", fix.Accuracy, "max", l.cfg.MaxAccuracy)
		return false
	}
	metrics.LocationUpdates.WithLabelValues("accepted").Inc()
	return true
}

// Current reads one fresh coordinate outside of any subscription.
func (l *LocationStream) Current(ctx context.Context) (domain.Coordinate, error) {
	if l.source == nil {
		return domain.Coordinate{}, domain.ErrLocationUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	fix, err := l.source.Current(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return domain.Coordinate{}, domain.ErrLocationTimeout
		}
		if errors.Is(err, context.Canceled) {
			return domain.Coordinate{}, err
		}
		return domain.Coordinate{}, classifyLocationError(err)
	}
	if !fix.Valid() {
		return domain.Coordinate{}, domain.ErrLocationUnavailable
	}
	return fix.Coordinate, nil
}

// Active reports whether a subscription is live.
func (l *LocationStream) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func classifyLocationError(err error) error {
	if domain.IsLocationError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrLocationTimeout
	}
	return fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
}
