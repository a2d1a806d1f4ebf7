package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
	"github.com/samirrijal/discoverymap/internal/pkg/telemetry"
)

// sharedFetchTimeout bounds a remote read that several sessions may wait on.
const sharedFetchTimeout = 30 * time.Second

// FeedEngineConfig tunes feed resolution.
type FeedEngineConfig struct {
	// RefreshInterval re-resolves the active key in feed mode. Zero disables it.
	RefreshInterval time.Duration
	// SearchLimit caps remote search results.
	SearchLimit int
	// CacheTTL is how long raw remote results stay in the shared cache.
	// Zero disables the shared cache.
	CacheTTL time.Duration
}

// DefaultFeedEngineConfig returns the stock feed settings.
func DefaultFeedEngineConfig() FeedEngineConfig {
	return FeedEngineConfig{RefreshInterval: 30 * time.Second, SearchLimit: 12, CacheTTL: 15 * time.Second}
}

// FeedQueryEngine resolves the active FeedQueryKey into a FeedState.
// Only the last issued key may publish a result; responses for
// superseded keys are dropped.
type FeedQueryEngine struct {
	source ports.PostSource
	cache  ports.CacheService
	cfg    FeedEngineConfig
	log    *slog.Logger
	tracer trace.Tracer

	// flights joins identical remote reads, across sessions when shared.
	flights *singleflight.Group

	baseCtx  context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	key      domain.FeedQueryKey
	hasKey   bool
	token    uint64
	cancel   context.CancelFunc
	raw      map[string][]domain.Post
	state    domain.FeedState
	origin   *domain.Coordinate
	onChange func()
	closed   bool
}

// NewFeedQueryEngine creates an idle engine. cache may be nil.
func NewFeedQueryEngine(source ports.PostSource, cache ports.CacheService, cfg FeedEngineConfig, log *slog.Logger) *FeedQueryEngine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultFeedEngineConfig().SearchLimit
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FeedQueryEngine{
		source:   source,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		tracer:   telemetry.Tracer(),
		flights:  new(singleflight.Group),
		baseCtx:  ctx,
		stopBase: cancel,
		raw:      make(map[string][]domain.Post),
		state:    domain.FeedState{Status: domain.FeedIdle},
	}
}

// ShareFlights makes the engine join remote reads with every other engine
// holding g. Call it before the first SetKey.
func (e *FeedQueryEngine) ShareFlights(g *singleflight.Group) {
	if g == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flights = g
}

// OnChange registers fn to be called when an asynchronous resolution
// lands. fn runs outside the engine lock and should re-read State.
func (e *FeedQueryEngine) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// Start runs the periodic refresh until Close.
func (e *FeedQueryEngine) Start() {
	if e.cfg.RefreshInterval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.baseCtx.Done():
				return
			case <-ticker.C:
				e.Refresh()
			}
		}
	}()
}

// Close cancels in-flight work and waits for engine goroutines.
func (e *FeedQueryEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
	e.stopBase()
	e.wg.Wait()
}

// SetKey makes key active. An equal key is a no-op; any other key
// cancels the in-flight resolution and starts a new one.
func (e *FeedQueryEngine) SetKey(key domain.FeedQueryKey) {
	e.mu.Lock()
	if e.closed || (e.hasKey && e.key.Equal(key)) {
		e.mu.Unlock()
		return
	}
	if e.hasKey && e.key.SearchMode() && e.key.ResolutionKey() != key.ResolutionKey() {
		delete(e.raw, e.key.ResolutionKey())
	}
	e.key = key
	e.hasKey = true
	e.state = e.placeholderLocked(key)
	e.startLocked(key)
	e.mu.Unlock()
}

// Refresh re-resolves the active key in feed mode unless a resolution is
// already in flight. Posts stay visible while revalidating.
func (e *FeedQueryEngine) Refresh() {
	e.mu.Lock()
	if e.closed || !e.hasKey || e.key.SearchMode() || e.cancel != nil {
		e.mu.Unlock()
		return
	}
	e.state.Revalidating = true
	e.startLocked(e.key)
	e.mu.Unlock()
}

// Reload re-resolves the active key in either mode, superseding any
// in-flight resolution. It is the retry path after a failure.
func (e *FeedQueryEngine) Reload() {
	e.mu.Lock()
	if e.closed || !e.hasKey {
		e.mu.Unlock()
		return
	}
	if e.state.Status == domain.FeedError {
		e.state.Err = nil
		e.state.Error = ""
		if len(e.state.Posts) > 0 {
			e.state.Status = domain.FeedReady
			e.state.Revalidating = true
		} else {
			e.state.Status = domain.FeedLoading
		}
	} else {
		e.state.Revalidating = true
	}
	e.startLocked(e.key)
	e.mu.Unlock()
}

// UpdateOrigin sets the reference point for nearest ordering and
// re-sorts the current result when that ordering is active.
func (e *FeedQueryEngine) UpdateOrigin(c domain.Coordinate) {
	e.mu.Lock()
	e.origin = &c
	if !e.hasKey || e.key.Sort != domain.SortNearest {
		e.mu.Unlock()
		return
	}
	raw, ok := e.raw[e.key.ResolutionKey()]
	if !ok || e.state.Status == domain.FeedLoading || (e.state.Status == domain.FeedError && e.key.SearchMode()) {
		e.mu.Unlock()
		return
	}
	e.state.Posts = ProcessPosts(raw, e.key, e.origin)
	e.mu.Unlock()
}

// Key returns the active key.
func (e *FeedQueryEngine) Key() (domain.FeedQueryKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key, e.hasKey
}

// State returns a copy of the current feed state.
func (e *FeedQueryEngine) State() domain.FeedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Posts = append([]domain.Post(nil), e.state.Posts...)
	return st
}

// placeholderLocked is the state shown while key resolves. Results held
// for the same remote read are reprocessed for the new key; anything
// else shows an empty loading state so a previous query never leaks.
func (e *FeedQueryEngine) placeholderLocked(key domain.FeedQueryKey) domain.FeedState {
	if raw, ok := e.raw[key.ResolutionKey()]; ok {
		return domain.FeedState{
			Key:          key,
			Status:       domain.FeedReady,
			Posts:        ProcessPosts(raw, key, e.origin),
			Revalidating: true,
			UpdatedAt:    e.state.UpdatedAt,
		}
	}
	return domain.FeedState{Key: key, Status: domain.FeedLoading}
}

func (e *FeedQueryEngine) startLocked(key domain.FeedQueryKey) {
	if e.cancel != nil {
		e.cancel()
	}
	e.token++
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.resolve(ctx, cancel, e.token, key)
}

func (e *FeedQueryEngine) resolve(ctx context.Context, cancel context.CancelFunc, token uint64, key domain.FeedQueryKey) {
	defer e.wg.Done()
	defer cancel()

	mode := feedMode(key)
	ctx, span := e.tracer.Start(ctx, telemetry.SpanFeedResolve, trace.WithAttributes(
		attribute.String(telemetry.AttrFeedKey, key.String()),
		attribute.String(telemetry.AttrFeedMode, mode),
	))
	defer span.End()

	start := time.Now()
	// The shared read outlives any one caller; a superseded caller only
	// stops waiting for it.
	ch := e.flights.DoChan(key.ResolutionKey(), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return e.fetch(fctx, key)
	})
	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	metrics.FeedResolveDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	e.mu.Lock()
	if e.closed || token != e.token || !e.key.Equal(key) {
		e.mu.Unlock()
		metrics.FeedStaleDiscarded.WithLabelValues(mode).Inc()
		e.log.Debug("discarding superseded feed result", "key", key.String())
		return
	}
	e.cancel = nil

	if err != nil {
		kind := domain.ErrFeedFetchFailed
		if key.SearchMode() {
			kind = domain.ErrSearchFetchFailed
		}
		wrapped := fmt.Errorf("%w: %w", kind, err)
		e.state.Status = domain.FeedError
		e.state.Err = wrapped
		e.state.Error = wrapped.Error()
		e.state.Revalidating = false
		if key.SearchMode() {
			e.state.Posts = nil
		}
		metrics.FeedResolveErrors.WithLabelValues(mode).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn("feed resolution failed", "key", key.String(), "error", err)
	} else {
		raw, _ := v.([]domain.Post)
		e.raw[key.ResolutionKey()] = raw
		e.state = domain.FeedState{
			Key:       key,
			Status:    domain.FeedReady,
			Posts:     ProcessPosts(raw, key, e.origin),
			UpdatedAt: time.Now().UTC(),
		}
		span.SetAttributes(attribute.Int(telemetry.AttrPostCount, len(e.state.Posts)))
	}
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// fetch performs the remote read for key through the shared cache.
func (e *FeedQueryEngine) fetch(ctx context.Context, key domain.FeedQueryKey) ([]domain.Post, error) {
	mode := feedMode(key)
	cacheKey := "posts:" + key.ResolutionKey()
	if e.cache != nil && e.cfg.CacheTTL > 0 {
		if data, err := e.cache.Get(ctx, cacheKey); err == nil {
			var posts []domain.Post
			if err := json.Unmarshal(data, &posts); err == nil {
				metrics.CacheHits.WithLabelValues(mode).Inc()
				return posts, nil
			}
		} else if !errors.Is(err, ports.ErrCacheMiss) {
			e.log.Debug("feed cache read failed", "error", err)
		}
		metrics.CacheMisses.WithLabelValues(mode).Inc()
	}

	var (
		posts []domain.Post
		err   error
	)
	if key.SearchMode() {
		posts, err = e.source.SearchPosts(ctx, key.Query, e.cfg.SearchLimit)
	} else {
		posts, err = e.source.RecentPosts(ctx, key.Identity)
	}
	if err != nil {
		return nil, err
	}

	if e.cache != nil && e.cfg.CacheTTL > 0 {
		if data, err := json.Marshal(posts); err == nil {
			ttl := int(e.cfg.CacheTTL / time.Second)
			if ttl < 1 {
				ttl = 1
			}
			_ = e.cache.Set(ctx, cacheKey, data, ttl)
		}
	}
	return posts, nil
}

func feedMode(key domain.FeedQueryKey) string {
	if key.SearchMode() {
		return "search"
	}
	return "feed"
}
