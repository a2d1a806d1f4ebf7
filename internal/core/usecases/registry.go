package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
)

// SessionFactories build the per-session adapters.
type SessionFactories struct {
	// Positions returns the position source for a device. It may return nil
	// for clients without geolocation.
	Positions func(deviceID string) ports.PositionSource
	// Handoff returns the mailbox scoped to a session.
	Handoff func(sessionID string) ports.HandoffStore
}

// SessionRegistry owns the open map sessions of the process.
type SessionRegistry struct {
	cfg       SessionConfig
	posts     ports.PostSource
	cache     ports.CacheService
	events    ports.EventPublisher
	factories SessionFactories
	log       *slog.Logger
	// flights is shared by every session so concurrent reads of the same
	// feed or search hit the post source once.
	flights   singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*MapSession
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(cfg SessionConfig, posts ports.PostSource, cache ports.CacheService, events ports.EventPublisher, factories SessionFactories, log *slog.Logger) *SessionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &SessionRegistry{
		cfg:       cfg,
		posts:     posts,
		cache:     cache,
		events:    events,
		factories: factories,
		log:       log,
		sessions:  make(map[string]*MapSession),
	}
}

// Create opens a session for identity, reading positions from deviceID.
func (r *SessionRegistry) Create(identity, deviceID string) *MapSession {
	id := uuid.NewString()
	deps := SessionDeps{
		Posts:   r.posts,
		Cache:   r.cache,
		Events:  r.events,
		Logger:  r.log,
		Flights: &r.flights,
	}
	if r.factories.Positions != nil && deviceID != "" {
		deps.Positions = r.factories.Positions(deviceID)
	}
	if r.factories.Handoff != nil {
		deps.Handoff = r.factories.Handoff(id)
	}
	s := NewMapSession(id, identity, r.cfg, deps)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()
	r.log.Info("session opened", "session_id", id, "device_id", deviceID)
	return s
}

// Get returns an open session.
func (r *SessionRegistry) Get(id string) (*MapSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets a session.
func (r *SessionRegistry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	metrics.ActiveSessions.Dec()
	r.log.Info("session closed", "session_id", id)
	return s.Close(ctx)
}

// IDs lists open session ids in sorted order.
func (r *SessionRegistry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session, returning the joined errors.
func (r *SessionRegistry) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
