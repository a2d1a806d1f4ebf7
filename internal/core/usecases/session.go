package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

// SessionConfig groups the per-component settings of a MapSession.
type SessionConfig struct {
	Viewport ViewportConfig
	Location LocationStreamConfig
	Feed     FeedEngineConfig
}

// DefaultSessionConfig returns the stock settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Viewport: DefaultViewportConfig(),
		Location: DefaultLocationStreamConfig(),
		Feed:     DefaultFeedEngineConfig(),
	}
}

// SessionDeps are the adapters a MapSession runs on.
type SessionDeps struct {
	Posts     ports.PostSource
	Positions ports.PositionSource
	Handoff   ports.HandoffStore
	Cache     ports.CacheService
	Events    ports.EventPublisher
	Logger    *slog.Logger
	// Flights, when set, joins this session's remote reads with other
	// sessions holding the same group.
	Flights   *singleflight.Group
}

// SessionSnapshot is the observable state of one session.
type SessionSnapshot struct {
	ID             string               `json:"id"`
	Identity       string               `json:"identity,omitempty"`
	Mounted        bool                 `json:"mounted"`
	Viewport       domain.ViewportState `json:"viewport"`
	Location       *domain.Coordinate   `json:"location,omitempty"`
	Feed           domain.FeedState     `json:"feed"`
	SelectedPostID string               `json:"selected_post_id,omitempty"`
	SelectedPost   *domain.Post         `json:"selected_post,omitempty"`
	Notice         string               `json:"notice,omitempty"`
	Version        uint64               `json:"version"`
	At             time.Time            `json:"at"`
}

// MapSession wires the five map components for one client. Compound
// transitions (mount, search submission, selection) run under one lock
// so observers never see them half applied.
type MapSession struct {
	id  string
	log *slog.Logger

	location  *LocationStream
	viewport  *ViewportController
	feed      *FeedQueryEngine
	selection *SelectionCoordinator
	handoff   *NavigationHandoff
	events    ports.EventPublisher

	mu          sync.Mutex
	identity    string
	mounted     bool
	closed      bool
	locGen      uint64 // current location subscription; older callbacks are dropped
	unsubscribe func()
	notice      string
	version     uint64

	// pubMu keeps published versions in order.
	pubMu sync.Mutex
}

// NewMapSession builds a session and starts its feed on the default key.
func NewMapSession(id, identity string, cfg SessionConfig, deps SessionDeps) *MapSession {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", id)

	handoff := NewNavigationHandoff(deps.Handoff, log)
	location := NewLocationStream(deps.Positions, cfg.Location, log)
	viewport := NewViewportController(cfg.Viewport, location, handoff, log)

	feed := NewFeedQueryEngine(deps.Posts, deps.Cache, cfg.Feed, log)
	feed.ShareFlights(deps.Flights)

	s := &MapSession{
		id:        id,
		log:       log,
		location:  location,
		viewport:  viewport,
		feed:      feed,
		selection: NewSelectionCoordinator(viewport),
		handoff:   handoff,
		events:    deps.Events,
		identity:  strings.TrimSpace(identity),
	}
	s.feed.OnChange(s.publish)
	s.feed.SetKey(domain.NewFeedQueryKey(s.identity, string(domain.ScopeAll), string(domain.SortNewest), ""))
	s.feed.Start()
	return s
}

// ID returns the session id.
func (s *MapSession) ID() string { return s.id }

// Mount mounts the map: restores or initializes the camera, subscribes
// to location and applies a pending navigation target.
func (s *MapSession) Mount(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.mounted {
		s.mu.Unlock()
		return nil
	}

	if err := s.viewport.Mount(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("mount viewport: %w", err)
	}
	s.locGen++
	gen := s.locGen
	unsubscribe, err := s.location.Subscribe(
		func(c domain.Coordinate) { s.onLocation(gen, c) },
		func(err error) { s.onLocationError(gen, err) },
	)
	if err != nil {
		s.log.Warn("location subscribe failed", "error", err)
		s.notice = err.Error()
	} else {
		s.unsubscribe = unsubscribe
	}

	target, ok, err := s.handoff.ConsumeIfPresent(ctx)
	if err != nil {
		s.log.Warn("navigation handoff unavailable", "error", err)
	} else if ok {
		if err := s.viewport.ApplyNavigationTarget(ctx, target, s.selection); err != nil {
			s.log.Warn("navigation target rejected", "post_id", target.PostID, "error", err)
		}
	}
	s.mounted = true
	s.mu.Unlock()

	s.publish()
	return nil
}

// Unmount stops location, saves or clears the camera and drops the
// selection.
func (s *MapSession) Unmount(ctx context.Context) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return nil
	}
	err := s.unmountLocked(ctx)
	s.mu.Unlock()

	s.publish()
	return err
}

func (s *MapSession) unmountLocked(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.locGen++
	s.mounted = false
	s.selection.Clear()
	if err := s.viewport.Unmount(ctx); err != nil {
		return fmt.Errorf("persist viewport: %w", err)
	}
	return nil
}

// Pan applies a user drag.
func (s *MapSession) Pan(center domain.Coordinate) error {
	s.mu.Lock()
	err := s.usableLocked()
	if err == nil {
		err = s.viewport.Pan(center)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish()
	return nil
}

// Zoom applies a user zoom.
func (s *MapSession) Zoom(level int) error {
	s.mu.Lock()
	err := s.usableLocked()
	if err == nil {
		err = s.viewport.Zoom(level)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish()
	return nil
}

// Recenter returns the camera to Following at the device position. The
// session lock is not held while waiting on the device.
func (s *MapSession) Recenter(ctx context.Context) error {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	err = s.viewport.Recenter(ctx)
	switch {
	case err == nil:
		if c, ok := s.viewport.LastKnown(); ok {
			s.feed.UpdateOrigin(c)
		}
		s.setNotice("")
	case !errors.Is(err, context.Canceled):
		s.setNotice(err.Error())
	}
	s.publish()
	return err
}

// SetQuery changes scope, sort and search text. Submitting a new
// non-empty search clears the selection and leaves Following.
func (s *MapSession) SetQuery(scope, sort, query string) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	key := domain.NewFeedQueryKey(s.identity, scope, sort, query)
	prev, _ := s.feed.Key()
	if key.SearchMode() && key.NormalizedQuery() != prev.NormalizedQuery() {
		s.selection.Clear()
		s.viewport.LeaveFollowing("search")
	}
	s.feed.SetKey(key)
	s.mu.Unlock()

	s.publish()
	return nil
}

// SetIdentity switches the viewer, re-keying the feed.
func (s *MapSession) SetIdentity(identity string) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.identity = strings.TrimSpace(identity)
	prev, _ := s.feed.Key()
	s.feed.SetKey(domain.NewFeedQueryKey(s.identity, string(prev.Scope), string(prev.Sort), prev.Query))
	s.mu.Unlock()

	s.publish()
	return nil
}

// Reload retries the active feed or search resolution.
func (s *MapSession) Reload() error {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.feed.Reload()
	s.publish()
	return nil
}

// Select focuses a post and leaves Following.
func (s *MapSession) Select(postID string) error {
	s.mu.Lock()
	err := s.usableLocked()
	if err == nil {
		err = s.selection.Select(postID)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish()
	return nil
}

// ClearSelection dismisses the focused post. The camera stays Manual.
func (s *MapSession) ClearSelection() error {
	s.mu.Lock()
	err := s.usableLocked()
	if err == nil {
		s.selection.Clear()
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish()
	return nil
}

// CommitHandoff records a target for the next map mount.
func (s *MapSession) CommitHandoff(ctx context.Context, t domain.NavigationTarget) error {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.handoff.Commit(ctx, t)
}

// Close unmounts and stops the session. It is safe to call twice.
func (s *MapSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	var err error
	if s.mounted {
		err = s.unmountLocked(ctx)
	}
	s.closed = true
	s.mu.Unlock()

	s.feed.Close()
	return err
}

// Snapshot returns the current observable state.
func (s *MapSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *MapSession) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		ID:       s.id,
		Identity: s.identity,
		Mounted:  s.mounted,
		Viewport: s.viewport.State(),
		Feed:     s.feed.State(),
		Notice:   s.notice,
		Version:  s.version,
		At:       time.Now().UTC(),
	}
	if c, ok := s.viewport.LastKnown(); ok {
		snap.Location = &c
	}
	if id, ok := s.selection.Selected(); ok {
		snap.SelectedPostID = id
		if p, ok := s.selection.Resolve(snap.Feed.Posts); ok {
			snap.SelectedPost = &p
		}
	}
	return snap
}

func (s *MapSession) onLocation(gen uint64, c domain.Coordinate) {
	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		return
	}
	s.viewport.ApplyLocationUpdate(c)
	s.notice = ""
	s.mu.Unlock()

	s.feed.UpdateOrigin(c)
	s.publish()
}

func (s *MapSession) onLocationError(gen uint64, err error) {
	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		return
	}
	s.notice = err.Error()
	if errors.Is(err, domain.ErrLocationPermissionDenied) || errors.Is(err, domain.ErrLocationUnavailable) {
		s.viewport.ApplyFallback()
	}
	s.mu.Unlock()

	s.log.Info("location degraded", "error", err)
	s.publish()
}

// staleLocked reports whether a location callback of subscription gen
// arrived after that subscription was dropped.
func (s *MapSession) staleLocked(gen uint64) bool {
	return s.closed || !s.mounted || gen != s.locGen
}

func (s *MapSession) setNotice(notice string) {
	s.mu.Lock()
	s.notice = notice
	s.mu.Unlock()
}

func (s *MapSession) usableLocked() error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	return nil
}

// publish fans the current snapshot out to observers. Events leave in
// version order.
func (s *MapSession) publish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.events == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("marshal session snapshot", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.events.PublishSessionEvent(ctx, s.id, data); err != nil {
		s.log.Warn("publish session event failed", "error", err)
	}
}
