package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
	"github.com/samirrijal/discoverymap/internal/pkg/telemetry"
)

// ViewportConfig holds the camera constants.
type ViewportConfig struct {
	DefaultCenter domain.Coordinate
	DefaultZoom   int
	DetailZoom    int
	RecenterZoom  int
	MinZoom       int
	MaxZoom       int
}

// DefaultViewportConfig returns the stock camera constants.
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		DefaultCenter: domain.Coordinate{Lat: 43.068, Lng: 141.35},
		DefaultZoom:   16,
		DetailZoom:    18,
		RecenterZoom:  16,
		MinZoom:       3,
		MaxZoom:       20,
	}
}

// Locator reads one fresh device coordinate.
type Locator interface {
	Current(ctx context.Context) (domain.Coordinate, error)
}

// ViewStore persists the SavedView across map mounts.
type ViewStore interface {
	LoadView(ctx context.Context) (*domain.SavedView, error)
	SaveView(ctx context.Context, v domain.SavedView) error
	ClearView(ctx context.Context) error
}

// PostSelector receives the post focused by a navigation target.
type PostSelector interface {
	Select(postID string) error
}

// ViewportController owns the camera state machine. Following tracks
// location updates; any user gesture moves it to Manual, and only an
// explicit recenter returns it to Following.
type ViewportController struct {
	cfg     ViewportConfig
	locator Locator
	views   ViewStore
	log     *slog.Logger
	tracer  trace.Tracer

	mu          sync.Mutex
	state       domain.ViewportState
	mounted     bool
	lastKnown   *domain.Coordinate
	recenterSeq uint64
	cancelRec   context.CancelFunc
}

// NewViewportController creates an unmounted controller.
func NewViewportController(cfg ViewportConfig, locator Locator, views ViewStore, log *slog.Logger) *ViewportController {
	if log == nil {
		log = slog.Default()
	}
	return &ViewportController{
		cfg:     cfg,
		locator: locator,
		views:   views,
		log:     log,
		tracer:  telemetry.Tracer(),
		state: domain.ViewportState{
			Center: cfg.DefaultCenter,
			Zoom:   cfg.DefaultZoom,
			Mode:   domain.Following,
		},
	}
}

// Mount initializes the camera. A SavedView restores Manual mode at the
// saved position; otherwise the camera follows from the last known
// coordinate, or the default center when none arrived yet.
func (v *ViewportController) Mount(ctx context.Context) error {
	var saved *domain.SavedView
	if v.views != nil {
		view, err := v.views.LoadView(ctx)
		if err != nil {
			v.log.Warn("load saved view failed", "error", err)
		} else {
			saved = view
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.mounted = true
	if saved != nil {
		v.state = domain.ViewportState{Center: saved.Center, Zoom: v.clampZoom(saved.Zoom), Mode: domain.Manual}
		return nil
	}
	center := v.cfg.DefaultCenter
	if v.lastKnown != nil {
		center = *v.lastKnown
	}
	v.state = domain.ViewportState{Center: center, Zoom: v.cfg.DefaultZoom, Mode: domain.Following}
	return nil
}

// Unmount persists the camera for the next mount. A Manual camera is
// saved; a Following camera clears any stale SavedView.
func (v *ViewportController) Unmount(ctx context.Context) error {
	v.mu.Lock()
	v.mounted = false
	v.cancelRecenterLocked()
	st := v.state
	v.mu.Unlock()

	if v.views == nil {
		return nil
	}
	if st.Mode == domain.Manual {
		return v.views.SaveView(ctx, domain.SavedView{Center: st.Center, Zoom: st.Zoom})
	}
	return v.views.ClearView(ctx)
}

// ApplyLocationUpdate records c and pans the camera when following.
// Updates before mount are buffered as the initial center.
func (v *ViewportController) ApplyLocationUpdate(c domain.Coordinate) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastKnown = &c
	if !v.mounted || v.state.Mode != domain.Following {
		return false
	}
	v.state.Center = c
	return true
}

// ApplyFallback centers a following camera on the default coordinate when
// no device coordinate has been seen.
func (v *ViewportController) ApplyFallback() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted || v.state.Mode != domain.Following || v.lastKnown != nil {
		return false
	}
	v.state.Center = v.cfg.DefaultCenter
	return true
}

// Pan moves the camera as a user gesture.
func (v *ViewportController) Pan(center domain.Coordinate) error {
	if !center.Valid() {
		return fmt.Errorf("pan: coordinate out of range")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return domain.ErrMapNotMounted
	}
	v.state.Center = center
	v.toManualLocked("pan")
	return nil
}

// Zoom changes the zoom level as a user gesture.
func (v *ViewportController) Zoom(level int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return domain.ErrMapNotMounted
	}
	v.state.Zoom = v.clampZoom(level)
	v.toManualLocked("zoom")
	return nil
}

// LeaveFollowing switches to Manual without moving the camera.
func (v *ViewportController) LeaveFollowing(cause string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.toManualLocked(cause)
}

// Recenter reads a fresh coordinate and returns to Following at the
// recenter zoom. A newer recenter, any switch to Manual or unmount
// supersedes an in-flight one. On failure the camera is left unchanged.
func (v *ViewportController) Recenter(ctx context.Context) error {
	ctx, span := v.tracer.Start(ctx, telemetry.SpanRecenter)
	defer span.End()

	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrRecenterFailed, domain.ErrMapNotMounted)
	}
	v.cancelRecenterLocked()
	v.recenterSeq++
	seq := v.recenterSeq
	rctx, cancel := context.WithCancel(ctx)
	v.cancelRec = cancel
	v.mu.Unlock()
	defer cancel()

	start := time.Now()
	var (
		coord domain.Coordinate
		err   error
	)
	if v.locator == nil {
		err = domain.ErrLocationUnavailable
	} else {
		coord, err = v.locator.Current(rctx)
	}

	v.mu.Lock()
	if seq != v.recenterSeq || !v.mounted {
		v.mu.Unlock()
		metrics.RecenterDuration.WithLabelValues("superseded").Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("superseded", true))
		return fmt.Errorf("%w: %w", domain.ErrRecenterFailed, context.Canceled)
	}
	v.cancelRec = nil
	if err != nil {
		v.mu.Unlock()
		metrics.RecenterDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", domain.ErrRecenterFailed, err)
	}
	v.lastKnown = &coord
	v.state = domain.ViewportState{Center: coord, Zoom: v.clampZoom(v.cfg.RecenterZoom), Mode: domain.Following}
	metrics.CameraTransitions.WithLabelValues(domain.Following.String(), "recenter").Inc()
	v.mu.Unlock()
	metrics.RecenterDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if v.views != nil {
		if err := v.views.ClearView(ctx); err != nil {
			v.log.Warn("clear saved view failed", "error", err)
		}
	}
	return nil
}

// ApplyNavigationTarget focuses the camera on t in Manual mode, at the
// detail zoom or the saved zoom when requested, then selects the post.
func (v *ViewportController) ApplyNavigationTarget(ctx context.Context, t domain.NavigationTarget, sel PostSelector) error {
	if err := t.Validate(); err != nil {
		return err
	}

	zoom := v.cfg.DetailZoom
	if t.UseSavedZoom && v.views != nil {
		if view, err := v.views.LoadView(ctx); err == nil && view != nil {
			zoom = view.Zoom
		}
	}

	v.mu.Lock()
	v.state.Center = t.Coordinate()
	v.state.Zoom = v.clampZoom(zoom)
	v.toManualLocked("navigation")
	v.mu.Unlock()

	if sel != nil {
		return sel.Select(t.PostID)
	}
	return nil
}

// CancelRecenter drops any in-flight recenter.
func (v *ViewportController) CancelRecenter() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelRecenterLocked()
}

// State returns the current camera.
func (v *ViewportController) State() domain.ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// LastKnown returns the most recent device coordinate, if any.
func (v *ViewportController) LastKnown() (domain.Coordinate, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastKnown == nil {
		return domain.Coordinate{}, false
	}
	return *v.lastKnown, true
}

// Mounted reports whether the map is mounted.
func (v *ViewportController) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

// toManualLocked also supersedes an in-flight recenter, so a gesture or
// selection made while the device read is pending keeps the camera.
func (v *ViewportController) toManualLocked(cause string) {
	v.cancelRecenterLocked()
	if v.state.Mode == domain.Manual {
		return
	}
	v.state.Mode = domain.Manual
	metrics.CameraTransitions.WithLabelValues(domain.Manual.String(), cause).Inc()
}

func (v *ViewportController) cancelRecenterLocked() {
	if v.cancelRec != nil {
		v.cancelRec()
		v.cancelRec = nil
	}
	v.recenterSeq++
}

func (v *ViewportController) clampZoom(z int) int {
	if v.cfg.MinZoom > 0 && z < v.cfg.MinZoom {
		return v.cfg.MinZoom
	}
	if v.cfg.MaxZoom > 0 && z > v.cfg.MaxZoom {
		return v.cfg.MaxZoom
	}
	return z
}
