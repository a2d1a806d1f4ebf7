package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
	"github.com/samirrijal/discoverymap/internal/pkg/telemetry"
)

var errNoHandoffStore = errors.New("navigation handoff store not configured")

// NavigationHandoff is a one-slot mailbox carrying a NavigationTarget from
// a detail view to the next map mount. It also holds the SavedView slot.
type NavigationHandoff struct {
	store  ports.HandoffStore
	log    *slog.Logger
	tracer trace.Tracer
}

// NewNavigationHandoff creates a handoff over store.
func NewNavigationHandoff(store ports.HandoffStore, log *slog.Logger) *NavigationHandoff {
	if log == nil {
		log = slog.Default()
	}
	return &NavigationHandoff{store: store, log: log, tracer: telemetry.Tracer()}
}

// Commit stores t, replacing any target not yet consumed.
func (h *NavigationHandoff) Commit(ctx context.Context, t domain.NavigationTarget) error {
	ctx, span := h.tracer.Start(ctx, telemetry.SpanHandoffCommit,
		trace.WithAttributes(attribute.String(telemetry.AttrPostID, t.PostID)))
	defer span.End()

	if err := t.Validate(); err != nil {
		return err
	}
	if h.store == nil {
		return errNoHandoffStore
	}
	if err := h.store.PutTarget(ctx, t); err != nil {
		return fmt.Errorf("commit navigation target: %w", err)
	}
	return nil
}

// ConsumeIfPresent returns the pending target and empties the mailbox.
// Concurrent consumers never both receive the same target.
func (h *NavigationHandoff) ConsumeIfPresent(ctx context.Context) (domain.NavigationTarget, bool, error) {
	if h.store == nil {
		return domain.NavigationTarget{}, false, nil
	}
	ctx, span := h.tracer.Start(ctx, telemetry.SpanHandoffTake)
	defer span.End()

	t, err := h.store.TakeTarget(ctx)
	if err != nil {
		return domain.NavigationTarget{}, false, fmt.Errorf("consume navigation target: %w", err)
	}
	if t == nil {
		return domain.NavigationTarget{}, false, nil
	}
	if err := t.Validate(); err != nil {
		h.log.Warn("discarding invalid navigation target", "post_id", t.PostID)
		return domain.NavigationTarget{}, false, nil
	}
	metrics.HandoffsConsumed.Inc()
	span.SetAttributes(attribute.String(telemetry.AttrPostID, t.PostID))
	return *t, true, nil
}

// LoadView returns the saved camera, if any.
func (h *NavigationHandoff) LoadView(ctx context.Context) (*domain.SavedView, error) {
	if h.store == nil {
		return nil, nil
	}
	return h.store.GetView(ctx)
}

// SaveView stores the camera for the next mount.
func (h *NavigationHandoff) SaveView(ctx context.Context, v domain.SavedView) error {
	if h.store == nil {
		return nil
	}
	return h.store.PutView(ctx, v)
}

// ClearView drops the saved camera.
func (h *NavigationHandoff) ClearView(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return h.store.DeleteView(ctx)
}
