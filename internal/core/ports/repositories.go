package ports

import (
	"context"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// PostSource resolves posts from the remote backend.
type PostSource interface {
	// RecentPosts returns the recent feed visible to identity. An empty
	// identity reads the anonymous public feed.
	RecentPosts(ctx context.Context, identity string) ([]domain.Post, error)
	// SearchPosts runs a remote text search.
	SearchPosts(ctx context.Context, query string, limit int) ([]domain.Post, error)
}

// PostStore is the persistence side of the post catalogue.
type PostStore interface {
	PostSource
	Upsert(ctx context.Context, p *domain.Post) error
	GetByID(ctx context.Context, id string) (*domain.Post, error)
}

// HandoffStore keeps the per-session navigation mailbox and saved view.
type HandoffStore interface {
	PutTarget(ctx context.Context, t domain.NavigationTarget) error
	// TakeTarget returns and removes the pending target atomically.
	// It returns nil when the mailbox is empty.
	TakeTarget(ctx context.Context) (*domain.NavigationTarget, error)
	PutView(ctx context.Context, v domain.SavedView) error
	// GetView returns nil when no view is saved.
	GetView(ctx context.Context) (*domain.SavedView, error)
	DeleteView(ctx context.Context) error
}
