package usecases

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// FollowSuspender is the camera side of a selection.
type FollowSuspender interface {
	LeaveFollowing(cause string)
}

// SelectionCoordinator tracks the focused post. Selecting a post always
// takes the camera out of Following; clearing never resumes it.
type SelectionCoordinator struct {
	camera FollowSuspender

	mu       sync.Mutex
	selected string
}

// NewSelectionCoordinator creates a coordinator bound to camera.
func NewSelectionCoordinator(camera FollowSuspender) *SelectionCoordinator {
	return &SelectionCoordinator{camera: camera}
}

// Select focuses postID and leaves Following.
func (s *SelectionCoordinator) Select(postID string) error {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return fmt.Errorf("select: empty post id")
	}
	s.mu.Lock()
	s.selected = postID
	s.mu.Unlock()

	if s.camera != nil {
		s.camera.LeaveFollowing("selection")
	}
	return nil
}

// Clear drops the selection. Camera mode is untouched.
func (s *SelectionCoordinator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// Selected returns the focused post id.
func (s *SelectionCoordinator) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// Resolve finds the selected post in posts.
func (s *SelectionCoordinator) Resolve(posts []domain.Post) (domain.Post, bool) {
	id, ok := s.Selected()
	if !ok {
		return domain.Post{}, false
	}
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Post{}, false
}
