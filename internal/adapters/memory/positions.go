package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// PushSource is a PositionSource fed by explicit Push calls, used when a
// client reports its position over HTTP.
type PushSource struct {
	mu       sync.Mutex
	nextID   int
	watchers map[int]*pushWatcher
	waiters  []chan domain.Fix
	last     *domain.Fix
}

type pushWatcher struct {
	fn   func(domain.Fix)
	errc chan error
}

// NewPushSource creates an idle source.
func NewPushSource() *PushSource {
	return &PushSource{watchers: make(map[int]*pushWatcher)}
}

// Watch delivers pushed fixes until ctx ends or Fail is called.
func (s *PushSource) Watch(ctx context.Context, fn func(domain.Fix)) error {
	w := &pushWatcher{fn: fn, errc: make(chan error, 1)}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-w.errc:
		return err
	}
}

// Current waits for the next pushed fix.
func (s *PushSource) Current(ctx context.Context) (domain.Fix, error) {
	ch := make(chan domain.Fix, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.Fix{}, ctx.Err()
	case fix := <-ch:
		return fix, nil
	}
}

// Push delivers fix to every watcher and pending Current call.
func (s *PushSource) Push(fix domain.Fix) {
	s.mu.Lock()
	s.last = &fix
	fns := make([]func(domain.Fix), 0, len(s.watchers))
	for _, w := range s.watchers {
		fns = append(fns, w.fn)
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn(fix)
	}
	for _, ch := range waiters {
		ch <- fix
	}
}

// Fail ends every active watch with err.
func (s *PushSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		select {
		case w.errc <- err:
		default:
		}
	}
}

// Last returns the most recent pushed fix.
func (s *PushSource) Last() (domain.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.Fix{}, false
	}
	return *s.last, true
}
