package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

const keyPrefix = "discoverymap:handoff:"

// HandoffStore implements ports.HandoffStore for one session. The mailbox
// is consumed with GETDEL so concurrent mounts cannot both read it.
type HandoffStore struct {
	client valkey.Client
	target string
	view   string
	ttl    time.Duration
}

// Handoff returns the store of sessionID on the cache connection. Entries
// expire after ttl.
func (c *Cache) Handoff(sessionID string, ttl time.Duration) *HandoffStore {
	target, view := handoffKeys(sessionID)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HandoffStore{client: c.client, target: target, view: view, ttl: ttl}
}

func handoffKeys(sessionID string) (target, view string) {
	base := keyPrefix + sessionID
	return base + ":target", base + ":view"
}

func (s *HandoffStore) PutTarget(ctx context.Context, t domain.NavigationTarget) error {
	return s.put(ctx, s.target, t)
}

func (s *HandoffStore) TakeTarget(ctx context.Context) (*domain.NavigationTarget, error) {
	b, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.target).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("take target: %w", err)
	}
	var t domain.NavigationTarget
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode target: %w", err)
	}
	return &t, nil
}

func (s *HandoffStore) PutView(ctx context.Context, v domain.SavedView) error {
	return s.put(ctx, s.view, v)
}

func (s *HandoffStore) GetView(ctx context.Context) (*domain.SavedView, error) {
	b, err := s.client.Do(ctx, s.client.B().Get().Key(s.view).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get view: %w", err)
	}
	var v domain.SavedView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return &v, nil
}

func (s *HandoffStore) DeleteView(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.view).Build()).Error()
}

func (s *HandoffStore) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(valkey.BinaryString(b)).Ex(s.ttl).Build()).Error()
}
