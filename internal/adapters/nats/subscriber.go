package natsadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber on core NATS.
type Subscriber struct {
	conn     *nats.Conn
	subjects Subjects
}

// NewSubscriber subscribes on a shared connection.
func NewSubscriber(conn *nats.Conn, subjects Subjects) *Subscriber {
	return &Subscriber{conn: conn, subjects: subjects}
}

// SubscribeSessionEvents calls handler for each snapshot of the session
// until the returned func is called or ctx is done.
func (s *Subscriber) SubscribeSessionEvents(ctx context.Context, sessionID string, handler func(data []byte)) (func(), error) {
	if !ValidToken(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	sub, err := s.conn.Subscribe(s.subjects.Session(sessionID), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			_ = sub.Unsubscribe()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
	return unsubscribe, nil
}
