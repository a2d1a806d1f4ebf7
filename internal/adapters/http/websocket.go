package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
)

// wsMessage is a client gesture sent over the session socket.
type wsMessage struct {
	Action string  `json:"action"` // snapshot | select | clear | pan | zoom | recenter
	PostID string  `json:"post_id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Zoom   int     `json:"zoom"`
}

// WebSocketHandler streams session snapshots to the client and applies
// the gestures it sends back. The first frame is the current snapshot.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Params("id")
		log := slog.Default().With("session_id", id, "remote", c.RemoteAddr().String())

		s, err := deps.Sessions.Get(id)
		if err != nil {
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		var mu sync.Mutex
		writeRaw := func(data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			return writeRaw(data)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if deps.Events != nil {
			unsubscribe, err := deps.Events.SubscribeSessionEvents(ctx, id, func(data []byte) {
				_ = writeRaw(data)
			})
			if err != nil {
				log.Error("ws event subscribe failed", "error", err)
				_ = writeJSON(map[string]string{"error": "event stream unavailable"})
				return
			}
			defer unsubscribe()
		}
		_ = writeJSON(s.Snapshot())

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if err := applyGesture(ctx, s, m); err != nil {
				_ = writeJSON(map[string]string{"error": err.Error(), "action": m.Action})
				continue
			}
			if m.Action == "snapshot" || deps.Events == nil {
				_ = writeJSON(s.Snapshot())
			}
		}

		log.Info("ws client disconnected")
	}
}

var errCoordinateRange = errors.New("lat must be -90..90 and lng -180..180")

type unknownActionError string

func (e unknownActionError) Error() string { return "unknown action: " + string(e) }

func applyGesture(ctx context.Context, s *usecases.MapSession, m wsMessage) error {
	switch m.Action {
	case "snapshot":
		return nil
	case "select":
		return s.Select(m.PostID)
	case "clear":
		return s.ClearSelection()
	case "pan":
		c := domain.Coordinate{Lat: m.Lat, Lng: m.Lng}
		if !c.Valid() {
			return errCoordinateRange
		}
		return s.Pan(c)
	case "zoom":
		return s.Zoom(m.Zoom)
	case "recenter":
		rctx, cancel := context.WithTimeout(ctx, RecenterTimeout)
		defer cancel()
		return s.Recenter(rctx)
	default:
		return unknownActionError(m.Action)
	}
}
