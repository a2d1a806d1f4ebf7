package http

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
	"github.com/samirrijal/discoverymap/internal/pkg/geoformat"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const maxQueryLength = 200

type createSessionRequest struct {
	Identity string `json:"identity"`
	DeviceID string `json:"device_id"`
}

type coordinateRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (r coordinateRequest) coordinate() (domain.Coordinate, bool) {
	if r.Lat == nil || r.Lng == nil {
		return domain.Coordinate{}, false
	}
	c := domain.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
	return c, c.Valid()
}

type zoomRequest struct {
	Zoom *int `json:"zoom"`
}

type queryRequest struct {
	Scope string `json:"scope"`
	Sort  string `json:"sort"`
	Query string `json:"q"`
}

type identityRequest struct {
	Identity string `json:"identity"`
}

type selectRequest struct {
	PostID string `json:"post_id"`
}

type fixRequest struct {
	coordinateRequest
	Accuracy float64   `json:"accuracy"`
	Time     time.Time `json:"time"`
}

type statusRequest struct {
	Error string `json:"error"`
}

// FeedResponse is the rendered feed of a session.
type FeedResponse struct {
	Key          string            `json:"key"`
	Status       domain.FeedStatus `json:"status"`
	Error        string            `json:"error,omitempty"`
	Revalidating bool              `json:"revalidating"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
	Data         []domain.Post     `json:"data"`
	Pagination   Pagination        `json:"pagination"`
}

// withSession resolves the :id session before calling fn.
func withSession(deps *Dependencies, fn func(c *fiber.Ctx, s *usecases.MapSession) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return sessionError(c, err)
		}
		return fn(c, s)
	}
}

// snapshotAfter runs op and answers with the resulting snapshot.
func snapshotAfter(c *fiber.Ctx, s *usecases.MapSession, op func() error) error {
	if err := op(); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(s.Snapshot())
}

// CreateSessionHandler opens a map session.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if req.DeviceID != "" && !deviceIDPattern.MatchString(req.DeviceID) {
			return errBadRequest(c, "device_id must be 1-64 letters, digits, '-' or '_'")
		}

		s := deps.Sessions.Create(req.Identity, req.DeviceID)
		c.Location("/v1/sessions/" + s.ID())
		return c.Status(fiber.StatusCreated).JSON(s.Snapshot())
	}
}

// ListSessionsHandler lists open session ids.
func ListSessionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c, 50, 200)
		page, pg := paginate(deps.Sessions.IDs(), offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetSessionHandler returns the session snapshot.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		return c.JSON(s.Snapshot())
	})
}

// CloseSessionHandler closes a session.
func CloseSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Sessions.Close(c.UserContext(), c.Params("id")); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return sessionError(c, err)
			}
			LoggerFromCtx(c.UserContext()).Warn("session closed with error", "error", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// MountHandler mounts the map of a session.
func MountHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		return snapshotAfter(c, s, func() error { return s.Mount(c.UserContext()) })
	})
}

// UnmountHandler unmounts the map of a session.
func UnmountHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		return snapshotAfter(c, s, func() error { return s.Unmount(c.UserContext()) })
	})
}

// PanHandler applies a drag gesture.
func PanHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var req coordinateRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		center, ok := req.coordinate()
		if !ok {
			return errBadRequest(c, "lat must be -90..90 and lng -180..180")
		}
		return snapshotAfter(c, s, func() error { return s.Pan(center) })
	})
}

// ZoomHandler applies a zoom gesture.
func ZoomHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var req zoomRequest
		if err := c.BodyParser(&req); err != nil || req.Zoom == nil {
			return errBadRequest(c, "zoom is required")
		}
		return snapshotAfter(c, s, func() error { return s.Zoom(*req.Zoom) })
	})
}

// RecenterHandler waits for a fresh device fix and resumes Following.
func RecenterHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		return snapshotAfter(c, s, func() error { return s.Recenter(c.UserContext()) })
	})
}

// SetQueryHandler changes scope, sort and search text.
func SetQueryHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Query) > maxQueryLength {
			return errBadRequest(c, "query too long (max 200 characters)")
		}
		return snapshotAfter(c, s, func() error { return s.SetQuery(req.Scope, req.Sort, req.Query) })
	})
}

// SetIdentityHandler switches the viewer of a session.
func SetIdentityHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var req identityRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		return snapshotAfter(c, s, func() error { return s.SetIdentity(req.Identity) })
	})
}

// ReloadHandler retries the active feed or search.
func ReloadHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		if err := s.Reload(); err != nil {
			return sessionError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(s.Snapshot())
	})
}

// FeedHandler returns the rendered feed, paginated.
func FeedHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		st := s.Snapshot().Feed
		offset, limit := pageParams(c, 100, 500)
		page, pg := paginate(st.Posts, offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(FeedResponse{
			Key:          st.Key.String(),
			Status:       st.Status,
			Error:        st.Error,
			Revalidating: st.Revalidating,
			UpdatedAt:    st.UpdatedAt,
			Data:         page,
			Pagination:   pg,
		})
	})
}

// FeedGeoJSONHandler returns the rendered feed as map markers. With
// radius, only posts within radius meters of the camera are included.
func FeedGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		snap := s.Snapshot()
		posts := snap.Feed.Posts
		if radius := c.QueryFloat("radius", 0); radius != 0 {
			if radius < 0 || radius > 50000 {
				return errBadRequest(c, "radius must be between 1 and 50000 meters")
			}
			posts = usecases.PostsWithin(posts, snap.Viewport.Center, radius)
		}
		data, err := geoformat.FeatureCollection(posts)
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	})
}

// SelectHandler focuses a post.
func SelectHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var req selectRequest
		if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PostID) == "" {
			return errBadRequest(c, "post_id is required")
		}
		return snapshotAfter(c, s, func() error { return s.Select(req.PostID) })
	})
}

// ClearSelectionHandler dismisses the focused post.
func ClearSelectionHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		return snapshotAfter(c, s, s.ClearSelection)
	})
}

// HandoffHandler commits a navigation target for the next map mount.
func HandoffHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.MapSession) error {
		var t domain.NavigationTarget
		if err := c.BodyParser(&t); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := s.CommitHandoff(c.UserContext(), t); err != nil {
			return sessionError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})
}

// DeviceFixHandler forwards a client-reported position.
func DeviceFixHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !deviceIDPattern.MatchString(id) {
			return errBadRequest(c, "invalid device id")
		}
		var req fixRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		coord, ok := req.coordinate()
		if !ok {
			return errBadRequest(c, "lat must be -90..90 and lng -180..180")
		}
		if req.Accuracy < 0 {
			return errBadRequest(c, "accuracy must not be negative")
		}
		if req.Time.IsZero() {
			req.Time = time.Now().UTC()
		}
		fix := domain.Fix{Coordinate: coord, Accuracy: req.Accuracy, Time: req.Time}
		if err := deps.Devices.ReportFix(c.UserContext(), id, fix); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// DeviceStatusHandler forwards a client-reported location failure
// (permission_denied, timeout or unavailable).
func DeviceStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !deviceIDPattern.MatchString(id) {
			return errBadRequest(c, "invalid device id")
		}
		var req statusRequest
		if err := c.BodyParser(&req); err != nil || req.Error == "" {
			return errBadRequest(c, "error is required")
		}
		if err := deps.Devices.ReportError(c.UserContext(), id, domain.ParseLocationCode(req.Error)); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
