package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/discoverymap/internal/adapters/http"
	"github.com/samirrijal/discoverymap/internal/adapters/memory"
	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
)

// ---- Mock post source ----

type mockPostSource struct {
	recentFn func(ctx context.Context, identity string) ([]domain.Post, error)
	searchFn func(ctx context.Context, query string, limit int) ([]domain.Post, error)
}

func (m *mockPostSource) RecentPosts(ctx context.Context, identity string) ([]domain.Post, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, identity)
	}
	return nil, nil
}

func (m *mockPostSource) SearchPosts(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func samplePosts() []domain.Post {
	return []domain.Post{
		{ID: "p1", OwnerID: "u1", IsPublic: true, ObjectLabel: "fox", Latitude: 43.068, Longitude: 141.351, CreatedAt: time.Unix(300, 0)},
		{ID: "p2", OwnerID: "u2", IsPublic: true, ObjectLabel: "crow", Latitude: 43.069, Longitude: 141.352, CreatedAt: time.Unix(200, 0)},
		{ID: "p3", OwnerID: "u3", IsPublic: true, ObjectLabel: "owl", Latitude: 43.500, Longitude: 141.900, CreatedAt: time.Unix(100, 0)},
	}
}

// ---- Test helpers ----

type testEnv struct {
	deps    *handler.Dependencies
	devices *memory.Devices
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(t *testing.T, opts ...func(*mockPostSource)) *testEnv {
	t.Helper()
	posts := &mockPostSource{
		recentFn: func(ctx context.Context, identity string) ([]domain.Post, error) {
			return samplePosts(), nil
		},
	}
	for _, o := range opts {
		o(posts)
	}

	devices := memory.NewDevices()
	cfg := usecases.DefaultSessionConfig()
	cfg.Feed.RefreshInterval = 0
	registry := usecases.NewSessionRegistry(cfg, posts, nil, nil, usecases.SessionFactories{
		Positions: devices.Source,
		Handoff:   func(string) ports.HandoffStore { return memory.NewHandoffStore() },
	}, nil)
	t.Cleanup(func() { _ = registry.CloseAll(context.Background()) })

	return &testEnv{
		deps:    &handler.Dependencies{Sessions: registry, Devices: devices},
		devices: devices,
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

type snapshot struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Mounted  bool   `json:"mounted"`
	Viewport struct {
		Center struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"center"`
		Zoom int    `json:"zoom"`
		Mode string `json:"mode"`
	} `json:"viewport"`
	Location *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Feed struct {
		Key struct {
			Scope string `json:"scope"`
			Sort  string `json:"sort"`
			Query string `json:"q"`
		} `json:"key"`
		Status string        `json:"status"`
		Posts  []domain.Post `json:"posts"`
	} `json:"feed"`
	SelectedPostID string       `json:"selected_post_id"`
	SelectedPost   *domain.Post `json:"selected_post"`
	Notice         string       `json:"notice"`
	Version        uint64       `json:"version"`
}

func decodeSnapshot(t *testing.T, body []byte) snapshot {
	t.Helper()
	var s snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, body)
	}
	return s
}

func createSession(t *testing.T, app *fiber.App, body string) snapshot {
	t.Helper()
	code, b := do(t, app, "POST", "/v1/sessions", body)
	if code != 201 {
		t.Fatalf("create session: expected 201, got %d (%s)", code, b)
	}
	return decodeSnapshot(t, b)
}

func getSession(t *testing.T, app *fiber.App, id string) snapshot {
	t.Helper()
	code, b := do(t, app, "GET", "/v1/sessions/"+id, "")
	if code != 200 {
		t.Fatalf("get session: expected 200, got %d (%s)", code, b)
	}
	return decodeSnapshot(t, b)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func waitFeedReady(t *testing.T, app *fiber.App, id string) snapshot {
	t.Helper()
	var s snapshot
	eventually(t, func() bool {
		s = getSession(t, app, id)
		return s.Feed.Status == string(domain.FeedReady)
	}, "feed ready")
	return s
}

func decodeAPIError(t *testing.T, body []byte) string {
	t.Helper()
	var apiErr struct {
		Status int    `json:"status"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return apiErr.Code
}

// ---- Session lifecycle ----

func TestCreateSession_Success(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader(`{"identity":"u1","device_id":"dev-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	s := decodeSnapshot(t, readBody(t, resp.Body))
	if s.ID == "" {
		t.Fatal("expected session id")
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/sessions/"+s.ID {
		t.Errorf("unexpected Location header %q", loc)
	}
	if s.Identity != "u1" || s.Mounted {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if s.Feed.Key.Scope != "all" || s.Feed.Key.Sort != "newest" {
		t.Errorf("expected default feed key, got %+v", s.Feed.Key)
	}
}

func TestCreateSession_BadDeviceID(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	code, body := do(t, app, "POST", "/v1/sessions", `{"device_id":"no spaces allowed"}`)
	if code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
	if c := decodeAPIError(t, body); c != "bad_request" {
		t.Errorf("expected bad_request, got %q", c)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	code, body := do(t, app, "GET", "/v1/sessions/missing", "")
	if code != 404 {
		t.Fatalf("expected 404, got %d", code)
	}
	if c := decodeAPIError(t, body); c != "not_found" {
		t.Errorf("expected not_found, got %q", c)
	}
}

func TestCloseSession(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	if code, _ := do(t, app, "DELETE", "/v1/sessions/"+s.ID, ""); code != 204 {
		t.Fatalf("expected 204, got %d", code)
	}
	if code, _ := do(t, app, "GET", "/v1/sessions/"+s.ID, ""); code != 404 {
		t.Fatalf("expected 404 after close, got %d", code)
	}
	if code, _ := do(t, app, "DELETE", "/v1/sessions/"+s.ID, ""); code != 404 {
		t.Fatalf("expected 404 on second close, got %d", code)
	}
}

func TestListSessions_Pagination(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	for i := 0; i < 3; i++ {
		createSession(t, app, "")
	}

	req := httptest.NewRequest("GET", "/v1/sessions?offset=1&limit=1", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []string `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data) != 1 || result.Pagination.Total != 3 {
		t.Errorf("unexpected page %+v", result)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
}

// ---- Camera ----

func TestZoom_BeforeMount(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	code, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/zoom", `{"zoom":12}`)
	if code != 409 {
		t.Fatalf("expected 409, got %d", code)
	}
	if c := decodeAPIError(t, body); c != "conflict" {
		t.Errorf("expected conflict, got %q", c)
	}
}

func TestMountPanZoom(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	code, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")
	if code != 200 {
		t.Fatalf("mount: expected 200, got %d", code)
	}
	mounted := decodeSnapshot(t, body)
	if !mounted.Mounted || mounted.Viewport.Mode != "following" {
		t.Fatalf("expected mounted following camera, got %+v", mounted)
	}

	code, body = do(t, app, "POST", "/v1/sessions/"+s.ID+"/pan", `{"lat":43.1,"lng":141.4}`)
	if code != 200 {
		t.Fatalf("pan: expected 200, got %d", code)
	}
	panned := decodeSnapshot(t, body)
	if panned.Viewport.Mode != "manual" || panned.Viewport.Center.Lat != 43.1 {
		t.Errorf("expected manual camera at pan target, got %+v", panned.Viewport)
	}

	code, body = do(t, app, "POST", "/v1/sessions/"+s.ID+"/zoom", `{"zoom":99}`)
	if code != 200 {
		t.Fatalf("zoom: expected 200, got %d", code)
	}
	if z := decodeSnapshot(t, body).Viewport.Zoom; z != 20 {
		t.Errorf("expected zoom clamped to 20, got %d", z)
	}
}

func TestPan_InvalidCoordinate(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	for _, body := range []string{`{"lat":91,"lng":0}`, `{"lat":0}`, `not json`} {
		if code, _ := do(t, app, "POST", "/v1/sessions/"+s.ID+"/pan", body); code != 400 {
			t.Errorf("%s: expected 400, got %d", body, code)
		}
	}
}

func TestRecenter_NoDevice(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	code, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/recenter", "")
	if code != 503 {
		t.Fatalf("expected 503, got %d (%s)", code, body)
	}
	if c := decodeAPIError(t, body); c != "recenter_failed" {
		t.Errorf("expected recenter_failed, got %q", c)
	}
}

// ---- Feed ----

func TestFeed_Pagination(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	waitFeedReady(t, app, s.ID)

	req := httptest.NewRequest("GET", "/v1/sessions/"+s.ID+"/feed?offset=1&limit=1", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var feed handler.FeedResponse
	json.NewDecoder(resp.Body).Decode(&feed)
	if feed.Status != domain.FeedReady {
		t.Errorf("expected ready, got %q", feed.Status)
	}
	if len(feed.Data) != 1 || feed.Data[0].ID != "p2" {
		t.Errorf("expected second newest post, got %+v", feed.Data)
	}
	if feed.Pagination.Total != 3 {
		t.Errorf("expected total 3, got %d", feed.Pagination.Total)
	}
}

func TestFeed_BackendErrorIsReported(t *testing.T) {
	env := makeDeps(t, func(m *mockPostSource) {
		m.recentFn = func(ctx context.Context, identity string) ([]domain.Post, error) {
			return nil, fmt.Errorf("backend down")
		}
	})
	app := setupApp(env.deps)
	s := createSession(t, app, "")

	eventually(t, func() bool {
		return getSession(t, app, s.ID).Feed.Status == string(domain.FeedError)
	}, "feed error")

	_, body := do(t, app, "GET", "/v1/sessions/"+s.ID+"/feed", "")
	var feed handler.FeedResponse
	json.Unmarshal(body, &feed)
	if feed.Error == "" || len(feed.Data) != 0 {
		t.Errorf("expected error without posts, got %+v", feed)
	}
}

func TestSetQuery_Search(t *testing.T) {
	env := makeDeps(t, func(m *mockPostSource) {
		m.searchFn = func(ctx context.Context, query string, limit int) ([]domain.Post, error) {
			if query != "fox" {
				return nil, fmt.Errorf("unexpected query %q", query)
			}
			return samplePosts()[:1], nil
		}
	})
	app := setupApp(env.deps)
	s := createSession(t, app, "")

	code, body := do(t, app, "PUT", "/v1/sessions/"+s.ID+"/query", `{"scope":"all","sort":"newest","q":"  fox "}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d (%s)", code, body)
	}
	if q := decodeSnapshot(t, body).Feed.Key.Query; strings.TrimSpace(q) != "fox" {
		t.Errorf("expected search key, got %q", q)
	}

	eventually(t, func() bool {
		snap := getSession(t, app, s.ID)
		return snap.Feed.Status == string(domain.FeedReady) && len(snap.Feed.Posts) == 1
	}, "search results")
}

func TestSetQuery_TooLong(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	body := fmt.Sprintf(`{"q":%q}`, strings.Repeat("x", 201))
	if code, _ := do(t, app, "PUT", "/v1/sessions/"+s.ID+"/query", body); code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestFeedGeoJSON(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	waitFeedReady(t, app, s.ID)
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	req := httptest.NewRequest("GET", "/v1/sessions/"+s.ID+"/feed.geojson?radius=1000", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	json.NewDecoder(resp.Body).Decode(&fc)
	if fc.Type != "FeatureCollection" {
		t.Errorf("expected FeatureCollection, got %q", fc.Type)
	}
	// p3 lies far outside the radius around the default center
	if len(fc.Features) != 2 {
		t.Errorf("expected 2 nearby features, got %d", len(fc.Features))
	}
}

func TestFeedGeoJSON_BadRadius(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	if code, _ := do(t, app, "GET", "/v1/sessions/"+s.ID+"/feed.geojson?radius=50001", ""); code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
}

// ---- Selection and handoff ----

func TestSelectAndClear(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	waitFeedReady(t, app, s.ID)
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	code, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/selection", `{"post_id":"p2"}`)
	if code != 200 {
		t.Fatalf("select: expected 200, got %d", code)
	}
	selected := decodeSnapshot(t, body)
	if selected.SelectedPostID != "p2" || selected.SelectedPost == nil || selected.SelectedPost.ObjectLabel != "crow" {
		t.Errorf("expected p2 resolved from feed, got %+v", selected)
	}
	if selected.Viewport.Mode != "manual" {
		t.Errorf("expected manual camera after select, got %q", selected.Viewport.Mode)
	}

	code, body = do(t, app, "DELETE", "/v1/sessions/"+s.ID+"/selection", "")
	if code != 200 {
		t.Fatalf("clear: expected 200, got %d", code)
	}
	cleared := decodeSnapshot(t, body)
	if cleared.SelectedPostID != "" || cleared.Viewport.Mode != "manual" {
		t.Errorf("expected cleared selection on manual camera, got %+v", cleared)
	}
}

func TestSelect_MissingPostID(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	if code, _ := do(t, app, "POST", "/v1/sessions/"+s.ID+"/selection", `{"post_id":"  "}`); code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestHandoff_AppliedOnMount(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	code, _ := do(t, app, "POST", "/v1/sessions/"+s.ID+"/handoff", `{"post_id":"p3","lat":43.5,"lng":141.9}`)
	if code != 202 {
		t.Fatalf("handoff: expected 202, got %d", code)
	}

	_, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")
	m := decodeSnapshot(t, body)
	if m.SelectedPostID != "p3" {
		t.Errorf("expected p3 selected, got %q", m.SelectedPostID)
	}
	if m.Viewport.Mode != "manual" || m.Viewport.Center.Lat != 43.5 || m.Viewport.Zoom != 18 {
		t.Errorf("expected manual detail camera on target, got %+v", m.Viewport)
	}

	// the mailbox is consumed once
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/unmount", "")
	_, body = do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")
	if again := decodeSnapshot(t, body); again.SelectedPostID != "" {
		t.Errorf("expected no selection on remount, got %q", again.SelectedPostID)
	}
}

func TestHandoff_InvalidTarget(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")

	code, body := do(t, app, "POST", "/v1/sessions/"+s.ID+"/handoff", `{"post_id":"","lat":43.5,"lng":141.9}`)
	if code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
	if c := decodeAPIError(t, body); c != "bad_request" {
		t.Errorf("expected bad_request, got %q", c)
	}
}

// ---- Devices ----

func TestDeviceFix_FollowingCamera(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, `{"device_id":"dev-1"}`)
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	eventually(t, func() bool {
		code, _ := do(t, app, "POST", "/v1/devices/dev-1/fix", `{"lat":43.2,"lng":141.5,"accuracy":5}`)
		if code != 202 {
			t.Fatalf("fix: expected 202, got %d", code)
		}
		snap := getSession(t, app, s.ID)
		return snap.Location != nil && snap.Viewport.Center.Lat == 43.2
	}, "camera follows device")
}

func TestDeviceFix_Invalid(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	tests := []struct {
		path, body string
	}{
		{"/v1/devices/bad%20id/fix", `{"lat":1,"lng":1}`},
		{"/v1/devices/dev-1/fix", `{"lat":1}`},
		{"/v1/devices/dev-1/fix", `{"lat":1,"lng":1,"accuracy":-1}`},
		{"/v1/devices/dev-1/status", `{}`},
	}
	for _, tt := range tests {
		if code, _ := do(t, app, "POST", tt.path, tt.body); code != 400 {
			t.Errorf("%s %s: expected 400, got %d", tt.path, tt.body, code)
		}
	}
}

func TestDeviceStatus_PermissionDenied(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, `{"device_id":"dev-2"}`)
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	eventually(t, func() bool {
		code, _ := do(t, app, "POST", "/v1/devices/dev-2/status", `{"error":"permission_denied"}`)
		if code != 202 {
			t.Fatalf("status: expected 202, got %d", code)
		}
		return getSession(t, app, s.ID).Notice != ""
	}, "location notice")
}

// ---- Health, caching, GraphQL ----

func TestHealthCheck(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=10" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestReadyCheck_NoPostSource(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	code, body := do(t, app, "GET", "/v1/ready", "")
	if code != 503 {
		t.Fatalf("expected 503, got %d", code)
	}
	if !strings.Contains(string(body), "not configured") {
		t.Errorf("expected not configured check, got %s", body)
	}
}

func TestSessions_ETagAndCaching(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	createSession(t, app, "")

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/sessions", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, no-cache" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}

	req := httptest.NewRequest("GET", "/v1/sessions", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected request id header")
	}
}

func TestGraphQL_SessionQuery(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, `{"identity":"u1"}`)
	waitFeedReady(t, app, s.ID)

	payload, _ := json.Marshal(map[string]interface{}{
		"query":     `query($id: String!) { session(session_id: $id) { id identity mounted feed { status posts(limit: 2) { post_id date } } } }`,
		"variables": map[string]interface{}{"id": s.ID},
	})
	code, body := do(t, app, "POST", "/graphql", string(payload))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}

	var result struct {
		Data struct {
			Session struct {
				ID       string `json:"id"`
				Identity string `json:"identity"`
				Feed     struct {
					Status string `json:"status"`
					Posts  []struct {
						PostID string `json:"post_id"`
						Date   string `json:"date"`
					} `json:"posts"`
				} `json:"feed"`
			} `json:"session"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	got := result.Data.Session
	if got.ID != s.ID || got.Identity != "u1" || got.Feed.Status != "ready" {
		t.Errorf("unexpected session %+v", got)
	}
	if len(got.Feed.Posts) != 2 || got.Feed.Posts[0].Date == "" {
		t.Errorf("expected 2 dated posts, got %+v", got.Feed.Posts)
	}
}

func TestGraphQL_Mutation(t *testing.T) {
	app := setupApp(makeDeps(t).deps)
	s := createSession(t, app, "")
	do(t, app, "POST", "/v1/sessions/"+s.ID+"/mount", "")

	payload, _ := json.Marshal(map[string]interface{}{
		"query":     `mutation($id: String!) { zoom(session_id: $id, zoom: 12) { viewport { zoom mode } } }`,
		"variables": map[string]interface{}{"id": s.ID},
	})
	code, body := do(t, app, "POST", "/graphql", string(payload))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(string(body), `"mode":"manual"`) || !strings.Contains(string(body), `"zoom":12`) {
		t.Errorf("unexpected response %s", body)
	}
}

func TestGraphQL_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	if code, _ := do(t, app, "POST", "/graphql", `{"query":""}`); code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	if code, _ := do(t, app, "GET", "/ws/sessions/any", ""); code != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", code)
	}
}
