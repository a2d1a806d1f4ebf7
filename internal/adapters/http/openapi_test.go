package http_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// findOpenAPISpec locates the openapi.yaml file by walking up from the test directory.
func findOpenAPISpec(t *testing.T) string {
	dir, _ := os.Getwd()

	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()
	data, err := os.ReadFile(findOpenAPISpec(t))
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI spec: %v", err)
	}
	return spec
}

// TestOpenAPISpec validates the OpenAPI document.
func TestOpenAPISpec(t *testing.T) {
	spec := loadSpec(t)

	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI spec validation failed: %v", err)
	}

	expectedSchemas := []string{
		"Session",
		"Viewport",
		"Coordinate",
		"Post",
		"FeedState",
		"FeedResponse",
		"NavigationTarget",
		"Fix",
		"APIError",
		"Pagination",
	}
	for _, schema := range expectedSchemas {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	if spec.Info.Title != "Discovery Map API" {
		t.Errorf("unexpected title %q", spec.Info.Title)
	}
	if len(spec.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI spec valid: %d paths, %d schemas", len(spec.Paths.Map()), len(spec.Components.Schemas))
}

var routeParam = regexp.MustCompile(`:(\w+)`)

// TestOpenAPI_DocumentsEveryRoute fails when a REST route is registered
// without a matching path in the document.
func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	spec := loadSpec(t)
	app := setupApp(makeDeps(t).deps)

	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead || r.Method == fiber.MethodOptions {
			continue
		}
		if !strings.HasPrefix(r.Path, "/v1/") && r.Path != "/graphql" {
			continue
		}
		path := routeParam.ReplaceAllString(r.Path, "{$1}")
		item := spec.Paths.Find(path)
		if item == nil {
			t.Errorf("%s %s is not documented", r.Method, path)
			continue
		}
		if item.GetOperation(r.Method) == nil {
			t.Errorf("%s %s has no documented operation", r.Method, path)
		}
	}
}

func TestDocs_Served(t *testing.T) {
	app := setupApp(makeDeps(t).deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/docs", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
}
