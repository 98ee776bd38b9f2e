package api

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// TestOpenAPIDrift walks the chi router and compares the registered routes
// against the spec embedded in api/openapi.yaml, failing on undocumented
// routes and on stale spec paths. Doc-serving routes (/openapi.yaml, /docs,
// /redoc) are not part of the API contract and are skipped.
func TestOpenAPIDrift(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]interface{} `yaml:"paths"`
	}
	if err := yaml.Unmarshal(openapiSpec, &doc); err != nil {
		t.Fatalf("failed to parse openapi.yaml: %v", err)
	}

	// Collect {METHOD PATH} pairs from the spec, skipping extension keys
	// (x-...) and the shared "parameters" key.
	specRoutes := make(map[string]bool)
	for path, methods := range doc.Paths {
		for method := range methods {
			lower := strings.ToLower(method)
			if strings.HasPrefix(lower, "x-") || lower == "parameters" {
				continue
			}
			specRoutes[strings.ToUpper(method)+" "+path] = true
		}
	}

	// Router() only registers routes — it never invokes handlers — so a
	// zero-value API with nil dependencies is enough to walk.
	a := &API{}

	chiRoutes := make(map[string]bool)
	err := chi.Walk(a.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
		if route == "/openapi.yaml" ||
			strings.HasPrefix(route, "/docs") ||
			strings.HasPrefix(route, "/redoc") {
			return nil
		}
		// chi uses {param} which matches OpenAPI's path template format.
		chiRoutes[method+" "+route] = true
		return nil
	})
	if err != nil {
		t.Fatalf("chi.Walk failed: %v", err)
	}

	diff := func(have, want map[string]bool) []string {
		var missing []string
		for route := range have {
			if !want[route] {
				missing = append(missing, route)
			}
		}
		sort.Strings(missing)
		return missing
	}

	if undocumented := diff(chiRoutes, specRoutes); len(undocumented) > 0 {
		t.Errorf("routes registered in Router() but missing from openapi.yaml:\n  %s",
			strings.Join(undocumented, "\n  "))
	}
	if stale := diff(specRoutes, chiRoutes); len(stale) > 0 {
		t.Errorf("routes in openapi.yaml but not registered in Router():\n  %s",
			strings.Join(stale, "\n  "))
	}
}
