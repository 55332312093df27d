package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestGenerator() *Generator {
	g := NewGenerator("labtrend API", "1.0.0", "http://localhost:8000/api/v1")
	g.AddSchemas(map[string]interface{}{
		"Series": Object(map[string]interface{}{
			"name":    String(),
			"entries": ArrayOf("Entry"),
		}, "name"),
		"Entry": Object(map[string]interface{}{"Date": String()}),
	})
	g.Add(
		Operation{
			Method: http.MethodGet, Path: "/records/:name", Tag: "records", Role: "reader",
			Summary:  "Get one series",
			Params:   []Param{{Name: "name", In: "path"}},
			Response: "Series",
		},
		Operation{
			Method: http.MethodDelete, Path: "/snapshots/:id", Tag: "snapshots", Role: "admin",
			Summary: "Delete a snapshot",
			Params:  []Param{{Name: "id", In: "path"}},
			Status:  http.StatusNoContent,
		},
		Operation{
			Method: http.MethodGet, Path: "/abnormal", Tag: "records",
			Summary: "Abnormal results", Response: "[]Series",
		},
	)
	return g
}

func TestPathTemplate(t *testing.T) {
	tests := map[string]string{
		"/records":               "/records",
		"/records/:name/chart":   "/records/{name}/chart",
		"/snapshots/:id/restore": "/snapshots/{id}/restore",
		"/a/:first_id/b/:second": "/a/{first_id}/b/{second}",
	}
	for in, want := range tests {
		if got := PathTemplate(in); got != want {
			t.Errorf("PathTemplate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOperationID(t *testing.T) {
	op := Operation{Method: http.MethodGet, Path: "/records/:name/chart"}
	if got := operationID(op); got != "getRecordsNameChart" {
		t.Errorf("operationID = %q", got)
	}
	op = Operation{Method: http.MethodPost, Path: "/snapshots/:id/restore"}
	if got := operationID(op); got != "postSnapshotsIdRestore" {
		t.Errorf("operationID = %q", got)
	}
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi 3.0.3, got %v", spec["openapi"])
	}
	info := spec["info"].(map[string]interface{})
	if info["title"] != "labtrend API" || info["version"] != "1.0.0" {
		t.Errorf("unexpected info: %v", info)
	}
	tags := spec["tags"].([]map[string]string)
	if len(tags) != 2 || tags[0]["name"] != "records" || tags[1]["name"] != "snapshots" {
		t.Errorf("unexpected tags: %v", tags)
	}

	paths := spec["paths"].(map[string]interface{})
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	get := paths["/records/{name}"].(map[string]interface{})["get"].(map[string]interface{})
	params := get["parameters"].([]map[string]interface{})
	if params[0]["required"] != true {
		t.Error("path parameters must be required")
	}
	responses := get["responses"].(map[string]interface{})
	for _, code := range []string{"200", "401", "403"} {
		if _, ok := responses[code]; !ok {
			t.Errorf("missing %s response", code)
		}
	}
	if get["x-required-role"] != "reader" {
		t.Errorf("x-required-role = %v", get["x-required-role"])
	}
}

func TestGenerateSpec_NoContentAndArrays(t *testing.T) {
	paths := newTestGenerator().GenerateSpec()["paths"].(map[string]interface{})

	del := paths["/snapshots/{id}"].(map[string]interface{})["delete"].(map[string]interface{})
	resp := del["responses"].(map[string]interface{})["204"].(map[string]interface{})
	if _, ok := resp["content"]; ok {
		t.Error("204 response must not declare content")
	}

	abn := paths["/abnormal"].(map[string]interface{})["get"].(map[string]interface{})
	if _, ok := abn["security"]; ok {
		t.Error("operation without a role must not declare security")
	}
	ok200 := abn["responses"].(map[string]interface{})["200"].(map[string]interface{})
	schema := ok200["content"].(map[string]interface{})[echo.MIMEApplicationJSON].(map[string]interface{})["schema"].(map[string]interface{})
	if schema["type"] != "array" {
		t.Errorf("expected array schema, got %v", schema)
	}
}

func TestRegisterRoutes_ServesJSON(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	schemas := doc["components"].(map[string]interface{})["schemas"].(map[string]interface{})
	for _, name := range []string{"Series", "Entry", "Error"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("missing schema %s", name)
		}
	}
}
