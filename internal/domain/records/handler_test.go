package records

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/match"
	"github.com/labtrend/labtrend/internal/normalize"
)

func newTestHandler(repo SnapshotRepository) (*Handler, *echo.Echo) {
	svc := NewService(&mockLoader{batch: testBatch()}, "/data", match.New(normalize.Default()), repo, zerolog.Nop())
	svc.Replace(testCorpus(), SourceFiles)
	return NewHandler(svc), echo.New()
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_ListRecords(t *testing.T) {
	h, e := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data    []SeriesSummary `json:"data"`
		Total   int             `json:"total"`
		HasMore bool            `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 4 || len(body.Data) != 2 || !body.HasMore {
		t.Errorf("unexpected page: %+v", body)
	}
	if body.Data[0].Name != "Urine Calcium" {
		t.Errorf("expected sorted page starting at Urine Calcium, got %s", body.Data[0].Name)
	}
}

func TestHandler_ListRecords_InvalidCategory(t *testing.T) {
	h, e := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?category=imaging", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPError(t, h.ListRecords(c), http.StatusBadRequest)
}

func TestHandler_GetRecord_EscapedName(t *testing.T) {
	h, e := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("WBC%27S%20AUTO")

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s Series
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Name != "WBC'S AUTO" || len(s.Entries) != 1 {
		t.Errorf("unexpected series: %+v", s)
	}
}

func TestHandler_GetRecord_NotFound(t *testing.T) {
	h, e := newTestHandler(nil)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("name")
	c.SetParamValues("Ferritin")

	expectHTTPError(t, h.GetRecord(c), http.StatusNotFound)
}

func TestHandler_GetChart(t *testing.T) {
	h, e := newTestHandler(nil)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("name")
	c.SetParamValues("Glucose")
	if err := h.GetChart(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"points"`) {
		t.Errorf("expected chart body, got %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("name")
	c.SetParamValues("Urine Calcium")
	expectHTTPError(t, h.GetChart(c), http.StatusUnprocessableEntity)
}

func TestHandler_GetReport_PlainText(t *testing.T) {
	h, e := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMETextPlain)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("Glucose")

	if err := h.GetReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextPlain) {
		t.Errorf("expected text/plain, got %s", rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Body.String(), "105") {
		t.Errorf("expected report text to list values, got %q", rec.Body.String())
	}
}

func TestHandler_Query(t *testing.T) {
	h, e := newTestHandler(nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/query?q=calcium+urine", nil), rec)

	if err := h.Query(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Tier != match.TierAllWords.String() || len(res.Matches) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHandler_Query_NoMatch(t *testing.T) {
	h, e := newTestHandler(nil)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/query?q=zzzz", nil), httptest.NewRecorder())

	err := h.Query(c)
	expectHTTPError(t, err, http.StatusNotFound)
	if msg := err.(*echo.HTTPError).Message; msg != "no match" {
		t.Errorf("expected explicit no match message, got %v", msg)
	}
}

func TestHandler_Query_Missing(t *testing.T) {
	h, e := newTestHandler(nil)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/query", nil), httptest.NewRecorder())

	expectHTTPError(t, h.Query(c), http.StatusBadRequest)
}

func TestHandler_ListAbnormal(t *testing.T) {
	h, e := newTestHandler(nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/abnormal", nil), rec)

	if err := h.ListAbnormal(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var groups []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 1 || groups[0]["name"] != "Glucose" {
		t.Errorf("unexpected groups: %v", groups)
	}
}

func TestHandler_Reload(t *testing.T) {
	h, e := newTestHandler(nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil), rec)

	if err := h.Reload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var status LoadStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Source != SourceFiles || status.Names != 4 || status.BatchID == nil {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestHandler_Snapshots_NoRepository(t *testing.T) {
	h, e := newTestHandler(nil)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil), httptest.NewRecorder())

	expectHTTPError(t, h.ListSnapshots(c), http.StatusServiceUnavailable)
}

func TestHandler_SnapshotLifecycle(t *testing.T) {
	h, e := newTestHandler(newMockSnapshotRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", strings.NewReader(`{"label":"june"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.CreateSnapshot(e.NewContext(req, rec)); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Label != "june" || snap.Entries != 6 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil), rec)
	if err := h.ListSnapshots(c); err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if !strings.Contains(rec.Body.String(), snap.ID.String()) {
		t.Errorf("expected snapshot in list, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(snap.ID.String())
	if err := h.RestoreSnapshot(c); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"source":"snapshot"`) {
		t.Errorf("unexpected restore body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(snap.ID.String())
	if err := h.DeleteSnapshot(c); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(snap.ID.String())
	expectHTTPError(t, h.DeleteSnapshot(c), http.StatusNotFound)
}

func TestHandler_Snapshot_InvalidID(t *testing.T) {
	h, e := newTestHandler(newMockSnapshotRepo())
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	expectHTTPError(t, h.RestoreSnapshot(c), http.StatusBadRequest)
}

func TestHandler_Snapshot_UnknownID(t *testing.T) {
	h, e := newTestHandler(newMockSnapshotRepo())
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	expectHTTPError(t, h.RestoreSnapshot(c), http.StatusNotFound)
}
