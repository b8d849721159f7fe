package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/datasource"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
)

func quietTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memoryAudit struct {
	entries []models.UpdateLog
}

func (a *memoryAudit) Append(ctx context.Context, entries []models.UpdateLog) error {
	a.entries = append(a.entries, entries...)
	return nil
}

func (a *memoryAudit) ReadRecent(ctx context.Context, limit int) ([]models.UpdateLog, error) {
	if limit > 0 && limit < len(a.entries) {
		return a.entries[:limit], nil
	}
	return a.entries, nil
}

func testRows(n int) []*models.Row {
	rows := make([]*models.Row, n)
	for i := 0; i < n; i++ {
		rec := "REVIEW"
		if i%2 == 0 {
			rec = "MATCH"
		}
		rows[i] = &models.Row{
			CanvasID:       fmt.Sprintf("CV%04d", i),
			CanvasSSN:      fmt.Sprintf("000-00-%04d", i),
			CanvasName:     fmt.Sprintf("COMPANY %d", i),
			SSNMatch:       100,
			NameScore:      float64(60 + i),
			Recommendation: rec,
		}
	}
	return rows
}

func newTestServer(t *testing.T, n int) (*gin.Engine, *models.Session, *datasource.SpreadsheetDataset) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "matches.csv")
	ds := &datasource.SpreadsheetDataset{Path: path}
	if err := ds.Save(context.Background(), testRows(n)); err != nil {
		t.Fatalf("seed csv: %v", err)
	}

	audit := &memoryAudit{}
	session := models.NewSession(ds, audit, config.DefaultFieldPolicies(), quietTestLogger())
	if _, err := session.SwitchDataset(context.Background(), ds, "test_csv"); err != nil {
		t.Fatalf("SwitchDataset: %v", err)
	}

	registry := &config.DatasourceRegistry{
		Datasources: map[string]config.DatasourceConfig{
			"test_csv": {Name: "Test CSV", SourceType: "csv", FilePath: path},
		},
		Active: "test_csv",
	}

	r := gin.New()
	registerRoutes(r, session, registry, audit)
	return r, session, ds
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	parsed := map[string]any{}
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("%s %s: bad json response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, parsed
}

func TestRecordsEndpointPagesAndFilters(t *testing.T) {
	r, _, _ := newTestServer(t, 10)

	w, body := doJSON(t, r, http.MethodGet, "/api/records?draw=7&start=0&length=3&recommendation=MATCH", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if body["draw"].(float64) != 7 {
		t.Fatalf("draw = %v", body["draw"])
	}
	if body["recordsTotal"].(float64) != 10 {
		t.Fatalf("recordsTotal = %v", body["recordsTotal"])
	}
	if body["recordsFiltered"].(float64) != 5 {
		t.Fatalf("recordsFiltered = %v", body["recordsFiltered"])
	}
	if data := body["data"].([]any); len(data) != 3 {
		t.Fatalf("page length = %d", len(data))
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("missing no-cache headers: %q", cc)
	}
}

func TestEditEndpointStatusCodes(t *testing.T) {
	r, session, _ := newTestServer(t, 3)

	w, body := doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 0, "field": "jib", "value": 1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("deferred edit status = %d: %s", w.Code, w.Body.String())
	}
	if body["pending_count"].(float64) != 1 {
		t.Fatalf("pending_count = %v", body["pending_count"])
	}
	if !session.IsDirty() {
		t.Fatalf("session not dirty after edit")
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 0, "field": "canvas_name", "value": "X"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("read-only edit status = %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 42, "field": "memo", "value": "x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("bad row status = %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/edit", `{"field": "memo"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing row_id status = %d", w.Code)
	}
}

func TestSaveEndpointPersistsToBackend(t *testing.T) {
	r, _, ds := newTestServer(t, 3)

	doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 1, "field": "memo", "value": "call back"}`)
	w, body := doJSON(t, r, http.MethodPost, "/api/save", "")
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}
	if body["saved_count"].(float64) != 1 || body["pending_count"].(float64) != 0 {
		t.Fatalf("save body = %v", body)
	}

	rows, err := ds.Load(context.Background())
	if err != nil {
		t.Fatalf("reload csv: %v", err)
	}
	if rows[1].Memo != "call back" {
		t.Fatalf("memo not persisted: %q", rows[1].Memo)
	}
}

func TestUndoRedoEndpoints(t *testing.T) {
	r, session, _ := newTestServer(t, 2)

	doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 0, "field": "memo", "value": "draft"}`)
	w, body := doJSON(t, r, http.MethodPost, "/api/undo", "")
	if w.Code != http.StatusOK || body["applied"] != true {
		t.Fatalf("undo = %d %v", w.Code, body)
	}
	row, _ := session.Record(0)
	if row.Memo != "" {
		t.Fatalf("memo after undo = %q", row.Memo)
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/redo", "")
	if w.Code != http.StatusOK || body["applied"] != true {
		t.Fatalf("redo = %d %v", w.Code, body)
	}
	row, _ = session.Record(0)
	if row.Memo != "draft" {
		t.Fatalf("memo after redo = %q", row.Memo)
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/undo", "")
	doJSON(t, r, http.MethodPost, "/api/undo", "")
	w, body = doJSON(t, r, http.MethodPost, "/api/undo", "")
	if body["applied"] != false {
		t.Fatalf("undo past bottom = %v", body)
	}
}

func TestSearchReplaceEndpoint(t *testing.T) {
	r, session, _ := newTestServer(t, 4)

	doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 0, "field": "memo", "value": "acme site"}`)
	doJSON(t, r, http.MethodPost, "/api/edit", `{"row_id": 1, "field": "memo", "value": "ACME hq"}`)

	w, body := doJSON(t, r, http.MethodPost, "/api/search_replace",
		`{"term": "acme", "mode": "find", "column": "memo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("find status = %d: %s", w.Code, w.Body.String())
	}
	if body["match_count"].(float64) != 2 {
		t.Fatalf("match_count = %v", body["match_count"])
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/search_replace",
		`{"term": "acme", "replacement": "Apex", "mode": "replace_all", "column": "memo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("replace_all status = %d: %s", w.Code, w.Body.String())
	}
	if body["replaced_count"].(float64) != 2 || body["affected_row_count"].(float64) != 2 {
		t.Fatalf("replace_all body = %v", body)
	}
	row0, _ := session.Record(0)
	row1, _ := session.Record(1)
	if row0.Memo != "Apex site" || row1.Memo != "Apex hq" {
		t.Fatalf("memos = %q / %q", row0.Memo, row1.Memo)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/search_replace",
		`{"term": "x", "mode": "replace_all", "column": "canvas_name"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("read-only replace status = %d", w.Code)
	}
}

func TestRecordAndStatsEndpoints(t *testing.T) {
	r, _, _ := newTestServer(t, 4)

	w, body := doJSON(t, r, http.MethodGet, "/api/record/2", "")
	if w.Code != http.StatusOK || body["canvas_id"] != "CV0002" {
		t.Fatalf("record = %d %v", w.Code, body)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/record/99", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing record status = %d", w.Code)
	}

	w, body = doJSON(t, r, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK || body["total_records"].(float64) != 4 {
		t.Fatalf("stats = %d %v", w.Code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	var recs []string
	if err := json.Unmarshal(w2.Body.Bytes(), &recs); err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(recs) != 2 || recs[0] != "MATCH" || recs[1] != "REVIEW" {
		t.Fatalf("recommendations = %v", recs)
	}
}

func TestDatasourceEndpoints(t *testing.T) {
	r, session, _ := newTestServer(t, 3)

	w, body := doJSON(t, r, http.MethodGet, "/api/datasources", "")
	if w.Code != http.StatusOK || body["active"] != "test_csv" {
		t.Fatalf("datasources = %d %v", w.Code, body)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/switch_datasource", `{"source_id": "missing"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown source status = %d", w.Code)
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/switch_datasource", `{"source_id": "test_csv"}`)
	if w.Code != http.StatusOK || body["records"].(float64) != 3 {
		t.Fatalf("switch = %d %v", w.Code, body)
	}
	if session.SourceID() != "test_csv" {
		t.Fatalf("source id = %q", session.SourceID())
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	r, _, _ := newTestServer(t, 1)
	w, body := doJSON(t, r, http.MethodGet, "/api/nope", "")
	if w.Code != http.StatusNotFound || body["error"] != "route not found" {
		t.Fatalf("no-route response = %d %v", w.Code, body)
	}
}
