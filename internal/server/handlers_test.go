package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/config"
	"github.com/veridata/veridata/internal/db"
	"github.com/veridata/veridata/internal/engine"
	"github.com/veridata/veridata/internal/quality"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Only the missing-data detector runs so the seeded dataset below maps
	// to exactly one anomaly.
	cfg := quality.DefaultDetectionConfig()
	cfg.EnableDuplicate = false
	cfg.EnableOutlier = false
	cfg.EnableTemporal = false
	cfg.EnablePattern = false

	eng, err := engine.New(cfg, store, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv, err := NewServer(config.DefaultConfig(), eng, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	return srv, mux
}

// detectBody builds a detect request whose dataset has a column with enough
// nulls to trip the missing-data gate.
func detectBody(t *testing.T) []byte {
	t.Helper()
	values := make([]any, 100)
	for i := range values {
		values[i] = float64(100 + i)
	}
	for _, i := range []int{3, 17, 42, 55, 71, 90} {
		values[i] = nil
	}
	body, err := json.Marshal(DetectRequest{
		DataSource: "feed-a",
		Symbol:     "ABC",
		DataType:   "trades",
		Columns:    []ColumnPayload{{Name: "price", Kind: "numeric", Values: values}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHandleDetect(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", bytes.NewReader(detectBody(t)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp DetectResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(resp.Anomalies))
	}
	rec := resp.Anomalies[0]
	if rec.Kind != quality.KindMissingData || rec.Severity != quality.SeverityMedium {
		t.Errorf("got %s/%s", rec.Kind, rec.Severity)
	}
	if len(rec.Suggestions) != 1 || rec.Suggestions[0].Action != quality.ActionInterpolate {
		t.Errorf("suggestions = %+v", rec.Suggestions)
	}
}

func TestHandleDetectValidation(t *testing.T) {
	_, mux := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing data_source", `{"columns":[]}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
		{"unknown column kind", `{"data_source":"a","columns":[{"name":"x","kind":"blob","values":[]}]}`, http.StatusBadRequest},
		{"non-numeric value", `{"data_source":"a","columns":[{"name":"x","kind":"numeric","values":["oops"]}]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", bytes.NewReader([]byte(tc.body)))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/detect", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rr.Code)
	}
}

func TestAnomalyEndpoints(t *testing.T) {
	_, mux := newTestServer(t)

	// Seed one anomaly through the detect endpoint.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", bytes.NewReader(detectBody(t)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	var seeded DetectResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &seeded); err != nil || len(seeded.Anomalies) == 0 {
		t.Fatalf("seed failed: %v %s", err, rr.Body.String())
	}
	id := seeded.Anomalies[0].ID

	// List.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?hours=24&limit=10", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listResp struct {
		Count     int                      `json:"count"`
		Anomalies []*quality.AnomalyRecord `json:"anomalies"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if listResp.Count != 1 || listResp.Anomalies[0].ID != id {
		t.Errorf("list = %+v", listResp)
	}

	// Fetch by id.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/"+id, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	// Unknown id.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/nope", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", rr.Code)
	}

	// Trigger repair.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/anomalies/"+id+"/repair", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("repair status = %d: %s", rr.Code, rr.Body.String())
	}
	var repairResp struct {
		Repaired bool                  `json:"repaired"`
		Result   *quality.RepairResult `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &repairResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !repairResp.Repaired || repairResp.Result == nil {
		t.Errorf("repair = %+v", repairResp)
	}

	// A second repair hits the already-resolved precondition.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/anomalies/"+id+"/repair", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if err := json.Unmarshal(rr.Body.Bytes(), &repairResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if repairResp.Repaired || repairResp.Result != nil {
		t.Errorf("second repair = %+v", repairResp)
	}
}

func TestHandleStatistics(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var stats engine.Statistics
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TotalAnomalies != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleCleanup(t *testing.T) {
	_, mux := newTestServer(t)

	// Seed and then sweep everything.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", bytes.NewReader(detectBody(t)))
	mux.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cleanup?days=0", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	var listResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if listResp.Count != 0 {
		t.Errorf("count = %d after cleanup", listResp.Count)
	}
}

func TestHandleHealth(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rr.Code)
	}
}

func TestHandleReadyBeforeStart(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before Start", rr.Code)
	}
}

func TestBuildTableTimestampFormats(t *testing.T) {
	tbl, err := buildTable([]ColumnPayload{{
		Name:   "ts",
		Kind:   "timestamp",
		Values: []any{"2026-03-01T00:00:00Z", float64(1772323260)},
	}})
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	col := tbl.Column("ts")
	if col == nil || col.Len() != 2 {
		t.Fatalf("column = %+v", col)
	}
	if !col.Times[1].After(col.Times[0]) {
		t.Errorf("times = %v", col.Times)
	}
}
