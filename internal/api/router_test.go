package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/baseline"
	"github.com/driftguard-ai/driftguard/internal/chread"
)

func testRouter() http.Handler {
	return NewRouter(&Dependencies{
		Baselines: baseline.NewStore(),
		Logger:    zap.NewNop(),
		CacheTTL:  time.Minute,
	})
}

func TestRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestRouter_AnalyzeRequiresAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcg=="},
		{"wrong prefix", "Bearer tsk_0123456789abcdef"},
		{"too short", "Bearer dgk"},
	}
	router := testRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/analyze", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/v1/analyze", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers on preflight")
	}
}

func TestRouter_EventsWithoutReader(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/api/driftguard/events?project_id=p1", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without ClickHouse reader, got %d", rec.Code)
	}
}

func TestRouter_EventsRequiresProjectID(t *testing.T) {
	deps := &Dependencies{
		Baselines: baseline.NewStore(),
		Reader:    &chread.Reader{},
		Logger:    zap.NewNop(),
		CacheTTL:  time.Minute,
	}
	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest("GET", "/api/driftguard/events", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without project_id, got %d", rec.Code)
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"page": {"3"}, "bad": {"abc"}}

	if got := queryInt(q, "page", 1); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := queryInt(q, "bad", 7); got != 7 {
		t.Errorf("expected default on parse failure, got %d", got)
	}
	if got := queryInt(q, "missing", 5); got != 5 {
		t.Errorf("expected default on missing key, got %d", got)
	}
}

func TestEventRowToResp(t *testing.T) {
	quality := 0.81
	drift := 0.42
	row := chread.EventRow{
		RequestID:           "req-1",
		ProjectID:           "proj-1",
		BatchID:             "batch-1",
		ModelID:             "gpt-x",
		PromptPreview:       "hello",
		ResponseTime:        1.5,
		TokenCount:          120,
		Confidence:          0.9,
		Skipped:             0,
		QualityScore:        &quality,
		DriftScore:          &drift,
		DriftDetected:       1,
		DriftSeverity:       "medium",
		AnomalyDetected:     0,
		AnomalySeverity:     "",
		AnomalyTypes:        nil,
		BaselineUnavailable: 0,
	}

	resp := eventRowToResp(row)

	if !resp.DriftDetected || resp.DriftSeverity == nil || *resp.DriftSeverity != "medium" {
		t.Errorf("drift fields mismatched: %+v", resp)
	}
	if resp.AnomalySeverity != nil {
		t.Error("empty severity should map to nil")
	}
	if resp.AnomalyTypes == nil || resp.CriticalMetrics == nil {
		t.Error("nil slices should be mapped to empty, not null")
	}
	if resp.TokenCount != 120 || resp.QualityScore == nil || *resp.QualityScore != 0.81 {
		t.Errorf("numeric fields mismatched: %+v", resp)
	}
	if resp.Skipped || resp.SkipReason != nil {
		t.Errorf("skip fields mismatched: %+v", resp)
	}
}
