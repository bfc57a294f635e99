package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/baseline"
	"github.com/driftguard-ai/driftguard/internal/bus"
	"github.com/driftguard-ai/driftguard/internal/chread"
	"github.com/driftguard-ai/driftguard/internal/engine"
	"github.com/driftguard-ai/driftguard/internal/storage"
	"github.com/driftguard-ai/driftguard/internal/store"
)

// Dependencies holds shared state injected into all HTTP handlers.
//
// The drift and anomaly detectors are shared so their rolling windows
// survive across requests; the baseline comparator is built per request
// because its threshold source can differ per project.
type Dependencies struct {
	Store       *store.Store
	Metrics     *engine.MetricsCalculator
	Compare     *engine.Comparator
	Trends      *engine.TrendTracker // nil disables the trend stage
	Drift       *engine.DriftDetector
	Anomaly     *engine.AnomalyDetector
	Baselines   *baseline.Store
	Thresholds  engine.ThresholdSource
	PipelineCfg engine.PipelineConfig
	Writer      storage.EventWriter
	Reader      *chread.Reader // nil if ClickHouse unavailable
	Bus         *bus.Publisher // nil if NATS unavailable
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Analysis endpoints (auth required via Bearer dgk_ token)
	mux.HandleFunc("POST /v1/analyze", deps.authMiddleware(deps.handleAnalyze))
	mux.HandleFunc("POST /v1/compare", deps.authMiddleware(deps.handleCompare))
	mux.HandleFunc("GET /v1/baselines", deps.authMiddleware(deps.handleListBaselines))
	mux.HandleFunc("GET /v1/baselines/{model_id}", deps.authMiddleware(deps.handleGetBaseline))
	mux.HandleFunc("GET /v1/thresholds", deps.authMiddleware(deps.handleListThresholds))

	// Project CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/driftguard/projects", deps.handleCreateProject)
	mux.HandleFunc("GET /api/driftguard/projects", deps.handleListProjects)
	mux.HandleFunc("GET /api/driftguard/projects/{project_id}", deps.handleGetProject)
	mux.HandleFunc("PATCH /api/driftguard/projects/{project_id}", deps.handleUpdateProject)
	mux.HandleFunc("DELETE /api/driftguard/projects/{project_id}", deps.handleDeleteProject)
	mux.HandleFunc("POST /api/driftguard/projects/{project_id}/rotate-key", deps.handleRotateKey)

	// Analysis config CRUD (no auth)
	mux.HandleFunc("GET /api/driftguard/projects/{project_id}/config", deps.handleGetConfig)
	mux.HandleFunc("PUT /api/driftguard/projects/{project_id}/config", deps.handleReplaceConfig)
	mux.HandleFunc("PATCH /api/driftguard/projects/{project_id}/config", deps.handleUpdateConfig)

	// Events & Analytics (no auth)
	mux.HandleFunc("GET /api/driftguard/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/driftguard/events/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/driftguard/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
