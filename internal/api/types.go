package api

import (
	"encoding/json"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// --- POST /v1/analyze request/response ---

// RecordReq is one interaction record in an analyze request.
type RecordReq struct {
	Timestamp       time.Time         `json:"timestamp"`
	ModelID         string            `json:"model_id"`
	RequestID       string            `json:"request_id,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	Response        string            `json:"response"`
	ResponseTime    float64           `json:"response_time"`
	TokenCount      int               `json:"token_count"`
	ConfidenceScore float64           `json:"confidence_score"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// AnalyzeRequest is the JSON body for POST /v1/analyze.
type AnalyzeRequest struct {
	Records []RecordReq `json:"records"`
}

// RecordResultResp is the per-record enrichment in the analyze response.
type RecordResultResp struct {
	RequestID  string `json:"request_id"`
	ModelID    string `json:"model_id"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	Quality     *engine.QualityMetrics       `json:"quality,omitempty"`
	Performance *engine.PerformanceMetrics   `json:"performance,omitempty"`
	Trends      []engine.TrendMetrics        `json:"trends,omitempty"`
	Drift       *engine.DriftResult          `json:"drift,omitempty"`
	Anomaly     *engine.AnomalyResult        `json:"anomaly,omitempty"`
	Comparisons []*engine.BaselineComparison `json:"baseline_comparisons,omitempty"`
}

// AnalyzeResponse is the JSON body returned by POST /v1/analyze.
type AnalyzeResponse struct {
	BatchID   string               `json:"batch_id"`
	Summary   *engine.BatchSummary `json:"summary"`
	Results   []RecordResultResp   `json:"results"`
	LatencyMs float64              `json:"latency_ms"`
}

// --- POST /v1/compare ---

// CompareRequest is the JSON body for POST /v1/compare.
type CompareRequest struct {
	TextA           string `json:"text_a"`
	TextB           string `json:"text_b"`
	Method          string `json:"method,omitempty"` // cosine | euclidean | manhattan
	IncludeAnalysis bool   `json:"include_analysis,omitempty"`
}

// --- Baselines & thresholds ---

// BaselineResp is one model's baseline in GET /v1/baselines.
type BaselineResp struct {
	ModelID         string    `json:"model_id"`
	AvgResponseTime float64   `json:"avg_response_time"`
	StdResponseTime float64   `json:"std_response_time"`
	AvgTokenCount   float64   `json:"avg_token_count"`
	StdTokenCount   float64   `json:"std_token_count"`
	AvgConfidence   float64   `json:"avg_confidence"`
	StdConfidence   float64   `json:"std_confidence"`
	BaselineDate    time.Time `json:"baseline_date"`
	SampleCount     int       `json:"sample_count"`
	HasCentroid     bool      `json:"has_centroid"`
}

// BaselineListResp is the JSON body for GET /v1/baselines.
type BaselineListResp struct {
	Version    int64          `json:"version"`
	ComputedAt time.Time      `json:"computed_at"`
	Baselines  []BaselineResp `json:"baselines"`
}

// ThresholdResp is one metric's threshold in GET /v1/thresholds.
type ThresholdResp struct {
	Metric      string  `json:"metric"`
	Type        string  `json:"type"`
	Warning     float64 `json:"warning"`
	Critical    float64 `json:"critical"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
}

// --- Project CRUD ---

// CreateProjectReq is the JSON body for POST /api/driftguard/projects.
type CreateProjectReq struct {
	Name string `json:"name"`
}

// CreateProjectResp includes the plaintext API key (shown once).
type CreateProjectResp struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKey         string    `json:"api_key"`
	APIKeyPrefix   string    `json:"api_key_prefix"`
	EventsPerMonth *int      `json:"events_per_month"`
	CreatedAt      time.Time `json:"created_at"`
}

// UpdateProjectReq is the JSON body for PATCH /api/driftguard/projects/{id}.
type UpdateProjectReq struct {
	Name           *string `json:"name,omitempty"`
	EventsPerMonth *int    `json:"events_per_month,omitempty"`
}

// ProjectResp is a project without its plaintext key.
type ProjectResp struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKeyPrefix   string    `json:"api_key_prefix"`
	EventsPerMonth *int      `json:"events_per_month"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Analysis config CRUD ---

// UpdateConfigReq is the JSON body for PATCH/PUT config endpoints.
type UpdateConfigReq struct {
	EngineConfig       json.RawMessage `json:"engine_config,omitempty"`
	ThresholdOverrides json.RawMessage `json:"threshold_overrides,omitempty"`
}

// ConfigResp is a project's analysis config.
type ConfigResp struct {
	ID                 string          `json:"id"`
	ProjectID          string          `json:"project_id"`
	EngineConfig       json.RawMessage `json:"engine_config"`
	ThresholdOverrides json.RawMessage `json:"threshold_overrides"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// --- Enriched events ---

// EnrichedEventResp is one stored event in the events listing.
type EnrichedEventResp struct {
	RequestID       string    `json:"request_id"`
	ProjectID       string    `json:"project_id"`
	BatchID         string    `json:"batch_id"`
	ModelID         string    `json:"model_id"`
	Timestamp       time.Time `json:"timestamp"`
	PromptPreview   string    `json:"prompt_preview"`
	ResponseTime    float64   `json:"response_time"`
	TokenCount      int       `json:"token_count"`
	Confidence      float64   `json:"confidence_score"`
	Skipped         bool      `json:"skipped"`
	SkipReason      *string   `json:"skip_reason"`
	QualityScore    *float64  `json:"quality_score"`
	DriftScore      *float64  `json:"drift_score"`
	DriftDetected   bool      `json:"drift_detected"`
	DriftSeverity   *string   `json:"drift_severity"`
	AnomalyDetected bool      `json:"anomaly_detected"`
	AnomalyCount    int       `json:"anomaly_count"`
	MaxAnomalyScore float64   `json:"max_anomaly_score"`
	AnomalySeverity *string   `json:"anomaly_severity"`
	AnomalyTypes    []string  `json:"anomaly_types"`
	CriticalMetrics []string  `json:"critical_metrics"`
	BaselineMissing bool      `json:"baseline_unavailable"`
}

// EventListResp is the paginated events listing.
type EventListResp struct {
	Events   []EnrichedEventResp `json:"events"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
