package engine

import (
	"errors"
	"fmt"
	"time"
)

// EventRecord is a single LLM interaction as received from the ingest
// layer. Records are immutable once ingested; enrichment attaches results
// alongside, it never rewrites the inputs.
type EventRecord struct {
	Timestamp       time.Time         `json:"timestamp"`
	ModelID         string            `json:"model_id"`
	RequestID       string            `json:"request_id"`
	Prompt          string            `json:"prompt"`
	Response        string            `json:"response"`
	ResponseTime    float64           `json:"response_time"` // seconds
	TokenCount      int               `json:"token_count"`
	ConfidenceScore float64           `json:"confidence_score"` // [0,1]
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Validate rejects records that cannot be scored. Rejection is per-record:
// a bad record is flagged and skipped, the batch continues.
func (r *EventRecord) Validate() error {
	if r.ModelID == "" {
		return fmt.Errorf("%w: model_id is empty", ErrInvalidRecord)
	}
	if r.ResponseTime < 0 {
		return fmt.Errorf("%w: response_time %.3f < 0", ErrInvalidRecord, r.ResponseTime)
	}
	if r.TokenCount < 0 {
		return fmt.Errorf("%w: token_count %d < 0", ErrInvalidRecord, r.TokenCount)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence_score %.3f outside [0,1]", ErrInvalidRecord, r.ConfidenceScore)
	}
	return nil
}

// BaselineRecord is the per-model statistical summary the detectors
// compare against. SampleCount == 0 means "no baseline": the means and
// stdevs are undefined, not zero, and detectors must degrade gracefully.
type BaselineRecord struct {
	ModelID         string    `json:"model_id"`
	AvgResponseTime float64   `json:"avg_response_time"`
	StdResponseTime float64   `json:"std_response_time"`
	AvgTokenCount   float64   `json:"avg_token_count"`
	StdTokenCount   float64   `json:"std_token_count"`
	AvgConfidence   float64   `json:"avg_confidence"`
	StdConfidence   float64   `json:"std_confidence"`
	Centroid        []float64 `json:"centroid,omitempty"` // reference text embedding
	BaselineDate    time.Time `json:"baseline_date"`
	SampleCount     int       `json:"sample_count"`
}

// FieldStats returns the baseline mean/stdev for a numeric field name,
// or false if the field has no baseline statistics.
func (b *BaselineRecord) FieldStats(field string) (mean, std float64, ok bool) {
	if b == nil || b.SampleCount == 0 {
		return 0, 0, false
	}
	switch field {
	case FieldResponseTime:
		return b.AvgResponseTime, b.StdResponseTime, true
	case FieldTokenCount:
		return b.AvgTokenCount, b.StdTokenCount, true
	case FieldConfidence:
		return b.AvgConfidence, b.StdConfidence, true
	default:
		return 0, 0, false
	}
}

// Canonical numeric field names accepted by the anomaly detector and
// baseline comparator.
const (
	FieldResponseTime = "response_time"
	FieldTokenCount   = "token_count"
	FieldConfidence   = "confidence_score"
)

// CanonicalFields lists every numeric field in definition order.
var CanonicalFields = []string{FieldResponseTime, FieldTokenCount, FieldConfidence}

// NumericField extracts a canonical numeric field from a record.
func NumericField(r *EventRecord, field string) (float64, bool) {
	switch field {
	case FieldResponseTime:
		return r.ResponseTime, true
	case FieldTokenCount:
		return float64(r.TokenCount), true
	case FieldConfidence:
		return r.ConfidenceScore, true
	default:
		return 0, false
	}
}

// BaselineSource is a read-only view of the baseline store. Implementations
// must return a consistent snapshot for the lifetime of a batch.
type BaselineSource interface {
	// Lookup returns the baseline for a model, or false when none exists.
	Lookup(modelID string) (*BaselineRecord, bool)
}

// ThresholdType says which direction of change is adverse.
type ThresholdType int

const (
	ThresholdUpper ThresholdType = iota + 1 // higher is worse
	ThresholdLower                          // lower is worse
)

func (t ThresholdType) String() string {
	switch t {
	case ThresholdUpper:
		return "upper"
	case ThresholdLower:
		return "lower"
	default:
		return "unspecified"
	}
}

// Threshold is one externally maintained alert threshold row.
type Threshold struct {
	Metric      string
	Type        ThresholdType
	Warning     float64
	Critical    float64
	Unit        string
	Description string
}

// ThresholdSource is a read-only lookup over the threshold table.
type ThresholdSource interface {
	Lookup(metric string) (*Threshold, bool)
}

// DriftResult carries the drift fields attached to an enriched record.
// Score is nil when no baseline exists for the record's model: the record
// is marked unavailable rather than silently scored 0.
type DriftResult struct {
	Score               *float64 `json:"drift_score"`
	Detected            bool     `json:"drift_detected"`
	Severity            string   `json:"drift_severity,omitempty"`
	BaselineSimilarity  *float64 `json:"baseline_similarity,omitempty"`
	RecentSimilarity    *float64 `json:"recent_similarity,omitempty"`
	BaselineUnavailable bool     `json:"baseline_unavailable,omitempty"`
}

// FieldAnomaly is one (field, method) flag raised by an anomaly method.
type FieldAnomaly struct {
	Field   string  `json:"field"`
	Method  string  `json:"method"`
	Score   float64 `json:"score"`
	Details string  `json:"details,omitempty"`
}

// AnomalyResult aggregates anomaly flags for a single record.
type AnomalyResult struct {
	Detected  bool           `json:"anomaly_detected"`
	Count     int            `json:"anomaly_count"`
	MaxScore  float64        `json:"max_anomaly_score"`
	Severity  string         `json:"anomaly_severity"`
	Types     []string       `json:"anomaly_types,omitempty"`
	Anomalies []FieldAnomaly `json:"anomalies,omitempty"`
}

// ComparisonStatus classifies a baseline deviation.
type ComparisonStatus int

const (
	StatusNormal ComparisonStatus = iota + 1
	StatusWarning
	StatusCritical
)

func (s ComparisonStatus) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unspecified"
	}
}

// BaselineComparison is the outcome of comparing a current metric value
// against its stored baseline.
type BaselineComparison struct {
	Metric            string           `json:"metric"`
	CurrentValue      float64          `json:"baseline_current_value"`
	ReferenceValue    float64          `json:"baseline_reference_value"`
	AbsoluteDeviation float64          `json:"baseline_absolute_deviation"`
	PercentageChange  float64          `json:"baseline_percentage_change"`
	Ratio             float64          `json:"baseline_ratio"`
	Status            ComparisonStatus `json:"-"`
	StatusLabel       string           `json:"baseline_comparison_status"`
	DeviationCategory string           `json:"baseline_deviation_category"`
	Trend             string           `json:"baseline_trend"`
	AlertMessage      string           `json:"baseline_alert_message,omitempty"`
	Unavailable       bool             `json:"baseline_unavailable,omitempty"`
}

// QualityMetrics are the derived response-quality sub-scores, each in [0,1].
type QualityMetrics struct {
	ResponseLength     int     `json:"quality_response_length"`
	WordCount          int     `json:"quality_word_count"`
	SentenceCount      int     `json:"quality_sentence_count"`
	AvgWordLength      float64 `json:"quality_avg_word_length"`
	Readability        float64 `json:"quality_readability_score"`
	Coherence          float64 `json:"quality_coherence_score"`
	Completeness       float64 `json:"quality_completeness_score"`
	LanguageQuality    float64 `json:"quality_language_quality"`
	InformationDensity float64 `json:"quality_information_density"`
	OverallScore       float64 `json:"overall_quality_score"`
}

// PerformanceMetrics are the derived throughput/latency metrics.
type PerformanceMetrics struct {
	TokensPerSecond     float64 `json:"perf_tokens_per_second"`
	TimePerToken        float64 `json:"perf_time_per_token"`
	PerformanceCategory string  `json:"perf_performance_category"`
	ConfidenceCategory  string  `json:"perf_confidence_category"`
}

// SimilarityAnalysis is the optional breakdown returned by the semantic
// comparator when include_analysis is set.
type SimilarityAnalysis struct {
	WordOverlap    float64 `json:"word_overlap"`
	LengthRatio    float64 `json:"length_ratio"`
	ShiftMagnitude float64 `json:"shift_magnitude"`
	ShiftDirection string  `json:"shift_direction"`
}

// SimilarityResult is the semantic comparator output.
type SimilarityResult struct {
	Score    float64             `json:"similarity_score"`
	Method   string              `json:"similarity_method"`
	Distance float64             `json:"semantic_distance"`
	Category string              `json:"similarity_category"`
	Analysis *SimilarityAnalysis `json:"analysis,omitempty"`
}

// EnrichedRecord is an EventRecord plus every result the pipeline attached.
type EnrichedRecord struct {
	EventRecord

	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	Quality     *QualityMetrics       `json:"quality,omitempty"`
	Performance *PerformanceMetrics   `json:"performance,omitempty"`
	Trends      []TrendMetrics        `json:"trends,omitempty"`
	Drift       *DriftResult          `json:"drift,omitempty"`
	Similarity  *SimilarityResult     `json:"similarity,omitempty"`
	Anomaly     *AnomalyResult        `json:"anomaly,omitempty"`
	Comparisons []*BaselineComparison `json:"baseline_comparisons,omitempty"`
}

// BatchSummary is the batch-level aggregate handed to the output layer.
// The alerting layer thresholds against these; the core never alerts.
type BatchSummary struct {
	BatchID            string    `json:"batch_id"`
	ProcessedAt        time.Time `json:"processed_at"`
	TotalRecords       int       `json:"total_records"`
	SkippedRecords     int       `json:"skipped_records"`
	DriftCount         int       `json:"drift_count"`
	DriftRate          float64   `json:"drift_rate"`
	AnomalyCount       int       `json:"anomaly_count"`
	AnomalyRate        float64   `json:"anomaly_rate"`
	MaxDriftScore      float64   `json:"max_drift_score"`
	MaxAnomalyScore    float64   `json:"max_anomaly_score"`
	AvgQualityScore    float64   `json:"avg_quality_score"`
	CriticalRecords    int       `json:"critical_records"`
	ElapsedMs          float64   `json:"elapsed_ms"`
	ModelsSeen         []string  `json:"models_seen"`
	BaselineMissingFor []string  `json:"baseline_missing_for,omitempty"`
}

// Sentinel errors. ErrConfig aborts the whole operation before any record
// is scored; ErrInvalidRecord only skips the offending record.
var (
	ErrConfig        = errors.New("invalid configuration")
	ErrInvalidRecord = errors.New("invalid record")
)
