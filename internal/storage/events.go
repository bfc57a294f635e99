package storage

import (
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// EventWriter is the interface for persisting enriched events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *EnrichedEvent)
	Close()
}

// EnrichedEvent is one scored interaction flattened for columnar storage.
// Nullable analysis outputs stay pointers so "not scored" survives the
// round trip as NULL, never as a zero score.
type EnrichedEvent struct {
	RequestID       string
	ProjectID       string
	BatchID         string
	ModelID         string
	Timestamp       time.Time
	PromptPreview   string // first 500 chars
	ResponsePreview string // first 500 chars, feeds baseline recalculation
	ResponseLength  uint32
	ResponseTime    float64
	TokenCount      uint32
	Confidence      float64

	Skipped    bool
	SkipReason string

	QualityScore    *float64
	Readability     *float64
	Coherence       *float64
	TokensPerSecond *float64

	DriftScore          *float64
	DriftDetected       bool
	DriftSeverity       string
	BaselineSimilarity  *float64
	RecentSimilarity    *float64
	BaselineUnavailable bool

	AnomalyDetected bool
	AnomalyCount    uint32
	MaxAnomalyScore float64
	AnomalySeverity string
	AnomalyTypes    []string

	ComparisonStatuses []string // metric=status pairs
	CriticalMetrics    []string

	Metadata map[string]string
}

// PreviewLength is the max chars stored in prompt_preview.
const PreviewLength = 500

// TruncatePreview returns the first N characters (runes) of a text for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePreview(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

// FromEnriched flattens a pipeline result into a storage row.
func FromEnriched(rec *engine.EnrichedRecord, projectID, batchID string) *EnrichedEvent {
	e := &EnrichedEvent{
		RequestID:       rec.RequestID,
		ProjectID:       projectID,
		BatchID:         batchID,
		ModelID:         rec.ModelID,
		Timestamp:       rec.Timestamp,
		PromptPreview:   TruncatePreview(rec.Prompt, PreviewLength),
		ResponsePreview: TruncatePreview(rec.Response, PreviewLength),
		ResponseLength:  uint32(len(rec.Response)),
		ResponseTime:    rec.ResponseTime,
		TokenCount:      uint32(rec.TokenCount),
		Confidence:      rec.ConfidenceScore,
		Skipped:         rec.Skipped,
		SkipReason:      rec.SkipReason,
		Metadata:        rec.Metadata,
	}

	if q := rec.Quality; q != nil {
		e.QualityScore = &q.OverallScore
		e.Readability = &q.Readability
		e.Coherence = &q.Coherence
	}
	if p := rec.Performance; p != nil {
		e.TokensPerSecond = &p.TokensPerSecond
	}
	if d := rec.Drift; d != nil {
		e.DriftScore = d.Score
		e.DriftDetected = d.Detected
		e.DriftSeverity = d.Severity
		e.BaselineSimilarity = d.BaselineSimilarity
		e.RecentSimilarity = d.RecentSimilarity
		e.BaselineUnavailable = d.BaselineUnavailable
	}
	if a := rec.Anomaly; a != nil {
		e.AnomalyDetected = a.Detected
		e.AnomalyCount = uint32(a.Count)
		e.MaxAnomalyScore = a.MaxScore
		e.AnomalySeverity = a.Severity
		e.AnomalyTypes = a.Types
	}
	for _, cmp := range rec.Comparisons {
		if cmp.Unavailable {
			e.BaselineUnavailable = true
			continue
		}
		e.ComparisonStatuses = append(e.ComparisonStatuses, cmp.Metric+"="+cmp.StatusLabel)
		if cmp.Status == engine.StatusCritical {
			e.CriticalMetrics = append(e.CriticalMetrics, cmp.Metric)
		}
	}
	return e
}
