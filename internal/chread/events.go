// Package chread provides read access to the ClickHouse enriched_events
// table: event listing for the API, analytics aggregations, and the raw
// history feed the baseline calculator consumes.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// Reader provides read access to the ClickHouse enriched_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the enriched_events table.
type EventRow struct {
	RequestID           string
	ProjectID           string
	BatchID             string
	ModelID             string
	Timestamp           time.Time
	PromptPreview       string
	ResponseTime        float64
	TokenCount          uint32
	Confidence          float64
	Skipped             uint8
	SkipReason          string
	QualityScore        *float64
	DriftScore          *float64
	DriftDetected       uint8
	DriftSeverity       string
	AnomalyDetected     uint8
	AnomalyCount        uint32
	MaxAnomalyScore     float64
	AnomalySeverity     string
	AnomalyTypes        []string
	CriticalMetrics     []string
	BaselineUnavailable uint8
}

const eventColumns = "request_id, project_id, batch_id, model_id, timestamp, prompt_preview, " +
	"response_time, token_count, confidence, skipped, skip_reason, " +
	"quality_score, drift_score, drift_detected, drift_severity, " +
	"anomaly_detected, anomaly_count, max_anomaly_score, anomaly_severity, anomaly_types, " +
	"critical_metrics, baseline_unavailable"

func scanEvent(rows interface{ Scan(...any) error }, e *EventRow) error {
	return rows.Scan(
		&e.RequestID, &e.ProjectID, &e.BatchID, &e.ModelID, &e.Timestamp, &e.PromptPreview,
		&e.ResponseTime, &e.TokenCount, &e.Confidence, &e.Skipped, &e.SkipReason,
		&e.QualityScore, &e.DriftScore, &e.DriftDetected, &e.DriftSeverity,
		&e.AnomalyDetected, &e.AnomalyCount, &e.MaxAnomalyScore, &e.AnomalySeverity, &e.AnomalyTypes,
		&e.CriticalMetrics, &e.BaselineUnavailable,
	)
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	ProjectID       string
	ModelID         *string
	DriftDetected   *bool
	AnomalyDetected *bool
	Severity        *string
	StartTime       *time.Time
	EndTime         *time.Time
	Page            int
	PageSize        int
}

// ListEvents returns paginated, filtered enriched events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"project_id = @project_id"}
	args := []any{
		clickhouse.Named("project_id", params.ProjectID),
	}

	if params.ModelID != nil {
		conditions = append(conditions, "model_id = @model_id")
		args = append(args, clickhouse.Named("model_id", *params.ModelID))
	}
	if params.DriftDetected != nil {
		conditions = append(conditions, "drift_detected = @drift_detected")
		args = append(args, clickhouse.Named("drift_detected", boolUint8(*params.DriftDetected)))
	}
	if params.AnomalyDetected != nil {
		conditions = append(conditions, "anomaly_detected = @anomaly_detected")
		args = append(args, clickhouse.Named("anomaly_detected", boolUint8(*params.AnomalyDetected)))
	}
	if params.Severity != nil {
		conditions = append(conditions, "(drift_severity = @severity OR anomaly_severity = @severity)")
		args = append(args, clickhouse.Named("severity", *params.Severity))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM enriched_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT %s FROM enriched_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by project ID and request ID, or nil if
// not found.
func (r *Reader) GetEvent(ctx context.Context, projectID, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM enriched_events WHERE project_id = @project_id AND request_id = @request_id",
			eventColumns),
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("request_id", requestID),
	)

	var e EventRow
	if err := scanEvent(row, &e); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// FetchHistory streams the raw interaction history the baseline calculator
// consumes: non-skipped events for a project in [start, end), mapped back
// to engine records. The response preview stands in for the full response
// text when computing centroids.
func (r *Reader) FetchHistory(ctx context.Context, projectID string, start, end time.Time) ([]*engine.EventRecord, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT timestamp, model_id, request_id, response_preview, "+
			"response_time, token_count, confidence "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND skipped = 0 "+
			"AND timestamp >= @start AND timestamp < @end "+
			"ORDER BY timestamp",
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("start", start),
		clickhouse.Named("end", end),
	)
	if err != nil {
		return nil, fmt.Errorf("FetchHistory query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*engine.EventRecord
	for rows.Next() {
		rec := &engine.EventRecord{}
		var tokenCount uint32
		if err := rows.Scan(
			&rec.Timestamp, &rec.ModelID, &rec.RequestID, &rec.Response,
			&rec.ResponseTime, &tokenCount, &rec.ConfidenceScore,
		); err != nil {
			return nil, fmt.Errorf("FetchHistory scan: %w", err)
		}
		rec.TokenCount = int(tokenCount)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalRecords int `json:"total_records"`
	DriftCount   int `json:"drift_count"`
	AnomalyCount int `json:"anomaly_count"`
	Skipped      int `json:"skipped"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// TypeCount holds an anomaly type and its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SeverityCount holds a severity label and its count.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// QualityStats holds quality score percentiles over the last 24h.
type QualityStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ModelCount holds a model_id and its flagged-record count.
type ModelCount struct {
	ModelID string `json:"model_id"`
	Count   int    `json:"count"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	DriftOverTime      []TimeSeriesBucket `json:"drift_over_time"`
	TopAnomalyTypes    []TypeCount        `json:"top_anomaly_types"`
	SeverityBreakdown  []SeverityCount    `json:"severity_breakdown"`
	QualityPercentiles QualityStats       `json:"quality_percentiles"`
	MostAffectedModels []ModelCount       `json:"most_affected_models"`
}

// GetAnalytics returns aggregated analytics for a project over the given
// number of days.
func (r *Reader) GetAnalytics(ctx context.Context, projectID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var total, drift, anomalies, skipped uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(drift_detected = 1) as drift, "+
			"countIf(anomaly_detected = 1) as anomalies, "+
			"countIf(skipped = 1) as skipped "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &drift, &anomalies, &skipped)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalRecords: int(total),
		DriftCount:   int(drift),
		AnomalyCount: int(anomalies),
		Skipped:      int(skipped),
	}

	// Drift over time (hourly)
	dotRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND drift_detected = 1 "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics drift_over_time: %w", err)
	}
	defer func() { _ = dotRows.Close() }()
	for dotRows.Next() {
		var hour time.Time
		var count uint64
		if err := dotRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics drift_over_time scan: %w", err)
		}
		result.DriftOverTime = append(result.DriftOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top anomaly types
	typeRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(anomaly_types) as type, count() as count "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND anomaly_detected = 1 "+
			"AND timestamp >= @range_start "+
			"GROUP BY type ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_anomaly_types: %w", err)
	}
	defer func() { _ = typeRows.Close() }()
	for typeRows.Next() {
		var typ string
		var count uint64
		if err := typeRows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_anomaly_types scan: %w", err)
		}
		result.TopAnomalyTypes = append(result.TopAnomalyTypes, TypeCount{
			Type: typ, Count: int(count),
		})
	}

	// Severity breakdown across drift and anomaly flags
	sevRows, err := r.conn.Query(ctx,
		"SELECT severity, count() as count FROM ("+
			"SELECT drift_severity as severity FROM enriched_events "+
			"WHERE project_id = @project_id AND drift_detected = 1 AND timestamp >= @range_start "+
			"UNION ALL "+
			"SELECT anomaly_severity as severity FROM enriched_events "+
			"WHERE project_id = @project_id AND anomaly_detected = 1 AND timestamp >= @range_start"+
			") GROUP BY severity ORDER BY count DESC",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics severity_breakdown: %w", err)
	}
	defer func() { _ = sevRows.Close() }()
	for sevRows.Next() {
		var sev string
		var count uint64
		if err := sevRows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics severity_breakdown scan: %w", err)
		}
		result.SeverityBreakdown = append(result.SeverityBreakdown, SeverityCount{
			Severity: sev, Count: int(count),
		})
	}

	// Quality percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(quality_score) as p50, "+
			"quantile(0.95)(quality_score) as p95, "+
			"quantile(0.99)(quality_score) as p99 "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND skipped = 0 AND timestamp >= @day_start",
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics quality: %w", err)
	}
	result.QualityPercentiles = QualityStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Most affected models
	modelRows, err := r.conn.Query(ctx,
		"SELECT model_id, count() as count "+
			"FROM enriched_events "+
			"WHERE project_id = @project_id AND (drift_detected = 1 OR anomaly_detected = 1) "+
			"AND timestamp >= @range_start "+
			"GROUP BY model_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_models: %w", err)
	}
	defer func() { _ = modelRows.Close() }()
	for modelRows.Next() {
		var modelID string
		var count uint64
		if err := modelRows.Scan(&modelID, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_models scan: %w", err)
		}
		result.MostAffectedModels = append(result.MostAffectedModels, ModelCount{
			ModelID: modelID, Count: int(count),
		})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.DriftOverTime == nil {
		result.DriftOverTime = []TimeSeriesBucket{}
	}
	if result.TopAnomalyTypes == nil {
		result.TopAnomalyTypes = []TypeCount{}
	}
	if result.SeverityBreakdown == nil {
		result.SeverityBreakdown = []SeverityCount{}
	}
	if result.MostAffectedModels == nil {
		result.MostAffectedModels = []ModelCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}

func boolUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
