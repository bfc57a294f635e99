package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes enriched events to ClickHouse asynchronously.
// Write() is non-blocking — events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *EnrichedEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background
// flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is in the DSN; enforce it here
	// so managed deployments on 9440 never fall back to plaintext.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *EnrichedEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an enriched event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *EnrichedEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*EnrichedEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain remaining events from buffer
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*EnrichedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO enriched_events (
			request_id, project_id, batch_id, model_id, timestamp,
			prompt_preview, response_preview, response_length, response_time, token_count, confidence,
			skipped, skip_reason,
			quality_score, readability, coherence, tokens_per_second,
			drift_score, drift_detected, drift_severity,
			baseline_similarity, recent_similarity, baseline_unavailable,
			anomaly_detected, anomaly_count, max_anomaly_score, anomaly_severity, anomaly_types,
			comparison_statuses, critical_metrics, metadata
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.ProjectID,
			e.BatchID,
			e.ModelID,
			e.Timestamp,
			e.PromptPreview,
			e.ResponsePreview,
			e.ResponseLength,
			e.ResponseTime,
			e.TokenCount,
			e.Confidence,
			boolUint8(e.Skipped),
			e.SkipReason,
			e.QualityScore,
			e.Readability,
			e.Coherence,
			e.TokensPerSecond,
			e.DriftScore,
			boolUint8(e.DriftDetected),
			e.DriftSeverity,
			e.BaselineSimilarity,
			e.RecentSimilarity,
			boolUint8(e.BaselineUnavailable),
			boolUint8(e.AnomalyDetected),
			e.AnomalyCount,
			e.MaxAnomalyScore,
			e.AnomalySeverity,
			e.AnomalyTypes,
			e.ComparisonStatuses,
			e.CriticalMetrics,
			e.Metadata,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// boolUint8 converts to the UInt8 column representation.
func boolUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *EnrichedEvent) {
	fields := []zap.Field{
		zap.String("request_id", event.RequestID),
		zap.String("project_id", event.ProjectID),
		zap.String("batch_id", event.BatchID),
		zap.String("model_id", event.ModelID),
		zap.Bool("skipped", event.Skipped),
		zap.Bool("drift_detected", event.DriftDetected),
		zap.Bool("anomaly_detected", event.AnomalyDetected),
		zap.String("anomaly_severity", event.AnomalySeverity),
	}
	if event.DriftScore != nil {
		fields = append(fields, zap.Float64("drift_score", *event.DriftScore))
	}
	if event.QualityScore != nil {
		fields = append(fields, zap.Float64("quality_score", *event.QualityScore))
	}
	w.logger.Info("enriched_event", fields...)
}

func (w *LogWriter) Close() {}
