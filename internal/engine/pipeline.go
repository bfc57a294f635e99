package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPipelineWorkers bounds enrichment parallelism per batch.
const DefaultPipelineWorkers = 4

// PipelineConfig tunes the batch enrichment pipeline. Stage behavior is
// decided by which components are wired into NewPipeline; the config only
// carries the knobs.
type PipelineConfig struct {
	Workers       int      // default DefaultPipelineWorkers
	CompareFields []string // default: response_time, token_count, confidence_score
}

func (c *PipelineConfig) withDefaults() (PipelineConfig, error) {
	out := *c
	if out.Workers == 0 {
		out.Workers = DefaultPipelineWorkers
	}
	if out.Workers < 1 || out.Workers > 64 {
		return out, fmt.Errorf("%w: pipeline workers %d outside [1, 64]", ErrConfig, out.Workers)
	}
	if len(out.CompareFields) == 0 {
		out.CompareFields = []string{FieldResponseTime, FieldTokenCount, FieldConfidence}
	}
	return out, nil
}

// Pipeline runs every wired analysis stage over a batch of records.
// Records are sharded by model so each worker owns a model's rolling
// state for the duration of the batch; original batch order is restored
// in the output.
//
// Any stage may be nil, in which case it is skipped for every record.
type Pipeline struct {
	cfg     PipelineConfig
	log     *zap.Logger
	metrics *MetricsCalculator
	trends  *TrendTracker
	drift   *DriftDetector
	anomaly *AnomalyDetector
	compare *BaselineComparator
}

// NewPipeline validates the configuration and assembles the stages.
// trends carries rolling state across batches, same as the detectors; a
// nil tracker disables the trend stage.
func NewPipeline(
	cfg PipelineConfig,
	log *zap.Logger,
	metrics *MetricsCalculator,
	trends *TrendTracker,
	drift *DriftDetector,
	anomaly *AnomalyDetector,
	compare *BaselineComparator,
) (*Pipeline, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:     resolved,
		log:     log,
		metrics: metrics,
		trends:  trends,
		drift:   drift,
		anomaly: anomaly,
		compare: compare,
	}, nil
}

type indexedRecord struct {
	idx int
	rec *EventRecord
}

// ProcessBatch enriches every record and returns the per-record results
// in input order plus the batch summary. Invalid records are skipped and
// marked, never dropped; the batch always completes unless the context
// is canceled.
func (p *Pipeline) ProcessBatch(ctx context.Context, records []*EventRecord) ([]*EnrichedRecord, *BatchSummary, error) {
	started := time.Now()
	batchID := uuid.NewString()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Shard by model: per-model ordering is what the rolling windows and
	// trend state depend on.
	groups := make(map[string][]indexedRecord)
	for i, rec := range records {
		groups[rec.ModelID] = append(groups[rec.ModelID], indexedRecord{idx: i, rec: rec})
	}

	groupCh := make(chan []indexedRecord)
	out := make([]*EnrichedRecord, len(records))

	var wg sync.WaitGroup
	workers := p.cfg.Workers
	if workers > len(groups) && len(groups) > 0 {
		workers = len(groups)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groupCh {
				for _, ir := range group {
					out[ir.idx] = p.enrich(ir.rec)
				}
			}
		}()
	}

	var ctxErr error
dispatch:
	for _, group := range groups {
		select {
		case groupCh <- group:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		}
	}
	close(groupCh)
	wg.Wait()

	if ctxErr != nil {
		return nil, nil, ctxErr
	}

	summary := p.summarize(batchID, started, out)
	p.log.Info("batch processed",
		zap.String("batch_id", batchID),
		zap.Int("total", summary.TotalRecords),
		zap.Int("skipped", summary.SkippedRecords),
		zap.Int("drift", summary.DriftCount),
		zap.Int("anomalies", summary.AnomalyCount),
		zap.Float64("elapsed_ms", summary.ElapsedMs),
	)
	return out, summary, nil
}

func (p *Pipeline) enrich(rec *EventRecord) *EnrichedRecord {
	enriched := &EnrichedRecord{EventRecord: *rec}

	if err := rec.Validate(); err != nil {
		enriched.Skipped = true
		enriched.SkipReason = err.Error()
		p.log.Debug("record skipped",
			zap.String("model_id", rec.ModelID),
			zap.String("request_id", rec.RequestID),
			zap.Error(err),
		)
		return enriched
	}

	if p.metrics != nil {
		enriched.Quality = p.metrics.Quality(rec.Response, rec.Prompt)
		enriched.Performance = p.metrics.Performance(rec)
	}
	if p.trends != nil {
		for _, field := range p.cfg.CompareFields {
			value, ok := NumericField(rec, field)
			if !ok {
				continue
			}
			if tm, ok := p.trends.Observe(rec.ModelID, field, value); ok {
				enriched.Trends = append(enriched.Trends, tm)
			}
		}
	}
	if p.drift != nil {
		enriched.Drift = p.drift.Score(rec.ModelID, rec.Response)
	}
	if p.anomaly != nil {
		enriched.Anomaly = p.anomaly.Evaluate(rec)
	}
	if p.compare != nil {
		enriched.Comparisons = p.compare.Compare(rec, p.cfg.CompareFields)
	}
	return enriched
}

func (p *Pipeline) summarize(batchID string, started time.Time, records []*EnrichedRecord) *BatchSummary {
	s := &BatchSummary{
		BatchID:      batchID,
		ProcessedAt:  time.Now().UTC(),
		TotalRecords: len(records),
	}

	models := make(map[string]struct{})
	missing := make(map[string]struct{})
	qualitySum := 0.0
	qualityN := 0
	scored := 0

	for _, rec := range records {
		models[rec.ModelID] = struct{}{}
		if rec.Skipped {
			s.SkippedRecords++
			continue
		}
		scored++

		critical := false
		if rec.Drift != nil {
			if rec.Drift.BaselineUnavailable {
				missing[rec.ModelID] = struct{}{}
			}
			if rec.Drift.Detected {
				s.DriftCount++
			}
			if rec.Drift.Score != nil && *rec.Drift.Score > s.MaxDriftScore {
				s.MaxDriftScore = *rec.Drift.Score
			}
			if rec.Drift.Severity == "critical" {
				critical = true
			}
		}
		if rec.Anomaly != nil {
			if rec.Anomaly.Detected {
				s.AnomalyCount++
			}
			if rec.Anomaly.MaxScore > s.MaxAnomalyScore {
				s.MaxAnomalyScore = rec.Anomaly.MaxScore
			}
			if rec.Anomaly.Severity == "critical" {
				critical = true
			}
		}
		for _, cmp := range rec.Comparisons {
			if cmp.Unavailable {
				missing[rec.ModelID] = struct{}{}
			}
			if cmp.Status == StatusCritical {
				critical = true
			}
		}
		if rec.Quality != nil {
			qualitySum += rec.Quality.OverallScore
			qualityN++
		}
		if critical {
			s.CriticalRecords++
		}
	}

	if scored > 0 {
		s.DriftRate = float64(s.DriftCount) / float64(scored)
		s.AnomalyRate = float64(s.AnomalyCount) / float64(scored)
	}
	if qualityN > 0 {
		s.AvgQualityScore = qualitySum / float64(qualityN)
	}

	s.ModelsSeen = sortedKeys(models)
	s.BaselineMissingFor = sortedKeys(missing)
	s.ElapsedMs = float64(time.Since(started).Microseconds()) / 1000.0
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
