package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/engine"
	"github.com/driftguard-ai/driftguard/internal/storage"
)

// maxBatchSize bounds one analyze request. Larger ingests should be split
// by the client; the pipeline itself has no limit.
const maxBatchSize = 5000

// handleAnalyze implements POST /v1/analyze.
// Auth middleware has already validated the Bearer token and injected the project.
func (d *Dependencies) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AnalyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "records is required"})
		return
	}
	if len(req.Records) > maxBatchSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "too many records in one batch"})
		return
	}

	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}

	records := make([]*engine.EventRecord, len(req.Records))
	for i, rr := range req.Records {
		rec := &engine.EventRecord{
			Timestamp:       rr.Timestamp,
			ModelID:         rr.ModelID,
			RequestID:       rr.RequestID,
			Prompt:          rr.Prompt,
			Response:        rr.Response,
			ResponseTime:    rr.ResponseTime,
			TokenCount:      rr.TokenCount,
			ConfidenceScore: rr.ConfidenceScore,
			Metadata:        rr.Metadata,
		}
		if rec.RequestID == "" {
			rec.RequestID = uuid.NewString()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}
		records[i] = rec
	}

	// The comparator is rebuilt per request so per-project threshold
	// overrides apply; the detectors are shared so rolling windows
	// persist across batches.
	pipeline, err := d.buildPipeline(proj)
	if err != nil {
		d.Logger.Error("pipeline assembly failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "pipeline assembly failed"})
		return
	}

	enriched, summary, err := pipeline.ProcessBatch(r.Context(), records)
	if err != nil {
		d.Logger.Error("batch processing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "batch processing failed"})
		return
	}

	// Fire-and-forget: persist enriched events and publish the summary.
	for _, rec := range enriched {
		d.Writer.Write(storage.FromEnriched(rec, proj.ID, summary.BatchID))
	}
	if d.Bus != nil {
		if err := d.Bus.PublishSummary(proj.ID, summary); err != nil {
			d.Logger.Warn("summary publish failed",
				zap.String("batch_id", summary.BatchID),
				zap.Error(err),
			)
		}
	}

	results := make([]RecordResultResp, 0, len(enriched))
	for _, rec := range enriched {
		results = append(results, RecordResultResp{
			RequestID:   rec.RequestID,
			ModelID:     rec.ModelID,
			Skipped:     rec.Skipped,
			SkipReason:  rec.SkipReason,
			Quality:     rec.Quality,
			Performance: rec.Performance,
			Trends:      rec.Trends,
			Drift:       rec.Drift,
			Anomaly:     rec.Anomaly,
			Comparisons: rec.Comparisons,
		})
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		BatchID:   summary.BatchID,
		Summary:   summary,
		Results:   results,
		LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
	})
}

// buildPipeline assembles a pipeline for one request: shared detectors,
// per-project comparator.
func (d *Dependencies) buildPipeline(proj *authProject) (*engine.Pipeline, error) {
	compare, err := engine.NewBaselineComparator(d.Baselines, proj.Thresholds)
	if err != nil {
		return nil, err
	}
	return engine.NewPipeline(d.PipelineCfg, d.Logger, d.Metrics, d.Trends, d.Drift, d.Anomaly, compare)
}
