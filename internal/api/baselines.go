package api

import (
	"net/http"
	"sort"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// handleListBaselines implements GET /v1/baselines: the live snapshot,
// one entry per model.
func (d *Dependencies) handleListBaselines(w http.ResponseWriter, _ *http.Request) {
	snap := d.Baselines.Current()

	models := snap.Models()
	sort.Strings(models)

	resp := BaselineListResp{
		Version:    snap.Version,
		ComputedAt: snap.ComputedAt,
		Baselines:  make([]BaselineResp, 0, len(models)),
	}
	for _, id := range models {
		rec, _ := snap.Lookup(id)
		resp.Baselines = append(resp.Baselines, baselineToResp(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetBaseline implements GET /v1/baselines/{model_id}.
func (d *Dependencies) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("model_id")

	rec, ok := d.Baselines.Current().Lookup(modelID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No baseline for model."})
		return
	}
	writeJSON(w, http.StatusOK, baselineToResp(rec))
}

// handleListThresholds implements GET /v1/thresholds: the effective
// threshold table for the authenticated project (shared table plus any
// per-project overrides).
func (d *Dependencies) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}

	out := make([]ThresholdResp, 0, len(engine.CanonicalFields))
	for _, metric := range engine.CanonicalFields {
		var th *engine.Threshold
		var ok bool
		if proj.Thresholds != nil {
			th, ok = proj.Thresholds.Lookup(metric)
		}
		if !ok {
			// No row: the comparator applies the package defaults.
			out = append(out, ThresholdResp{
				Metric:   metric,
				Type:     "upper",
				Warning:  engine.DefaultWarningPct,
				Critical: engine.DefaultCriticalPct,
				Unit:     "percent",
			})
			continue
		}
		out = append(out, ThresholdResp{
			Metric:      th.Metric,
			Type:        th.Type.String(),
			Warning:     th.Warning,
			Critical:    th.Critical,
			Unit:        th.Unit,
			Description: th.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func baselineToResp(rec *engine.BaselineRecord) BaselineResp {
	return BaselineResp{
		ModelID:         rec.ModelID,
		AvgResponseTime: rec.AvgResponseTime,
		StdResponseTime: rec.StdResponseTime,
		AvgTokenCount:   rec.AvgTokenCount,
		StdTokenCount:   rec.StdTokenCount,
		AvgConfidence:   rec.AvgConfidence,
		StdConfidence:   rec.StdConfidence,
		BaselineDate:    rec.BaselineDate,
		SampleCount:     rec.SampleCount,
		HasCentroid:     len(rec.Centroid) > 0,
	}
}
