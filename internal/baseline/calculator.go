package baseline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// DefaultWindowDays is the trailing history window for baseline
// recalculation. The most recent (partial) day is always excluded so the
// baseline never chases an incident in progress.
const DefaultWindowDays = 30

// ErrNoSamples means no record fell inside the calculation window. The
// caller must keep serving the previous snapshot.
var ErrNoSamples = errors.New("no samples in baseline window")

// Calculator derives per-model baseline statistics from raw event
// history. Pure computation: it never touches the store, so a failure
// mid-calculation cannot corrupt the published snapshot.
type Calculator struct {
	embedder   engine.Embedder
	windowDays int
}

// NewCalculator builds a calculator. embedder may be nil to skip centroid
// computation (statistics-only baselines).
func NewCalculator(embedder engine.Embedder, windowDays int) (*Calculator, error) {
	if windowDays == 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays < 1 || windowDays > 365 {
		return nil, fmt.Errorf("%w: baseline window %d days outside [1, 365]", engine.ErrConfig, windowDays)
	}
	return &Calculator{embedder: embedder, windowDays: windowDays}, nil
}

// Window returns the [start, end) interval the calculator would use at
// the given reference time: the trailing windowDays full days, ending at
// the start of the reference day.
func (c *Calculator) Window(now time.Time) (start, end time.Time) {
	end = now.UTC().Truncate(24 * time.Hour)
	start = end.AddDate(0, 0, -c.windowDays)
	return start, end
}

// Compute builds a fresh snapshot from the records falling inside the
// window at the reference time. Records outside the window, including
// anything from the reference day itself, are ignored. Invalid records
// are skipped rather than failing the run.
func (c *Calculator) Compute(now time.Time, records []*engine.EventRecord) (*Snapshot, error) {
	start, end := c.Window(now)

	byModel := make(map[string][]*engine.EventRecord)
	for _, rec := range records {
		ts := rec.Timestamp.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		if err := rec.Validate(); err != nil {
			continue
		}
		byModel[rec.ModelID] = append(byModel[rec.ModelID], rec)
	}
	if len(byModel) == 0 {
		return nil, fmt.Errorf("%w: window [%s, %s)", ErrNoSamples,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	baselines := make([]*engine.BaselineRecord, 0, len(byModel))
	for modelID, recs := range byModel {
		baselines = append(baselines, c.summarize(modelID, recs, end))
	}
	return NewSnapshot(baselines, now.UTC()), nil
}

func (c *Calculator) summarize(modelID string, recs []*engine.EventRecord, end time.Time) *engine.BaselineRecord {
	n := len(recs)
	responseTimes := make([]float64, n)
	tokenCounts := make([]float64, n)
	confidences := make([]float64, n)
	for i, rec := range recs {
		responseTimes[i] = rec.ResponseTime
		tokenCounts[i] = float64(rec.TokenCount)
		confidences[i] = rec.ConfidenceScore
	}

	out := &engine.BaselineRecord{
		ModelID:         modelID,
		AvgResponseTime: engine.Mean(responseTimes),
		StdResponseTime: engine.StdDev(responseTimes),
		AvgTokenCount:   engine.Mean(tokenCounts),
		StdTokenCount:   engine.StdDev(tokenCounts),
		AvgConfidence:   engine.Mean(confidences),
		StdConfidence:   engine.StdDev(confidences),
		BaselineDate:    end,
		SampleCount:     n,
	}
	if c.embedder != nil {
		out.Centroid = c.centroid(recs)
	}
	return out
}

// centroid is the L2-normalized mean embedding of the response texts.
func (c *Calculator) centroid(recs []*engine.EventRecord) []float64 {
	var sum []float64
	count := 0
	for _, rec := range recs {
		if rec.Response == "" {
			continue
		}
		emb := c.embedder.Encode(rec.Response)
		if sum == nil {
			sum = make([]float64, len(emb))
		}
		for i, v := range emb {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}

	norm := 0.0
	for i := range sum {
		sum[i] /= float64(count)
		norm += sum[i] * sum[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range sum {
			sum[i] /= norm
		}
	}
	return sum
}
