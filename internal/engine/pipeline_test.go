package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPipeline(t *testing.T, src BaselineSource) *Pipeline {
	t.Helper()

	reg := stubRegistry()
	anomaly, err := NewAnomalyDetector(AnomalyConfig{
		Fields: []string{FieldResponseTime},
		Method: "high",
	}, reg, src)
	if err != nil {
		t.Fatalf("anomaly detector: %v", err)
	}

	var drift *DriftDetector
	if src != nil {
		drift, err = NewDriftDetector(DriftConfig{Mode: DriftModeBaseline}, nil, src)
		if err != nil {
			t.Fatalf("drift detector: %v", err)
		}
	}

	var compare *BaselineComparator
	if src != nil {
		compare, err = NewBaselineComparator(src, nil)
		if err != nil {
			t.Fatalf("comparator: %v", err)
		}
	}

	p, err := NewPipeline(PipelineConfig{Workers: 2}, nil, NewMetricsCalculator(), NewTrendTracker(50), drift, anomaly, compare)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func validRecord(model string, i int) *EventRecord {
	return &EventRecord{
		Timestamp:       time.Now(),
		ModelID:         model,
		RequestID:       fmt.Sprintf("req-%s-%d", model, i),
		Prompt:          "Summarize the deployment status",
		Response:        "The deployment finished. All checks passed. Therefore the release is healthy.",
		ResponseTime:    1.2,
		TokenCount:      42,
		ConfidenceScore: 0.9,
	}
}

func TestPipeline_OrderPreservedAcrossModels(t *testing.T) {
	p := testPipeline(t, nil)

	var records []*EventRecord
	for i := 0; i < 20; i++ {
		records = append(records, validRecord(fmt.Sprintf("m%d", i%4), i))
	}

	out, summary, err := p.ProcessBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(records) {
		t.Fatalf("got %d results, want %d", len(out), len(records))
	}
	for i, rec := range out {
		if rec == nil {
			t.Fatalf("result %d missing", i)
		}
		if rec.RequestID != records[i].RequestID {
			t.Errorf("result %d out of order: %s != %s", i, rec.RequestID, records[i].RequestID)
		}
	}
	if summary.TotalRecords != 20 || summary.SkippedRecords != 0 {
		t.Errorf("summary totals = %d/%d, want 20/0", summary.TotalRecords, summary.SkippedRecords)
	}
	if len(summary.ModelsSeen) != 4 {
		t.Errorf("models seen = %v, want 4 models", summary.ModelsSeen)
	}
	if summary.BatchID == "" {
		t.Error("batch id must be set")
	}
}

func TestPipeline_InvalidRecordSkippedNotDropped(t *testing.T) {
	p := testPipeline(t, nil)

	records := []*EventRecord{
		validRecord("m1", 0),
		{ModelID: "", RequestID: "bad-1", ResponseTime: 1},  // missing model
		{ModelID: "m1", RequestID: "bad-2", ResponseTime: -1}, // negative time
		validRecord("m1", 1),
	}

	out, summary, err := p.ProcessBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SkippedRecords != 2 {
		t.Errorf("skipped = %d, want 2", summary.SkippedRecords)
	}
	if !out[1].Skipped || out[1].SkipReason == "" {
		t.Error("invalid record must be marked with a reason")
	}
	if out[1].Quality != nil || out[1].Anomaly != nil {
		t.Error("skipped records must not be scored")
	}
	if out[0].Skipped || out[3].Skipped {
		t.Error("valid records must not be skipped")
	}
}

func TestPipeline_SummaryAggregates(t *testing.T) {
	src := mapSource{"m1": {
		ModelID:         "m1",
		AvgResponseTime: 1.0,
		StdResponseTime: 0.2,
		Centroid:        NewLexicalEmbedder().Encode("The deployment finished. All checks passed."),
		BaselineDate:    time.Now(),
		SampleCount:     100,
	}}
	p := testPipeline(t, src)

	slow := validRecord("m1", 0)
	slow.ResponseTime = 7 // stub "high" method flags > 5; +600% is critical
	records := []*EventRecord{
		validRecord("m1", 1),
		slow,
		validRecord("m2", 2), // no baseline for m2
	}

	out, summary, err := p.ProcessBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.AnomalyCount != 1 {
		t.Errorf("anomaly count = %d, want 1", summary.AnomalyCount)
	}
	if summary.AnomalyRate < 0.33 || summary.AnomalyRate > 0.34 {
		t.Errorf("anomaly rate = %v, want 1/3", summary.AnomalyRate)
	}
	if summary.CriticalRecords < 1 {
		t.Errorf("critical records = %d, want >= 1", summary.CriticalRecords)
	}
	if len(summary.BaselineMissingFor) != 1 || summary.BaselineMissingFor[0] != "m2" {
		t.Errorf("baseline missing = %v, want [m2]", summary.BaselineMissingFor)
	}
	if summary.AvgQualityScore <= 0 {
		t.Errorf("avg quality = %v, want > 0", summary.AvgQualityScore)
	}

	// m2 records carry the unavailable marker, never a zero score.
	if out[2].Drift == nil || !out[2].Drift.BaselineUnavailable || out[2].Drift.Score != nil {
		t.Errorf("m2 drift = %+v, want unavailable with nil score", out[2].Drift)
	}
}

func TestPipeline_ContextCancellation(t *testing.T) {
	p := testPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var records []*EventRecord
	for i := 0; i < 100; i++ {
		records = append(records, validRecord(fmt.Sprintf("m%d", i), i))
	}
	if _, _, err := p.ProcessBatch(ctx, records); err == nil {
		t.Error("expected an error from a canceled context")
	}
}

func TestPipeline_ConfigErrors(t *testing.T) {
	if _, err := NewPipeline(PipelineConfig{Workers: -1}, nil, nil, nil, nil, nil, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
	if _, err := NewPipeline(PipelineConfig{Workers: 1000}, nil, nil, nil, nil, nil, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestPipeline_TrendsAccumulateAcrossBatches(t *testing.T) {
	p := testPipeline(t, nil)

	// First observation of each metric has no history; no trend yet.
	out, _, err := p.ProcessBatch(context.Background(), []*EventRecord{validRecord("m1", 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[0].Trends) != 0 {
		t.Errorf("first record should carry no trends, got %v", out[0].Trends)
	}

	// Second batch sees the history from the first.
	fast := validRecord("m1", 1)
	fast.ResponseTime = 2.4 // double the prior 1.2
	out, _, err = p.ProcessBatch(context.Background(), []*EventRecord{fast})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[0].Trends) == 0 {
		t.Fatal("second record should carry trends")
	}
	for _, tm := range out[0].Trends {
		if tm.Metric != FieldResponseTime {
			continue
		}
		if tm.Direction != "increasing" {
			t.Errorf("response_time trend = %+v, want increasing", tm)
		}
		if tm.PctChange < 99 || tm.PctChange > 101 {
			t.Errorf("pct change = %v, want ~100", tm.PctChange)
		}
	}
}
