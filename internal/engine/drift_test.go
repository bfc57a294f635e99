package engine

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// mapSource is a test BaselineSource over a plain map.
type mapSource map[string]*BaselineRecord

func (m mapSource) Lookup(modelID string) (*BaselineRecord, bool) {
	rec, ok := m[modelID]
	return rec, ok
}

func baselineFor(text string) *BaselineRecord {
	return &BaselineRecord{
		ModelID:      "m1",
		Centroid:     NewLexicalEmbedder().Encode(text),
		BaselineDate: time.Now(),
		SampleCount:  100,
	}
}

func TestDriftDetector_BaselineMode(t *testing.T) {
	ref := "The model answered the question accurately with supporting details."
	src := mapSource{"m1": baselineFor(ref)}

	d, err := NewDriftDetector(DriftConfig{Mode: DriftModeBaseline}, nil, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Identical text: zero drift, minimal severity.
	res := d.Score("m1", ref)
	if res.Score == nil {
		t.Fatal("expected a score")
	}
	if math.Abs(*res.Score) > 1e-9 {
		t.Errorf("drift for identical text = %v, want 0", *res.Score)
	}
	if res.Detected {
		t.Error("identical text must not be flagged")
	}
	if res.Severity != "minimal" {
		t.Errorf("severity = %q, want minimal", res.Severity)
	}

	// Unrelated text scores strictly higher.
	far := d.Score("m1", "qqq zzz 12345 !!! completely unrelated noise ??? xyzzy")
	if far.Score == nil {
		t.Fatal("expected a score")
	}
	if *far.Score <= *res.Score {
		t.Errorf("unrelated text drift %v should exceed identical-text drift %v", *far.Score, *res.Score)
	}
}

func TestDriftDetector_MissingBaseline(t *testing.T) {
	d, err := NewDriftDetector(DriftConfig{Mode: DriftModeBaseline}, nil, mapSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := d.Score("unknown-model", "any response text")
	if !res.BaselineUnavailable {
		t.Error("expected baseline_unavailable marker")
	}
	if res.Score != nil {
		t.Errorf("score must be nil when no baseline exists, got %v", *res.Score)
	}
	if res.Detected {
		t.Error("drift_detected must be false when no baseline exists")
	}
}

func TestDriftDetector_EmptyBaselineIsUnavailable(t *testing.T) {
	// sample_count == 0 means "no baseline", never "baseline of zero".
	src := mapSource{"m1": {ModelID: "m1", SampleCount: 0}}
	d, _ := NewDriftDetector(DriftConfig{Mode: DriftModeBaseline}, nil, src)

	res := d.Score("m1", "some response")
	if !res.BaselineUnavailable || res.Score != nil {
		t.Error("zero-sample baseline must be treated as unavailable")
	}
}

func TestDriftDetector_WindowEviction(t *testing.T) {
	const windowSize = 5
	d, err := NewDriftDetector(DriftConfig{Mode: DriftModeWindow, WindowSize: windowSize}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// window_size+1 inserts evict exactly the oldest entry.
	for i := 0; i < windowSize+1; i++ {
		d.Score("m1", fmt.Sprintf("response number %d about deployment status", i))
	}
	if got := d.WindowSize("m1"); got != windowSize {
		t.Errorf("window size after %d inserts = %d, want %d", windowSize+1, got, windowSize)
	}

	// Further inserts keep the size constant.
	for i := 0; i < 3*windowSize; i++ {
		d.Score("m1", fmt.Sprintf("yet another response %d", i))
	}
	if got := d.WindowSize("m1"); got != windowSize {
		t.Errorf("window size = %d, want %d", got, windowSize)
	}
}

func TestDriftDetector_WindowMode(t *testing.T) {
	d, err := NewDriftDetector(DriftConfig{Mode: DriftModeWindow, WindowSize: 10}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First observation has no reference yet.
	first := d.Score("m1", "steady state response about database health")
	if !first.BaselineUnavailable {
		t.Error("first observation should report baseline unavailable")
	}

	// A steady stream of near-identical texts stays below the threshold.
	var last *DriftResult
	for i := 0; i < 9; i++ {
		last = d.Score("m1", "steady state response about database health")
	}
	if last.Score == nil {
		t.Fatal("expected a score once the window is seeded")
	}
	if last.Detected {
		t.Errorf("steady stream flagged as drift, score %v", *last.Score)
	}
	if last.RecentSimilarity == nil || *last.RecentSimilarity < 0.99 {
		t.Errorf("recent similarity for repeated text should be ~1, got %v", last.RecentSimilarity)
	}

	// Keys are independent.
	if d.WindowSize("m2") != 0 {
		t.Error("windows must be per-key")
	}
}

func TestDriftDetector_ConfigErrors(t *testing.T) {
	cases := []DriftConfig{
		{Mode: "centroid"},
		{Mode: DriftModeWindow, WindowSize: -3},
		{Mode: DriftModeWindow, Threshold: -1},
		{Mode: DriftModeWindow, Method: "hamming"},
	}
	for _, cfg := range cases {
		if _, err := NewDriftDetector(cfg, nil, mapSource{}); !errors.Is(err, ErrConfig) {
			t.Errorf("config %+v: expected ErrConfig, got %v", cfg, err)
		}
	}

	// Baseline mode without a source is a wiring mistake.
	if _, err := NewDriftDetector(DriftConfig{Mode: DriftModeBaseline}, nil, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for baseline mode without source, got %v", err)
	}
}

func TestKeyWindow_IncrementalCentroidMatchesRecompute(t *testing.T) {
	e := NewLexicalEmbedder()
	w := newKeyWindow(4)

	texts := []string{
		"alpha response about latency",
		"beta response about throughput",
		"gamma response about cache hits",
		"delta response about error rates",
		"epsilon response about saturation",
		"zeta response about queue depth",
	}
	for _, text := range texts {
		w.push(e.Encode(text))
	}

	// Recompute the centroid from the live entries and compare with the
	// incrementally maintained sum.
	want := make([]float64, embeddingDim)
	count := 0
	for _, entry := range w.entries {
		if entry == nil {
			continue
		}
		count++
		for i, v := range entry {
			want[i] += v
		}
	}
	if count != 4 {
		t.Fatalf("live entries = %d, want 4", count)
	}
	norm := 0.0
	for i := range want {
		want[i] /= float64(count)
		norm += want[i] * want[i]
	}
	norm = math.Sqrt(norm)
	for i := range want {
		want[i] /= norm
	}

	got := w.centroid()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("centroid[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
