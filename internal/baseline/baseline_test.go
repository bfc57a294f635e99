package baseline

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

func record(model string, ts time.Time, rt float64, tokens int, conf float64) *engine.EventRecord {
	return &engine.EventRecord{
		Timestamp:       ts,
		ModelID:         model,
		RequestID:       "r",
		Prompt:          "p",
		Response:        "The service responded normally with the expected output.",
		ResponseTime:    rt,
		TokenCount:      tokens,
		ConfidenceScore: conf,
	}
}

func TestStore_SwapIsVersionedAndAtomic(t *testing.T) {
	store := NewStore()

	// Empty store degrades to "no baseline", not a panic.
	if _, ok := store.Lookup("m1"); ok {
		t.Error("empty store must report no baseline")
	}

	first := NewSnapshot([]*engine.BaselineRecord{
		{ModelID: "m1", AvgResponseTime: 1.0, SampleCount: 10},
	}, time.Now())
	if v := store.Swap(first); v != 1 {
		t.Errorf("first swap version = %d, want 1", v)
	}

	pinned := store.Current()

	second := NewSnapshot([]*engine.BaselineRecord{
		{ModelID: "m1", AvgResponseTime: 9.0, SampleCount: 10},
	}, time.Now())
	if v := store.Swap(second); v != 2 {
		t.Errorf("second swap version = %d, want 2", v)
	}

	// A pinned snapshot keeps serving the old values after a swap.
	old, ok := pinned.Lookup("m1")
	if !ok || old.AvgResponseTime != 1.0 {
		t.Errorf("pinned snapshot changed under the reader: %+v", old)
	}
	live, ok := store.Lookup("m1")
	if !ok || live.AvgResponseTime != 9.0 {
		t.Errorf("live lookup = %+v, want the new snapshot", live)
	}
}

func TestCalculator_WindowExcludesMostRecentDay(t *testing.T) {
	calc, err := NewCalculator(nil, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	records := []*engine.EventRecord{
		record("m1", now.Add(-2*time.Hour), 9.0, 100, 0.9),            // today: excluded
		record("m1", now.AddDate(0, 0, -1), 1.0, 100, 0.9),            // yesterday: included
		record("m1", now.AddDate(0, 0, -29), 2.0, 200, 0.8),           // inside window
		record("m1", now.AddDate(0, 0, -31), 50.0, 9999, 0.1),         // too old: excluded
		{Timestamp: now.AddDate(0, 0, -5), ModelID: "", ResponseTime: 1}, // invalid: skipped
	}

	snap, err := calc.Compute(now, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok := snap.Lookup("m1")
	if !ok {
		t.Fatal("expected a baseline for m1")
	}
	if rec.SampleCount != 2 {
		t.Errorf("sample count = %d, want 2", rec.SampleCount)
	}
	if math.Abs(rec.AvgResponseTime-1.5) > 1e-9 {
		t.Errorf("avg response time = %v, want 1.5", rec.AvgResponseTime)
	}
}

func TestCalculator_NoSamplesLeavesStoreUntouched(t *testing.T) {
	calc, _ := NewCalculator(nil, 30)
	store := NewStore()

	prior := NewSnapshot([]*engine.BaselineRecord{
		{ModelID: "m1", AvgResponseTime: 1.0, SampleCount: 5},
	}, time.Now())
	store.Swap(prior)

	now := time.Now().UTC()
	_, err := calc.Compute(now, []*engine.EventRecord{
		record("m1", now, 1.0, 100, 0.9), // only today's data: outside the window
	})
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}

	// The failed run never swapped; the prior snapshot still serves.
	if rec, ok := store.Lookup("m1"); !ok || rec.AvgResponseTime != 1.0 {
		t.Errorf("prior snapshot lost after failed recalculation: %+v", rec)
	}
	if store.Current().Version != 1 {
		t.Errorf("version = %d, want 1", store.Current().Version)
	}
}

func TestCalculator_CentroidIsUnitNorm(t *testing.T) {
	calc, err := NewCalculator(engine.NewLexicalEmbedder(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now().UTC()
	var records []*engine.EventRecord
	for i := 0; i < 5; i++ {
		records = append(records, record("m1", now.AddDate(0, 0, -2), 1.0, 100, 0.9))
	}

	snap, err := calc.Compute(now, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := snap.Lookup("m1")
	if len(rec.Centroid) == 0 {
		t.Fatal("expected a centroid")
	}
	norm := 0.0
	for _, v := range rec.Centroid {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("centroid norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestCalculator_ConfigErrors(t *testing.T) {
	if _, err := NewCalculator(nil, -1); !errors.Is(err, engine.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
	if _, err := NewCalculator(nil, 1000); !errors.Is(err, engine.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baselines.csv")

	want := NewSnapshot([]*engine.BaselineRecord{
		{
			ModelID:         "gpt-x",
			AvgResponseTime: 1.25, StdResponseTime: 0.5,
			AvgTokenCount: 512.5, StdTokenCount: 48,
			AvgConfidence: 0.875, StdConfidence: 0.0625,
			Centroid:     []float64{0.5, -0.25, 0.125},
			BaselineDate: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC),
			SampleCount:  1200,
		},
		{
			ModelID:         "claude-y",
			AvgResponseTime: 2, StdResponseTime: 0.75,
			BaselineDate: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC),
			SampleCount:  30,
		},
	}, time.Now())

	if err := Save(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("loaded %d models, want 2", got.Len())
	}

	rec, ok := got.Lookup("gpt-x")
	if !ok {
		t.Fatal("gpt-x missing after round trip")
	}
	if rec.AvgResponseTime != 1.25 || rec.StdConfidence != 0.0625 || rec.SampleCount != 1200 {
		t.Errorf("stats lost in round trip: %+v", rec)
	}
	if len(rec.Centroid) != 3 || rec.Centroid[1] != -0.25 {
		t.Errorf("centroid lost in round trip: %v", rec.Centroid)
	}
	if !rec.BaselineDate.Equal(time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("baseline date = %v", rec.BaselineDate)
	}

	// Empty centroid stays empty, not a single zero.
	other, _ := got.Lookup("claude-y")
	if other.Centroid != nil {
		t.Errorf("empty centroid decoded as %v", other.Centroid)
	}
}

func TestFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baselines.csv")

	snap := NewSnapshot([]*engine.BaselineRecord{
		{ModelID: "m1", SampleCount: 1, BaselineDate: time.Now()},
	}, time.Now())
	if err := Save(path, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "baselines.csv" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only baselines.csv", names)
	}
}

func TestFile_LoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
