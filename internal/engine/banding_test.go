package engine

import (
	"math"
	"testing"
)

func TestDriftSeverityScale_Bands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "minimal"},
		{0.0999, "minimal"},
		{0.1, "low"},
		{0.2999, "low"},
		{0.3, "medium"},
		{0.4999, "medium"},
		{0.5, "high"},
		{0.6999, "high"},
		{0.7, "critical"},
		{12.5, "critical"},
		{math.Inf(1), "critical"},
	}
	for _, tt := range tests {
		if got := DriftSeverityScale.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestAnomalySeverityScale_Bands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "low"},
		{1.99, "low"},
		{2, "medium"},
		{2.99, "medium"},
		{3, "high"},
		{4.99, "high"},
		{5, "critical"},
		{10, "critical"},
	}
	for _, tt := range tests {
		if got := AnomalySeverityScale.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

// Every score must land in exactly one band: sweeping a fine grid over the
// score space, the assigned label must never be empty and transitions must
// happen only at the declared cutpoints.
func TestBandScale_TotalPartition(t *testing.T) {
	scale := NewBandScale([]string{"a", "b", "c"}, []float64{1, 2})

	prev := ""
	transitions := 0
	for x := -1.0; x <= 5.0; x += 0.001 {
		label := scale.Classify(x)
		if label == "" {
			t.Fatalf("no band for %v", x)
		}
		if prev != "" && label != prev {
			transitions++
		}
		prev = label
	}
	if transitions != 2 {
		t.Errorf("expected 2 band transitions, got %d", transitions)
	}
}

func TestNewBandScale_PanicsOnMalformedScale(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-ascending cutpoints")
		}
	}()
	NewBandScale([]string{"a", "b", "c"}, []float64{2, 1})
}
