package engine

import (
	"math"
	"testing"
)

func TestQuality_EmptyResponse(t *testing.T) {
	m := NewMetricsCalculator()

	q := m.Quality("", "")
	if q.OverallScore != 0 {
		t.Errorf("overall score for empty response = %v, want 0", q.OverallScore)
	}
	q = m.Quality("   \n\t ", "prompt")
	if q.OverallScore != 0 {
		t.Errorf("overall score for whitespace response = %v, want 0", q.OverallScore)
	}
}

func TestQuality_ScoresInRange(t *testing.T) {
	m := NewMetricsCalculator()

	responses := []string{
		"Short answer.",
		"The system processes events in batches. For example, drift scores are computed per model. Therefore throughput stays bounded. In conclusion, the design holds.",
		"word word word word word word word word word word word word",
		"No punctuation no caps just a stream of tokens flowing on and on",
	}
	for _, resp := range responses {
		q := m.Quality(resp, "Explain how the system processes events")
		for name, v := range map[string]float64{
			"readability":         q.Readability,
			"coherence":           q.Coherence,
			"completeness":        q.Completeness,
			"language_quality":    q.LanguageQuality,
			"information_density": q.InformationDensity,
			"overall":             q.OverallScore,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s = %v outside [0,1] for %q", name, v, resp)
			}
		}
	}
}

func TestQuality_StructuredBeatsRepetitive(t *testing.T) {
	m := NewMetricsCalculator()

	structured := m.Quality(
		"The rollout succeeded. For example, latency dropped by half. Therefore we can conclude the cache helped. In summary, this was a win.",
		"",
	)
	repetitive := m.Quality(
		"yes yes yes yes yes yes yes yes yes yes yes yes yes yes yes yes",
		"",
	)
	if structured.OverallScore <= repetitive.OverallScore {
		t.Errorf("structured score %v should exceed repetitive score %v",
			structured.OverallScore, repetitive.OverallScore)
	}
}

func TestPerformance_TokensPerSecond(t *testing.T) {
	m := NewMetricsCalculator()

	p := m.Performance(&EventRecord{ResponseTime: 2.0, TokenCount: 300})
	if math.Abs(p.TokensPerSecond-150) > 1e-9 {
		t.Errorf("tokens/s = %v, want 150", p.TokensPerSecond)
	}

	// Zero response time must not divide by zero.
	p = m.Performance(&EventRecord{ResponseTime: 0, TokenCount: 100})
	if math.IsInf(p.TokensPerSecond, 0) || math.IsNaN(p.TokensPerSecond) {
		t.Errorf("tokens/s with zero response time = %v", p.TokensPerSecond)
	}

	// Zero token count must not divide by zero either.
	p = m.Performance(&EventRecord{ResponseTime: 1.5, TokenCount: 0})
	if math.IsInf(p.TimePerToken, 0) || math.IsNaN(p.TimePerToken) {
		t.Errorf("time/token with zero tokens = %v", p.TimePerToken)
	}
}

func TestPerformance_Categories(t *testing.T) {
	m := NewMetricsCalculator()

	tests := []struct {
		rt     float64
		tokens int
		want   string
	}{
		{0.5, 200, "excellent"},
		{2.0, 150, "good"},
		{5.0, 200, "acceptable"},
		{20.0, 10, "poor"},
	}
	for _, tt := range tests {
		p := m.Performance(&EventRecord{ResponseTime: tt.rt, TokenCount: tt.tokens})
		if p.PerformanceCategory != tt.want {
			t.Errorf("category(rt=%v, tokens=%d) = %q, want %q", tt.rt, tt.tokens, p.PerformanceCategory, tt.want)
		}
	}
}

func TestConfidenceCategory(t *testing.T) {
	tests := []struct {
		conf float64
		want string
	}{
		{0.95, "very_high"},
		{0.75, "high"},
		{0.55, "medium"},
		{0.35, "low"},
		{0.1, "very_low"},
	}
	for _, tt := range tests {
		if got := confidenceCategory(tt.conf); got != tt.want {
			t.Errorf("confidenceCategory(%v) = %q, want %q", tt.conf, got, tt.want)
		}
	}
}

func TestTrendTracker(t *testing.T) {
	tr := NewTrendTracker(10)

	// First observation: no history yet.
	if _, ok := tr.Observe("m1", "response_time", 1.0); ok {
		t.Error("first observation must report no trend")
	}

	for i := 0; i < 5; i++ {
		tr.Observe("m1", "response_time", 1.0)
	}
	trend, ok := tr.Observe("m1", "response_time", 2.0)
	if !ok {
		t.Fatal("expected a trend once history exists")
	}
	if trend.Direction != "increasing" {
		t.Errorf("direction = %q, want increasing", trend.Direction)
	}
	if math.Abs(trend.PctChange-100) > 1e-6 {
		t.Errorf("pct change = %v, want 100", trend.PctChange)
	}

	// Independent per model.
	if _, ok := tr.Observe("m2", "response_time", 5.0); ok {
		t.Error("models must not share history")
	}
}
