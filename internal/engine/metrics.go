package engine

import (
	"math"
	"strings"
	"sync"
)

// MetricsCalculator derives quality and performance metrics from a record.
// Quality scoring is heuristic by design: it uses shallow text structure,
// not a judge model, so it is deterministic and safe to run per event.
type MetricsCalculator struct{}

func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

var transitionWords = []string{
	"however", "therefore", "furthermore", "additionally", "moreover",
	"consequently", "meanwhile", "similarly", "in contrast", "for example",
}

var referencePronouns = map[string]struct{}{
	"it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "they": {}, "them": {},
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {},
}

// Quality computes the response-quality sub-scores. The overall score is
// the mean of readability, coherence, completeness and language quality.
func (m *MetricsCalculator) Quality(response, prompt string) *QualityMetrics {
	q := &QualityMetrics{ResponseLength: len(response)}
	if strings.TrimSpace(response) == "" {
		return q
	}

	words := strings.Fields(response)
	sentences := splitSentences(response)
	q.WordCount = len(words)
	q.SentenceCount = len(sentences)

	lengths := make([]float64, len(words))
	for i, w := range words {
		lengths[i] = float64(len(w))
	}
	q.AvgWordLength = Mean(lengths)

	q.Readability = readability(words, sentences)
	q.Coherence = coherence(response, sentences)
	q.Completeness = completeness(response, prompt, sentences)
	q.LanguageQuality = languageQuality(response, words, sentences)
	q.InformationDensity = informationDensity(words)
	q.OverallScore = (q.Readability + q.Coherence + q.Completeness + q.LanguageQuality) / 4

	return q
}

// Performance computes throughput metrics. tokens_per_second is guarded:
// a zero response time floors the denominator rather than dividing by zero.
func (m *MetricsCalculator) Performance(rec *EventRecord) *PerformanceMetrics {
	return &PerformanceMetrics{
		TokensPerSecond:     float64(rec.TokenCount) / math.Max(rec.ResponseTime, 1e-3),
		TimePerToken:        rec.ResponseTime / math.Max(float64(rec.TokenCount), 1),
		PerformanceCategory: performanceCategory(rec.ResponseTime, rec.TokenCount),
		ConfidenceCategory:  confidenceCategory(rec.ConfidenceScore),
	}
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ".")
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// readability is a simplified Flesch-style score normalized to [0,1]
// (higher reads easier).
func readability(words, sentences []string) float64 {
	if len(words) == 0 || len(sentences) == 0 {
		return 0
	}
	avgSentenceLen := float64(len(words)) / float64(len(sentences))
	total := 0.0
	for _, w := range words {
		total += float64(len(w))
	}
	avgWordLen := total / float64(len(words))

	score := 1.0 - math.Min(1.0, (avgSentenceLen/20+avgWordLen/6)/2)
	return math.Max(0, score)
}

// coherence counts transition words and reference pronouns as structure
// signals, scaled by sentence count.
func coherence(text string, sentences []string) float64 {
	if len(sentences) < 2 {
		return 1
	}
	lower := strings.ToLower(text)

	transitions := 0
	for _, t := range transitionWords {
		if strings.Contains(lower, t) {
			transitions++
		}
	}
	pronouns := 0
	for _, w := range strings.Fields(lower) {
		if _, ok := referencePronouns[w]; ok {
			pronouns++
		}
	}
	return math.Min(1, (float64(transitions)*0.1+float64(pronouns)*0.05)/float64(len(sentences)))
}

// completeness looks for a conclusion, examples and multi-sentence
// structure; when a prompt is available, keyword overlap pulls the score
// toward relevance.
func completeness(response, prompt string, sentences []string) float64 {
	lower := strings.ToLower(response)

	score := 0.0
	if containsAny(lower, "conclusion", "summary", "finally", "therefore") {
		score += 0.4
	}
	if containsAny(lower, "example", "instance", "such as", "for example") {
		score += 0.3
	}
	if len(sentences) >= 2 {
		score += 0.3
	}

	if strings.TrimSpace(prompt) != "" {
		promptSet := wordSet(prompt)
		responseSet := wordSet(response)
		overlap := 0
		for w := range promptSet {
			if _, ok := responseSet[w]; ok {
				overlap++
			}
		}
		relevance := float64(overlap) / math.Max(float64(len(promptSet)), 1)
		score = (score + relevance) / 2
	}
	return math.Min(1, score)
}

func languageQuality(text string, words, sentences []string) float64 {
	grammar := grammarScore(text, sentences)
	diversity := vocabularyDiversity(words)
	repetition := repetitionPenalty(words)

	quality := grammar*0.5 + diversity*0.3 + (1-repetition)*0.2
	return math.Max(0, math.Min(1, quality))
}

func grammarScore(text string, sentences []string) float64 {
	score := 0.0
	if text != "" && text[0] >= 'A' && text[0] <= 'Z' {
		score += 0.3
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		score += 0.3
	}
	proper := 0
	for _, s := range sentences {
		if s != "" && s[0] >= 'A' && s[0] <= 'Z' {
			proper++
		}
	}
	score += float64(proper) / math.Max(float64(len(sentences)), 1) * 0.4
	return math.Min(1, score)
}

// vocabularyDiversity is the type-token ratio.
func vocabularyDiversity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

// repetitionPenalty grows once a single word exceeds 10% of the text.
func repetitionPenalty(words []string) float64 {
	if len(words) < 2 {
		return 0
	}
	counts := make(map[string]int, len(words))
	maxCount := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		counts[lw]++
		if counts[lw] > maxCount {
			maxCount = counts[lw]
		}
	}
	ratio := float64(maxCount) / float64(len(words))
	return math.Max(0, ratio-0.1)
}

func informationDensity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	content := 0
	for _, w := range words {
		if _, ok := stopWords[strings.ToLower(w)]; !ok {
			content++
		}
	}
	return float64(content) / float64(len(words))
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func performanceCategory(responseTime float64, tokenCount int) string {
	tps := float64(tokenCount) / math.Max(responseTime, 1e-3)
	switch {
	case responseTime < 1.0 && tps > 100:
		return "excellent"
	case responseTime < 3.0 && tps > 50:
		return "good"
	case responseTime < 10.0 && tps > 20:
		return "acceptable"
	default:
		return "poor"
	}
}

func confidenceCategory(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "very_high"
	case confidence >= 0.7:
		return "high"
	case confidence >= 0.5:
		return "medium"
	case confidence >= 0.3:
		return "low"
	default:
		return "very_low"
	}
}

// TrendTracker keeps a bounded in-process history of metric values per
// model and reports percentage change against the historical mean,
// direction and volatility. Optional: only wired when include_trends is
// requested.
type TrendTracker struct {
	mu      sync.Mutex
	history map[string]map[string][]float64 // model -> metric -> values
	maxLen  int
}

// TrendMetrics is the trend readout for one metric.
type TrendMetrics struct {
	Metric     string  `json:"metric"`
	PctChange  float64 `json:"trend_pct"`
	Direction  string  `json:"trend_direction"`
	Volatility float64 `json:"trend_volatility"`
}

func NewTrendTracker(maxLen int) *TrendTracker {
	if maxLen <= 0 {
		maxLen = 100
	}
	return &TrendTracker{
		history: make(map[string]map[string][]float64),
		maxLen:  maxLen,
	}
}

// Observe records a value and returns the trend against prior history,
// or false when no history exists yet for the metric.
func (t *TrendTracker) Observe(modelID, metric string, value float64) (TrendMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byMetric, ok := t.history[modelID]
	if !ok {
		byMetric = make(map[string][]float64)
		t.history[modelID] = byMetric
	}
	prior := byMetric[metric]

	values := append(prior, value)
	if len(values) > t.maxLen {
		values = values[len(values)-t.maxLen:]
	}
	byMetric[metric] = values

	if len(prior) == 0 {
		return TrendMetrics{}, false
	}

	avg := Mean(prior)
	pct := (value - avg) / math.Max(avg, 1e-3) * 100

	direction := "stable"
	if pct > 5 {
		direction = "increasing"
	} else if pct < -5 {
		direction = "decreasing"
	}

	return TrendMetrics{
		Metric:     metric,
		PctChange:  pct,
		Direction:  direction,
		Volatility: StdDev(prior),
	}, true
}
