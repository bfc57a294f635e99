package engine

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Drift reference modes.
const (
	DriftModeBaseline = "baseline" // compare against the stored per-model centroid
	DriftModeWindow   = "window"   // compare against a rolling per-model window
)

const (
	// DefaultDriftThreshold flags records whose drift score exceeds it.
	DefaultDriftThreshold = 0.3
	// DefaultWindowSize is the per-key rolling window capacity.
	DefaultWindowSize = 50
	// recentSampleCount bounds how many window entries feed the
	// recent-similarity trend signal.
	recentSampleCount = 10
)

// DriftConfig selects the reference mode and thresholds for a detector.
type DriftConfig struct {
	Mode       string  // baseline | window (default baseline)
	Threshold  float64 // default DefaultDriftThreshold
	WindowSize int     // default DefaultWindowSize, window mode only
	Method     string  // similarity method, default cosine
}

func (c *DriftConfig) withDefaults() (DriftConfig, error) {
	out := *c
	if out.Mode == "" {
		out.Mode = DriftModeBaseline
	}
	if out.Mode != DriftModeBaseline && out.Mode != DriftModeWindow {
		return out, fmt.Errorf("%w: unknown drift mode %q", ErrConfig, out.Mode)
	}
	if out.Threshold == 0 {
		out.Threshold = DefaultDriftThreshold
	}
	if out.Threshold < 0 {
		return out, fmt.Errorf("%w: drift threshold %.3f < 0", ErrConfig, out.Threshold)
	}
	if out.WindowSize == 0 {
		out.WindowSize = DefaultWindowSize
	}
	if out.WindowSize < 1 {
		return out, fmt.Errorf("%w: window size %d < 1", ErrConfig, out.WindowSize)
	}
	if out.Method == "" {
		out.Method = MethodCosine
	}
	switch out.Method {
	case MethodCosine, MethodEuclidean, MethodManhattan:
	default:
		return out, fmt.Errorf("%w: unknown similarity method %q", ErrConfig, out.Method)
	}
	return out, nil
}

// keyWindow is a fixed-capacity ring buffer of embeddings for one model,
// with an incrementally maintained centroid: insert and evict are O(dim),
// never O(window * dim). The centroid sum is adjusted as entries come and
// go, so scoring an event does not rescan the window.
type keyWindow struct {
	entries [][]float64
	head    int // next slot to overwrite once full
	size    int
	sum     []float64 // per-dimension running sum over live entries
}

func newKeyWindow(capacity int) *keyWindow {
	return &keyWindow{
		entries: make([][]float64, capacity),
		sum:     make([]float64, embeddingDim),
	}
}

// push inserts an embedding, evicting the oldest entry FIFO once full.
func (w *keyWindow) push(emb []float64) {
	if old := w.entries[w.head]; old != nil {
		for i := range w.sum {
			w.sum[i] -= old[i]
		}
	} else {
		w.size++
	}
	w.entries[w.head] = emb
	for i := range w.sum {
		w.sum[i] += emb[i]
	}
	w.head = (w.head + 1) % len(w.entries)
}

// centroid returns the L2-normalized mean of the live entries, or nil for
// an empty window.
func (w *keyWindow) centroid() []float64 {
	if w.size == 0 {
		return nil
	}
	c := make([]float64, len(w.sum))
	norm := 0.0
	for i, v := range w.sum {
		c[i] = v / float64(w.size)
		norm += c[i] * c[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range c {
			c[i] /= norm
		}
	}
	return c
}

// recent returns up to n of the most recently pushed embeddings.
func (w *keyWindow) recent(n int) [][]float64 {
	if n > w.size {
		n = w.size
	}
	out := make([][]float64, 0, n)
	idx := w.head - 1
	for len(out) < n {
		if idx < 0 {
			idx += len(w.entries)
		}
		out = append(out, w.entries[idx])
		idx--
	}
	return out
}

// DriftDetector scores semantic divergence of a text field from either the
// stored per-model baseline centroid or a rolling window of recent texts.
// Window state is guarded by a mutex; the batch pipeline shards records by
// model so a single worker owns each key's window in practice.
type DriftDetector struct {
	cfg      DriftConfig
	embedder Embedder
	source   BaselineSource

	mu      sync.Mutex
	windows map[string]*keyWindow
}

// NewDriftDetector validates the configuration and builds a detector.
// source may be nil in window mode.
func NewDriftDetector(cfg DriftConfig, embedder Embedder, source BaselineSource) (*DriftDetector, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if resolved.Mode == DriftModeBaseline && source == nil {
		return nil, fmt.Errorf("%w: baseline drift mode requires a baseline source", ErrConfig)
	}
	if embedder == nil {
		embedder = NewLexicalEmbedder()
	}
	return &DriftDetector{
		cfg:      resolved,
		embedder: embedder,
		source:   source,
		windows:  make(map[string]*keyWindow),
	}, nil
}

// Score evaluates one text for the given model key. A missing baseline is
// not an error: the result carries a nil score and BaselineUnavailable so
// the caller never mistakes "no reference" for "no drift".
func (d *DriftDetector) Score(modelID, text string) *DriftResult {
	if strings.TrimSpace(text) == "" {
		zero := 0.0
		return &DriftResult{
			Score:    &zero,
			Detected: false,
			Severity: DriftSeverityScale.Classify(0),
		}
	}

	emb := d.embedder.Encode(text)

	switch d.cfg.Mode {
	case DriftModeWindow:
		return d.scoreAgainstWindow(modelID, emb)
	default:
		return d.scoreAgainstBaseline(modelID, emb)
	}
}

func (d *DriftDetector) scoreAgainstBaseline(modelID string, emb []float64) *DriftResult {
	rec, ok := d.source.Lookup(modelID)
	if !ok || rec.SampleCount == 0 || len(rec.Centroid) == 0 {
		return &DriftResult{
			Score:               nil,
			Detected:            false,
			BaselineUnavailable: true,
		}
	}

	sim := VectorSimilarity(emb, rec.Centroid, d.cfg.Method)
	score := 1 - sim
	return &DriftResult{
		Score:              &score,
		Detected:           score > d.cfg.Threshold,
		Severity:           DriftSeverityScale.Classify(score),
		BaselineSimilarity: &sim,
	}
}

func (d *DriftDetector) scoreAgainstWindow(modelID string, emb []float64) *DriftResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[modelID]
	if !ok {
		w = newKeyWindow(d.cfg.WindowSize)
		d.windows[modelID] = w
	}

	centroid := w.centroid()
	if centroid == nil {
		// First observation for this key seeds the window; there is no
		// reference to drift from yet.
		w.push(emb)
		return &DriftResult{
			Score:               nil,
			Detected:            false,
			BaselineUnavailable: true,
		}
	}

	sim := VectorSimilarity(emb, centroid, d.cfg.Method)
	score := 1 - sim

	recentSims := make([]float64, 0, recentSampleCount)
	for _, r := range w.recent(recentSampleCount) {
		recentSims = append(recentSims, VectorSimilarity(emb, r, d.cfg.Method))
	}
	recent := Mean(recentSims)

	w.push(emb)

	return &DriftResult{
		Score:              &score,
		Detected:           score > d.cfg.Threshold,
		Severity:           DriftSeverityScale.Classify(score),
		BaselineSimilarity: &sim,
		RecentSimilarity:   &recent,
	}
}

// WindowSize reports the live entry count for a key. Used by tests and
// the analytics endpoint.
func (d *DriftDetector) WindowSize(modelID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[modelID]; ok {
		return w.size
	}
	return 0
}
