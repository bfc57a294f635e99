package engine

import (
	"fmt"
	"sort"
	"sync"
)

// MethodAll runs every registered anomaly method and unions the flags.
const MethodAll = "all"

const (
	// DefaultAnomalyThreshold is the z-score style flag boundary.
	DefaultAnomalyThreshold = 2.0
	// DefaultAnomalyWindow is the per-(model, field) rolling window size.
	DefaultAnomalyWindow = 100
)

// MethodInput is what an anomaly method sees for one field of one record.
// Window holds the most recent values for the (model, field) pair, oldest
// first, including Value as the last element.
type MethodInput struct {
	Field        string
	Value        float64
	Window       []float64
	BaselineMean float64
	BaselineStd  float64
	HasBaseline  bool
	Threshold    float64
}

// MethodResult is the (is_anomalous, score) pair every method returns.
// Higher score means more anomalous; scores are comparable across methods
// on the anomaly severity scale.
type MethodResult struct {
	Anomalous bool
	Score     float64
	Details   string
}

// AnomalyMethod is one detection strategy. Implementations must be
// stateless: all history arrives through MethodInput.
type AnomalyMethod interface {
	// Name is the method identifier used in configuration and in
	// anomaly_types tags (e.g. "zscore").
	Name() string

	// MinSamples is the minimum window occupancy before the method
	// reports. Below it the field is silently unscored.
	MinSamples() int

	Evaluate(in *MethodInput) *MethodResult
}

// MethodRegistry maps method names to implementations. Built once at
// wiring time; read-only afterwards.
type MethodRegistry map[string]AnomalyMethod

// Resolve returns the methods selected by name. "all" returns every
// registered method in stable name order. Unknown names are caller
// misconfiguration and fail the operation.
func (r MethodRegistry) Resolve(name string) ([]AnomalyMethod, error) {
	if name == "" {
		name = "zscore"
	}
	if name == MethodAll {
		names := make([]string, 0, len(r))
		for n := range r {
			names = append(names, n)
		}
		sort.Strings(names)
		out := make([]AnomalyMethod, 0, len(names))
		for _, n := range names {
			out = append(out, r[n])
		}
		return out, nil
	}
	m, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown anomaly method %q", ErrConfig, name)
	}
	return []AnomalyMethod{m}, nil
}

// AnomalyConfig selects the fields, method and thresholds for a detector.
type AnomalyConfig struct {
	Fields         []string
	Method         string  // zscore | iqr | isolation | trend | all
	Threshold      float64 // default DefaultAnomalyThreshold
	WindowSize     int     // default DefaultAnomalyWindow
	IncludeDetails bool
}

func (c *AnomalyConfig) withDefaults() (AnomalyConfig, error) {
	out := *c
	if len(out.Fields) == 0 {
		return out, fmt.Errorf("%w: anomaly detection requires at least one field", ErrConfig)
	}
	if out.Method == "" {
		out.Method = "zscore"
	}
	if out.Threshold == 0 {
		out.Threshold = DefaultAnomalyThreshold
	}
	if out.Threshold < 0.1 || out.Threshold > 10 {
		return out, fmt.Errorf("%w: anomaly threshold %.3f outside [0.1, 10]", ErrConfig, out.Threshold)
	}
	if out.WindowSize == 0 {
		out.WindowSize = DefaultAnomalyWindow
	}
	if out.WindowSize < 10 || out.WindowSize > 10000 {
		return out, fmt.Errorf("%w: anomaly window %d outside [10, 10000]", ErrConfig, out.WindowSize)
	}
	return out, nil
}

// valueWindow is a fixed-capacity FIFO of float64 samples.
type valueWindow struct {
	values []float64
	head   int
	size   int
}

func newValueWindow(capacity int) *valueWindow {
	return &valueWindow{values: make([]float64, capacity)}
}

func (w *valueWindow) push(v float64) {
	if w.size < len(w.values) {
		w.size++
	}
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
}

// snapshot returns the live values oldest first.
func (w *valueWindow) snapshot() []float64 {
	out := make([]float64, 0, w.size)
	start := w.head - w.size
	if start < 0 {
		start += len(w.values)
	}
	for i := 0; i < w.size; i++ {
		out = append(out, w.values[(start+i)%len(w.values)])
	}
	return out
}

// AnomalyDetector evaluates the configured numeric fields of each record
// with the selected methods, keeping a rolling window per (model, field).
// Window state is mutex-guarded; the pipeline shards by model so a single
// worker owns each model's windows.
type AnomalyDetector struct {
	cfg     AnomalyConfig
	methods []AnomalyMethod
	source  BaselineSource

	mu      sync.Mutex
	windows map[string]*valueWindow
}

// NewAnomalyDetector validates the configuration against the registry.
// source may be nil; methods then rely on rolling windows only.
func NewAnomalyDetector(cfg AnomalyConfig, registry MethodRegistry, source BaselineSource) (*AnomalyDetector, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	methods, err := registry.Resolve(resolved.Method)
	if err != nil {
		return nil, err
	}
	return &AnomalyDetector{
		cfg:     resolved,
		methods: methods,
		source:  source,
		windows: make(map[string]*valueWindow),
	}, nil
}

// Evaluate scores one record. Fields that do not resolve to a numeric
// value are skipped; a record with no flags still gets an AnomalyResult
// so downstream consumers can rely on the aggregate fields being present.
func (d *AnomalyDetector) Evaluate(rec *EventRecord) *AnomalyResult {
	res := &AnomalyResult{}

	var baseline *BaselineRecord
	if d.source != nil {
		if b, ok := d.source.Lookup(rec.ModelID); ok {
			baseline = b
		}
	}

	for _, field := range d.cfg.Fields {
		value, ok := NumericField(rec, field)
		if !ok {
			continue
		}

		window := d.observe(rec.ModelID, field, value)

		in := &MethodInput{
			Field:     field,
			Value:     value,
			Window:    window,
			Threshold: d.cfg.Threshold,
		}
		if mean, std, ok := baseline.FieldStats(field); ok {
			in.BaselineMean = mean
			in.BaselineStd = std
			in.HasBaseline = true
		}

		for _, m := range d.methods {
			if !in.HasBaseline && len(window) < m.MinSamples() {
				continue
			}
			out := m.Evaluate(in)
			if out == nil || !out.Anomalous {
				continue
			}
			tag := field + "_" + m.Name()
			fa := FieldAnomaly{Field: field, Method: m.Name(), Score: out.Score}
			if d.cfg.IncludeDetails {
				fa.Details = out.Details
			}
			res.Anomalies = append(res.Anomalies, fa)
			res.Types = append(res.Types, tag)
			if out.Score > res.MaxScore {
				res.MaxScore = out.Score
			}
		}
	}

	res.Count = len(res.Anomalies)
	res.Detected = res.Count > 0
	if res.Detected {
		res.Severity = AnomalySeverityScale.Classify(res.MaxScore)
	} else {
		res.Severity = "none"
	}
	return res
}

// observe appends the value to the (model, field) window and returns the
// updated contents, oldest first.
func (d *AnomalyDetector) observe(modelID, field string, value float64) []float64 {
	key := modelID + "\x00" + field
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[key]
	if !ok {
		w = newValueWindow(d.cfg.WindowSize)
		d.windows[key] = w
	}
	w.push(value)
	return w.snapshot()
}
