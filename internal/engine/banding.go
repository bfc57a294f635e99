package engine

// BandScale maps a continuous score onto a fixed, ordered, non-overlapping
// set of labels. Drift, anomaly and deviation severities all share this so
// the partition-totality guarantee lives in exactly one place: every score
// in [0, +Inf) maps to exactly one label.
type BandScale struct {
	labels []string
	cuts   []float64 // ascending; label[i] covers [cuts[i-1], cuts[i])
}

// NewBandScale builds a scale from len(cuts)+1 labels and strictly
// ascending cutpoints. Panics on a malformed scale: scales are package
// constants, a bad one is a programming error, not input.
func NewBandScale(labels []string, cuts []float64) BandScale {
	if len(labels) != len(cuts)+1 {
		panic("banding: need exactly len(cuts)+1 labels")
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] <= cuts[i-1] {
			panic("banding: cutpoints must be strictly ascending")
		}
	}
	return BandScale{labels: labels, cuts: cuts}
}

// Classify returns the label of the band containing score. Scores below
// the first cutpoint (including negatives) take the first label; scores at
// or above the last cutpoint take the last.
func (s BandScale) Classify(score float64) string {
	for i, cut := range s.cuts {
		if score < cut {
			return s.labels[i]
		}
	}
	return s.labels[len(s.labels)-1]
}

// Labels returns the ordered band labels.
func (s BandScale) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// DriftSeverityScale bands drift scores: minimal [0,0.1), low [0.1,0.3),
// medium [0.3,0.5), high [0.5,0.7), critical [0.7,+Inf).
var DriftSeverityScale = NewBandScale(
	[]string{"minimal", "low", "medium", "high", "critical"},
	[]float64{0.1, 0.3, 0.5, 0.7},
)

// AnomalySeverityScale bands max anomaly scores: low <2, medium [2,3),
// high [3,5), critical >=5.
var AnomalySeverityScale = NewBandScale(
	[]string{"low", "medium", "high", "critical"},
	[]float64{2, 3, 5},
)

// DeviationScale bands absolute baseline percentage changes into the
// magnitude categories attached alongside comparison status.
var DeviationScale = NewBandScale(
	[]string{"minimal", "small", "moderate", "large", "extreme"},
	[]float64{5, 15, 30, 50},
)
