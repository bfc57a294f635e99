package methods

import (
	"fmt"
	"math"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// iqrMultiplier is the standard Tukey fence width.
const iqrMultiplier = 1.5

// IQR flags values outside the Tukey fences of the rolling window. It is
// insensitive to the tail shape, so it complements zscore on skewed
// metrics like response time. Window-only: baseline records carry no
// quartiles.
type IQR struct{}

func (IQR) Name() string { return "iqr" }

func (IQR) MinSamples() int { return 10 }

func (IQR) Evaluate(in *engine.MethodInput) *engine.MethodResult {
	if len(in.Window) < (IQR{}).MinSamples() {
		return &engine.MethodResult{}
	}

	q1, q3 := engine.Quartiles(in.Window)
	iqr := q3 - q1
	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	if in.Value >= lower && in.Value <= upper {
		return &engine.MethodResult{}
	}

	dist := math.Max(lower-in.Value, in.Value-upper)
	score := dist / math.Max(iqr, 1e-3)
	return &engine.MethodResult{
		Anomalous: true,
		Score:     score,
		Details:   fmt.Sprintf("value %.4f outside fences [%.4f, %.4f] iqr=%.4f", in.Value, lower, upper, iqr),
	}
}
