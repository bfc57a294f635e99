package methods

import (
	"fmt"
	"math"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// trendResidualRatio flags values that land further from the fitted line
// than this many residual standard deviations.
const trendResidualRatio = 2.0

// Trend fits a line to the prior window values and flags the current
// value when it breaks away from the projection. Catches regime changes
// that zscore misses because the window mean has already started moving.
type Trend struct{}

func (Trend) Name() string { return "trend" }

func (Trend) MinSamples() int { return 10 }

func (Trend) Evaluate(in *engine.MethodInput) *engine.MethodResult {
	prior := in.Window[:len(in.Window)-1]
	if len(prior) < (Trend{}).MinSamples()-1 {
		return &engine.MethodResult{}
	}

	xs := make([]float64, len(prior))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope, intercept, ok := engine.LinearRegression(xs, prior)
	if !ok {
		return &engine.MethodResult{}
	}

	residuals := make([]float64, len(prior))
	for i, v := range prior {
		residuals[i] = v - (slope*float64(i) + intercept)
	}
	residStd := engine.StdDev(residuals)

	predicted := slope*float64(len(prior)) + intercept
	err := math.Abs(in.Value - predicted)

	if residStd < 1e-9 {
		// Perfectly linear history: any departure is a break.
		if err < 1e-9 {
			return &engine.MethodResult{}
		}
		return &engine.MethodResult{
			Anomalous: true,
			Score:     err / 1e-3,
			Details:   fmt.Sprintf("value %.4f off exact trend projection %.4f", in.Value, predicted),
		}
	}

	score := err / math.Max(residStd, 1e-3)
	return &engine.MethodResult{
		Anomalous: err > trendResidualRatio*residStd,
		Score:     score,
		Details:   fmt.Sprintf("predicted=%.4f err=%.4f resid_std=%.4f", predicted, err, residStd),
	}
}

// Registry wires every method under its configuration name.
func Registry() engine.MethodRegistry {
	return engine.MethodRegistry{
		"zscore":    ZScore{},
		"iqr":       IQR{},
		"isolation": Isolation{},
		"trend":     Trend{},
	}
}
