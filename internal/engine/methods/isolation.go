package methods

import (
	"fmt"
	"math"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// isolationRatio flags points whose mean distance to the rest of the
// window is more than this many spreads away.
const isolationRatio = 2.0

// Isolation scores a value by how far it sits from every other sample in
// the window, normalized by the spread of those distances. A simplified,
// single-dimensional take on isolation forests: lonely points score high
// even when the window mean looks unremarkable.
type Isolation struct{}

func (Isolation) Name() string { return "isolation" }

func (Isolation) MinSamples() int { return 20 }

func (Isolation) Evaluate(in *engine.MethodInput) *engine.MethodResult {
	// The current value is the last window entry; measure against the rest.
	prior := in.Window[:len(in.Window)-1]
	if len(prior) < (Isolation{}).MinSamples()-1 {
		return &engine.MethodResult{}
	}

	distances := make([]float64, len(prior))
	for i, v := range prior {
		distances[i] = math.Abs(in.Value - v)
	}

	meanDist := engine.Mean(distances)
	spread := engine.StdDev(distances)
	score := meanDist / math.Max(spread, 1e-3)

	return &engine.MethodResult{
		Anomalous: score > isolationRatio,
		Score:     score,
		Details:   fmt.Sprintf("mean_dist=%.4f spread=%.4f over %d samples", meanDist, spread, len(prior)),
	}
}
