// Package methods provides the anomaly detection strategies the engine
// fans each record out to. Each method is stateless; history arrives via
// the rolling window or the baseline statistics in the input.
package methods

import (
	"fmt"
	"math"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// zeroStdScore stands in for an undefined z-score: the distribution has
// collapsed to a point and the value is off it. Large but finite so it
// survives JSON encoding.
const zeroStdScore = 1e9

// ZScore flags values whose standardized distance from the mean exceeds
// the configured threshold. Baseline statistics are preferred when the
// store has them for the model; otherwise the rolling window supplies
// mean and standard deviation.
type ZScore struct{}

func (ZScore) Name() string { return "zscore" }

func (ZScore) MinSamples() int { return 10 }

func (ZScore) Evaluate(in *engine.MethodInput) *engine.MethodResult {
	var mean, std float64
	origin := "window"
	if in.HasBaseline {
		mean, std = in.BaselineMean, in.BaselineStd
		origin = "baseline"
	} else {
		mean = engine.Mean(in.Window)
		std = engine.StdDev(in.Window)
	}

	if std == 0 {
		if in.Value == mean {
			return &engine.MethodResult{}
		}
		return &engine.MethodResult{
			Anomalous: true,
			Score:     zeroStdScore,
			Details:   fmt.Sprintf("value %.4f deviates from constant %s mean %.4f", in.Value, origin, mean),
		}
	}

	z := math.Abs(in.Value-mean) / std
	return &engine.MethodResult{
		Anomalous: z > in.Threshold,
		Score:     z,
		Details:   fmt.Sprintf("z=%.2f mean=%.4f std=%.4f (%s)", z, mean, std, origin),
	}
}
