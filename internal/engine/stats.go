package engine

import (
	"math"
	"sort"
)

// Shared numeric helpers used by the anomaly methods and the baseline
// calculator. Stdev is the sample standard deviation (n-1) unless the
// window has fewer than two values, in which case it is 0.

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Quartiles returns Q1 and Q3 of the values using the same index scheme
// as the historical detector (n/4 and 3n/4 over the sorted slice).
func Quartiles(values []float64) (q1, q3 float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	return sorted[n/4], sorted[3*n/4]
}

// LinearRegression fits y = slope*x + intercept by least squares.
// ok is false when fewer than two points exist or x has no variance.
func LinearRegression(xVals, yVals []float64) (slope, intercept float64, ok bool) {
	if len(xVals) != len(yVals) || len(xVals) < 2 {
		return 0, 0, false
	}
	n := float64(len(xVals))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xVals {
		sumX += xVals[i]
		sumY += yVals[i]
		sumXY += xVals[i] * yVals[i]
		sumX2 += xVals[i] * xVals[i]
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}
