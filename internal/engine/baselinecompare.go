package engine

import (
	"fmt"
	"math"
)

// Default alert thresholds, in percent deviation from the baseline, used
// when the threshold table has no row for a metric.
const (
	DefaultWarningPct  = 25.0
	DefaultCriticalPct = 50.0
)

// undefinedPct stands in for a percentage change against a zero
// reference. Finite so it survives JSON encoding; any such comparison is
// already classified critical, the number is informational.
const undefinedPct = 1e9

// BaselineComparator grades current metric values against the stored
// per-model baseline. Thresholds come from the external threshold table
// when a row exists for the metric, otherwise the package defaults apply
// in both directions.
type BaselineComparator struct {
	baselines  BaselineSource
	thresholds ThresholdSource
}

// NewBaselineComparator builds a comparator. thresholds may be nil; every
// metric then falls back to the default warning/critical percentages.
func NewBaselineComparator(baselines BaselineSource, thresholds ThresholdSource) (*BaselineComparator, error) {
	if baselines == nil {
		return nil, fmt.Errorf("%w: baseline comparator requires a baseline source", ErrConfig)
	}
	return &BaselineComparator{baselines: baselines, thresholds: thresholds}, nil
}

// Compare grades each requested field of the record against the model's
// baseline. A missing baseline yields one Unavailable comparison per
// field so consumers can distinguish "no reference" from "normal".
func (c *BaselineComparator) Compare(rec *EventRecord, fields []string) []*BaselineComparison {
	baseline, ok := c.baselines.Lookup(rec.ModelID)
	out := make([]*BaselineComparison, 0, len(fields))

	for _, field := range fields {
		current, valid := NumericField(rec, field)
		if !valid {
			continue
		}
		if !ok {
			out = append(out, &BaselineComparison{Metric: field, CurrentValue: current, Unavailable: true})
			continue
		}
		reference, _, statsOK := baseline.FieldStats(field)
		if !statsOK {
			out = append(out, &BaselineComparison{Metric: field, CurrentValue: current, Unavailable: true})
			continue
		}
		out = append(out, c.CompareValue(field, current, reference))
	}
	return out
}

// CompareValue grades one (metric, current, reference) triple.
//
// A zero reference with a nonzero current value is always critical: the
// percentage change is undefined and the safe reading is "this metric
// came out of nowhere". Zero against zero is normal.
func (c *BaselineComparator) CompareValue(metric string, current, reference float64) *BaselineComparison {
	cmp := &BaselineComparison{
		Metric:            metric,
		CurrentValue:      current,
		ReferenceValue:    reference,
		AbsoluteDeviation: math.Abs(current - reference),
	}

	if reference == 0 {
		if current == 0 {
			cmp.Status = StatusNormal
			cmp.StatusLabel = StatusNormal.String()
			cmp.DeviationCategory = DeviationScale.Classify(0)
			cmp.Trend = "stable"
			return cmp
		}
		cmp.PercentageChange = math.Copysign(undefinedPct, current)
		cmp.Status = StatusCritical
		cmp.StatusLabel = StatusCritical.String()
		cmp.DeviationCategory = DeviationScale.Classify(undefinedPct)
		cmp.Trend = trendLabel(cmp.PercentageChange)
		cmp.AlertMessage = fmt.Sprintf("%s is %.4f against a zero baseline [critical]", metric, current)
		return cmp
	}

	pct := (current - reference) / math.Abs(reference) * 100
	cmp.PercentageChange = pct
	cmp.Ratio = current / reference
	cmp.Trend = trendLabel(pct)
	cmp.DeviationCategory = DeviationScale.Classify(math.Abs(pct))

	warning, critical := DefaultWarningPct, DefaultCriticalPct
	adverse := math.Abs(pct)
	if c.thresholds != nil {
		if th, ok := c.thresholds.Lookup(metric); ok {
			warning, critical = th.Warning, th.Critical
			// A directional threshold only alerts on changes in the
			// adverse direction.
			switch th.Type {
			case ThresholdUpper:
				adverse = pct
			case ThresholdLower:
				adverse = -pct
			}
		}
	}

	switch {
	case adverse >= critical:
		cmp.Status = StatusCritical
	case adverse >= warning:
		cmp.Status = StatusWarning
	default:
		cmp.Status = StatusNormal
	}
	cmp.StatusLabel = cmp.Status.String()

	if cmp.Status != StatusNormal {
		verb := "increased"
		if pct < 0 {
			verb = "decreased"
		}
		cmp.AlertMessage = fmt.Sprintf("%s %s %.1f%% against baseline (%.4f -> %.4f) [%s]",
			metric, verb, math.Abs(pct), reference, current, cmp.StatusLabel)
	}
	return cmp
}

func trendLabel(pct float64) string {
	switch {
	case pct > 5:
		return "increasing"
	case pct < -5:
		return "decreasing"
	default:
		return "stable"
	}
}
