// Package thresholds loads the externally maintained alert threshold
// table. Operators edit the YAML file; the comparator only reads it.
package thresholds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

type fileDoc struct {
	Thresholds []entry `yaml:"thresholds"`
}

type entry struct {
	Metric      string  `yaml:"metric"`
	Type        string  `yaml:"type"` // upper | lower
	Warning     float64 `yaml:"warning"`
	Critical    float64 `yaml:"critical"`
	Unit        string  `yaml:"unit"`
	Description string  `yaml:"description"`
}

// Table is an immutable metric -> threshold lookup. Implements
// engine.ThresholdSource.
type Table struct {
	byMetric map[string]*engine.Threshold
}

// LoadFile reads and validates a threshold table from a YAML file.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read threshold file: %w", err)
	}
	return Parse(raw)
}

// Parse validates a YAML threshold document.
func Parse(raw []byte) (*Table, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse thresholds: %v", engine.ErrConfig, err)
	}

	byMetric := make(map[string]*engine.Threshold, len(doc.Thresholds))
	for i, e := range doc.Thresholds {
		th, err := e.toThreshold()
		if err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i, err)
		}
		if _, dup := byMetric[th.Metric]; dup {
			return nil, fmt.Errorf("%w: duplicate threshold for metric %q", engine.ErrConfig, th.Metric)
		}
		byMetric[th.Metric] = th
	}
	return &Table{byMetric: byMetric}, nil
}

func (e entry) toThreshold() (*engine.Threshold, error) {
	if e.Metric == "" {
		return nil, fmt.Errorf("%w: metric name is empty", engine.ErrConfig)
	}

	var typ engine.ThresholdType
	switch e.Type {
	case "upper", "":
		typ = engine.ThresholdUpper
	case "lower":
		typ = engine.ThresholdLower
	default:
		return nil, fmt.Errorf("%w: metric %q: unknown threshold type %q", engine.ErrConfig, e.Metric, e.Type)
	}

	if e.Warning <= 0 || e.Critical <= 0 {
		return nil, fmt.Errorf("%w: metric %q: thresholds must be positive", engine.ErrConfig, e.Metric)
	}
	if e.Warning >= e.Critical {
		return nil, fmt.Errorf("%w: metric %q: warning %.3f must be below critical %.3f",
			engine.ErrConfig, e.Metric, e.Warning, e.Critical)
	}

	return &engine.Threshold{
		Metric:      e.Metric,
		Type:        typ,
		Warning:     e.Warning,
		Critical:    e.Critical,
		Unit:        e.Unit,
		Description: e.Description,
	}, nil
}

// Lookup implements engine.ThresholdSource.
func (t *Table) Lookup(metric string) (*engine.Threshold, bool) {
	th, ok := t.byMetric[metric]
	return th, ok
}

// Len reports the number of configured metrics.
func (t *Table) Len() int { return len(t.byMetric) }
