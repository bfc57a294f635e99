package thresholds

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

const validDoc = `
thresholds:
  - metric: response_time
    type: upper
    warning: 25
    critical: 50
    unit: percent
    description: latency regression against baseline
  - metric: confidence_score
    type: lower
    warning: 10
    critical: 30
  - metric: token_count
    warning: 40
    critical: 80
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("len = %d, want 3", table.Len())
	}

	rt, ok := table.Lookup("response_time")
	if !ok {
		t.Fatal("response_time missing")
	}
	if rt.Type != engine.ThresholdUpper || rt.Warning != 25 || rt.Critical != 50 {
		t.Errorf("response_time = %+v", rt)
	}

	conf, _ := table.Lookup("confidence_score")
	if conf.Type != engine.ThresholdLower {
		t.Errorf("confidence_score type = %v, want lower", conf.Type)
	}

	// Type defaults to upper when omitted.
	tc, _ := table.Lookup("token_count")
	if tc.Type != engine.ThresholdUpper {
		t.Errorf("token_count type = %v, want upper", tc.Type)
	}

	if _, ok := table.Lookup("unknown_metric"); ok {
		t.Error("unknown metric must not resolve")
	}
}

func TestParse_Errors(t *testing.T) {
	docs := map[string]string{
		"unknown type": `
thresholds:
  - metric: response_time
    type: sideways
    warning: 10
    critical: 20
`,
		"warning above critical": `
thresholds:
  - metric: response_time
    warning: 50
    critical: 25
`,
		"missing metric": `
thresholds:
  - warning: 10
    critical: 20
`,
		"non-positive": `
thresholds:
  - metric: response_time
    warning: 0
    critical: 20
`,
		"duplicate metric": `
thresholds:
  - metric: response_time
    warning: 10
    critical: 20
  - metric: response_time
    warning: 15
    critical: 30
`,
	}
	for name, doc := range docs {
		if _, err := Parse([]byte(doc)); !errors.Is(err, engine.ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %v", name, err)
		}
	}

	if _, err := Parse([]byte("thresholds: {")); !errors.Is(err, engine.ErrConfig) {
		t.Errorf("malformed yaml: expected ErrConfig, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("len = %d, want 3", table.Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
