package api

import (
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

func TestAuthCache_FreshHit(t *testing.T) {
	cache := newAuthCache(1 * time.Minute)
	cache.set("dgk_abc123", &authProject{ID: "proj_1", Name: "alpha"})

	proj, hit, needsRefresh := cache.get("dgk_abc123")
	if !hit {
		t.Fatal("expected cache hit")
	}
	if needsRefresh {
		t.Error("fresh entry should not need refresh")
	}
	if proj.ID != "proj_1" {
		t.Errorf("expected proj_1, got %s", proj.ID)
	}
}

func TestAuthCache_Miss(t *testing.T) {
	cache := newAuthCache(1 * time.Minute)

	proj, hit, needsRefresh := cache.get("dgk_nonexistent")
	if hit {
		t.Error("expected cache miss")
	}
	if proj != nil {
		t.Error("expected nil project on miss")
	}
	if needsRefresh {
		t.Error("miss should not need refresh")
	}
}

func TestAuthCache_StaleHit_ReturnsValueAndSignalsRefresh(t *testing.T) {
	cache := newAuthCache(1 * time.Millisecond)
	cache.set("dgk_abc123", &authProject{ID: "proj_1"})
	time.Sleep(5 * time.Millisecond)

	proj, hit, needsRefresh := cache.get("dgk_abc123")
	if !hit {
		t.Fatal("expected stale hit")
	}
	if !needsRefresh {
		t.Error("expired entry should signal refresh")
	}
	if proj.ID != "proj_1" {
		t.Error("stale hit should still return the project")
	}
}

func TestAuthCache_StaleHit_OnlyOneRefreshSignal(t *testing.T) {
	cache := newAuthCache(1 * time.Millisecond)
	cache.set("dgk_key", &authProject{ID: "proj_1"})
	time.Sleep(5 * time.Millisecond)

	// 50 goroutines all read the stale entry; exactly one gets the signal
	var wg sync.WaitGroup
	var mu sync.Mutex
	refreshCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, hit, needsRefresh := cache.get("dgk_key")
			if !hit {
				t.Error("expected stale hit")
			}
			if needsRefresh {
				mu.Lock()
				refreshCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if refreshCount != 1 {
		t.Errorf("expected exactly 1 refresh signal, got %d", refreshCount)
	}
}

func TestAuthCache_SetAfterStale_ResetsFreshness(t *testing.T) {
	cache := newAuthCache(1 * time.Millisecond)
	cache.set("dgk_key", &authProject{ID: "proj_1"})
	time.Sleep(5 * time.Millisecond)

	if _, _, needsRefresh := cache.get("dgk_key"); !needsRefresh {
		t.Fatal("expected refresh signal")
	}

	cache.set("dgk_key", &authProject{ID: "proj_1_updated"})

	proj, hit, needsRefresh := cache.get("dgk_key")
	if !hit {
		t.Fatal("expected hit after refresh")
	}
	if needsRefresh {
		t.Error("newly set entry should be fresh")
	}
	if proj.ID != "proj_1_updated" {
		t.Errorf("expected updated project, got %s", proj.ID)
	}
}

type staticThresholds map[string]*engine.Threshold

func (s staticThresholds) Lookup(metric string) (*engine.Threshold, bool) {
	th, ok := s[metric]
	return th, ok
}

func TestOverlayThresholds_EmptyFallsBackToBase(t *testing.T) {
	base := staticThresholds{
		"response_time": {Metric: "response_time", Warning: 20, Critical: 40},
	}

	for _, raw := range []string{"", "{}", "null", "not json"} {
		src := overlayThresholds(base, json.RawMessage(raw))
		th, ok := src.Lookup("response_time")
		if !ok || th.Warning != 20 {
			t.Errorf("raw %q: expected base lookup to survive, got %+v ok=%v", raw, th, ok)
		}
	}
}

func TestOverlayThresholds_OverrideWins(t *testing.T) {
	base := staticThresholds{
		"response_time": {Metric: "response_time", Warning: 20, Critical: 40},
		"token_count":   {Metric: "token_count", Warning: 25, Critical: 50},
	}
	raw := json.RawMessage(`{"response_time": {"type": "lower", "warning": 10, "critical": 30}}`)

	src := overlayThresholds(base, raw)

	th, ok := src.Lookup("response_time")
	if !ok {
		t.Fatal("expected overridden metric to resolve")
	}
	if th.Warning != 10 || th.Critical != 30 {
		t.Errorf("override not applied: %+v", th)
	}
	if th.Type != engine.ThresholdLower {
		t.Errorf("expected lower threshold type, got %v", th.Type)
	}

	// Non-overridden metric falls through to the base table
	th, ok = src.Lookup("token_count")
	if !ok || th.Warning != 25 {
		t.Errorf("expected base fallthrough, got %+v ok=%v", th, ok)
	}
}

func TestOverlayThresholds_NilBase(t *testing.T) {
	raw := json.RawMessage(`{"confidence_score": {"type": "upper", "warning": 15, "critical": 35}}`)
	src := overlayThresholds(nil, raw)

	if _, ok := src.Lookup("response_time"); ok {
		t.Error("expected miss for metric with neither override nor base")
	}
	th, ok := src.Lookup("confidence_score")
	if !ok || th.Critical != 35 {
		t.Errorf("expected override with nil base, got %+v ok=%v", th, ok)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer dgk_abc", "dgk_abc", true},
		{"Bearer   dgk_abc  ", "dgk_abc", true},
		{"bearer dgk_abc", "", false},
		{"Basic dXNlcg==", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := extractBearerToken(r)
		if ok != tt.ok || got != tt.want {
			t.Errorf("header %q: got (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
