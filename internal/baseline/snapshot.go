// Package baseline holds the per-model baseline snapshots the detectors
// compare against: an immutable snapshot type, an atomically swapped
// in-process store, the trailing-window calculator that produces new
// snapshots, and a flat-file codec for persisting them.
package baseline

import (
	"sync/atomic"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// Snapshot is one immutable baseline table. Readers hold a snapshot for
// the lifetime of a batch so every record in the batch sees the same
// reference values.
type Snapshot struct {
	Version    int64
	ComputedAt time.Time

	byModel map[string]*engine.BaselineRecord
}

// NewSnapshot builds a snapshot from the given records. The map is copied;
// callers cannot mutate a published snapshot.
func NewSnapshot(records []*engine.BaselineRecord, computedAt time.Time) *Snapshot {
	byModel := make(map[string]*engine.BaselineRecord, len(records))
	for _, rec := range records {
		byModel[rec.ModelID] = rec
	}
	return &Snapshot{ComputedAt: computedAt, byModel: byModel}
}

// Lookup implements engine.BaselineSource.
func (s *Snapshot) Lookup(modelID string) (*engine.BaselineRecord, bool) {
	rec, ok := s.byModel[modelID]
	return rec, ok
}

// Models returns the model ids in the snapshot, in map order.
func (s *Snapshot) Models() []string {
	out := make([]string, 0, len(s.byModel))
	for id := range s.byModel {
		out = append(out, id)
	}
	return out
}

// Len reports the number of models in the snapshot.
func (s *Snapshot) Len() int { return len(s.byModel) }

// Store publishes baseline snapshots to readers. Swap is atomic: a reader
// sees either the whole old snapshot or the whole new one, never a mix.
// A failed recalculation simply never calls Swap, leaving the previous
// snapshot serving.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Int64
}

// NewStore starts with an empty snapshot so lookups before the first
// swap degrade to "baseline unavailable" rather than nil panics.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(NewSnapshot(nil, time.Time{}))
	return s
}

// Swap publishes a new snapshot, assigning it the next version, and
// returns the version number.
func (s *Store) Swap(next *Snapshot) int64 {
	v := s.version.Add(1)
	next.Version = v
	s.current.Store(next)
	return v
}

// Current returns the live snapshot. Callers must treat it as read-only.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Lookup implements engine.BaselineSource against the live snapshot.
// Batch-scoped consumers should pin Current() instead, so one batch sees
// one version.
func (s *Store) Lookup(modelID string) (*engine.BaselineRecord, bool) {
	return s.current.Load().Lookup(modelID)
}
