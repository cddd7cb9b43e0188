package valuestore

import (
	"sync"

	"github.com/pulseone-io/collector/pkg/model"
)

// Store is a thread-safe point-id -> last value map. It satisfies both
// worker.CurrentValueStore (Get/Set) and vpe.DataSource (Get) without
// either package importing this one.
type Store struct {
	mu sync.RWMutex
	values map[int64]model.TimestampedValue
}

// New constructs an empty Store.
func New() *Store {
	return &Store{values: make(map[int64]model.TimestampedValue)}
}

// Get returns the last recorded value for pointID.
func (s *Store) Get(pointID int64) (model.TimestampedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[pointID]
	return v, ok
}

// Set records v as pointID's latest value.
func (s *Store) Set(pointID int64, v model.TimestampedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[pointID] = v
}

// Seed pre-populates the store, e.g. from ConfigStore.CurrentValue rows at
// bootstrap, so RETURN_LAST/deadband comparisons have something to work
// with before the first live scan completes.
func (s *Store) Seed(values []model.TimestampedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.values[v.PointID] = v
	}
}
