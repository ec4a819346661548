package state

import "sync"

// Store owns the history and the values derived from it. Every mutation
// recomputes the summary and health from the full history under one lock.
type Store struct {
	mu         sync.RWMutex
	history    *History
	thresholds Thresholds
	summary    Summary
	health     Health
}

// NewStore creates an empty store.
func NewStore(capacity int, thresholds Thresholds) *Store {
	return &Store{
		history:    NewHistory(capacity),
		thresholds: thresholds,
		health:     HealthUnknown,
	}
}

// Record appends an outcome and returns the resulting snapshot.
func (s *Store) Record(o Outcome) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Record(o)
	s.recomputeLocked()
	return s.snapshotLocked()
}

// Reset clears the history and returns the empty snapshot.
func (s *Store) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Reset()
	s.recomputeLocked()
	return s.snapshotLocked()
}

// Resize replaces the history with an empty one of the given capacity.
func (s *Store) Resize(capacity int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = NewHistory(capacity)
	s.recomputeLocked()
	return s.snapshotLocked()
}

// SetThresholds reclassifies the current history with new thresholds.
func (s *Store) SetThresholds(th Thresholds) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.thresholds = th
	s.recomputeLocked()
	return s.snapshotLocked()
}

// GetSnapshot returns a copy of the current contents.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Capacity returns the configured history size.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Cap()
}

func (s *Store) recomputeLocked() {
	items := s.history.Snapshot()
	s.summary = Aggregate(items)
	var last Outcome
	hasLast := len(items) > 0
	if hasLast {
		last = items[len(items)-1]
	}
	s.health = Classify(s.summary, last, hasLast, s.thresholds)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		History: s.history.Snapshot(),
		Summary: s.summary,
		Health:  s.health,
	}
}
