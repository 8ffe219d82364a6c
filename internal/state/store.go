package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/metricdeck/internal/api"
)

// Snapshot represents the latest poll results available to the UI.
type Snapshot struct {
	Periods             []api.Period
	HasPeriods          bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// IsOffline returns true when the backend has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored snapshot. When err is non-nil the previous data is
// kept but the error is recorded for visibility.
func (s *Store) Update(periods []api.Period, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Periods = clonePeriods(periods)
	s.snapshot.HasPeriods = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// Reset drops everything, e.g. after logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.snapshot = Snapshot{}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Periods = clonePeriods(s.snapshot.Periods)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func clonePeriods(items []api.Period) []api.Period {
	if len(items) == 0 {
		return nil
	}
	dup := make([]api.Period, len(items))
	copy(dup, items)
	return dup
}
