package report

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by Load when a run ID is unknown or evicted.
var ErrNotFound = errors.New("run not found")

// Store keeps run results for later inspection.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// LRUStore is an in-memory LRU cache of recent runs. Nothing is written to
// disk; results live only as long as the process.
type LRUStore struct {
	cache *lru.Cache[string, *RunResult]
}

// NewLRUStore creates an LRU cache with the given capacity.
// Capacities below 1 are raised to 1.
func NewLRUStore(size int) *LRUStore {
	if size < 1 {
		size = 1
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, *RunResult](size)
	return &LRUStore{cache: cache}
}

// Save inserts or refreshes a result, evicting the oldest when full.
func (s *LRUStore) Save(result *RunResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("saving run: missing id")
	}
	s.cache.Add(result.ID, result)
	return nil
}

// Load returns a cached result and marks it most recently used.
func (s *LRUStore) Load(runID string) (*RunResult, error) {
	rr, ok := s.cache.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return rr, nil
}

// Len returns the number of cached runs.
func (s *LRUStore) Len() int {
	return s.cache.Len()
}
