package storage

import (
	"sync"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// MockStorage is an in-memory Interface for tests with save-error injection.
type MockStorage struct {
	*memStore

	ctl           sync.Mutex
	saveError     error
	failIDs       map[string]error
	saveCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	m := &MockStorage{failIDs: make(map[string]error)}
	m.memStore = newMemStore(m.save)
	return m
}

func (m *MockStorage) save(id string) error {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	m.saveCallCount++
	if err, ok := m.failIDs[id]; ok {
		return err
	}
	return m.saveError
}

// SetSaveError makes every subsequent write fail with err (nil clears it).
func (m *MockStorage) SetSaveError(err error) {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	m.saveError = err
}

// FailWritesFor makes writes of the record with the given ID fail with err.
// A nil err clears the failure.
func (m *MockStorage) FailWritesFor(id string, err error) {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	if err == nil {
		delete(m.failIDs, id)
		return
	}
	m.failIDs[id] = err
}

// GetSaveCallCount returns how many writes were attempted.
func (m *MockStorage) GetSaveCallCount() int {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	return m.saveCallCount
}

// Seed stores positions verbatim, bypassing validation and timestamps.
func (m *MockStorage) Seed(positions ...*models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		m.data.Positions[p.ID] = p.Clone()
	}
}

// SeedSpreads stores spreads verbatim.
func (m *MockStorage) SeedSpreads(spreads ...*models.CreditSpread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range spreads {
		m.data.Spreads[s.ID] = s.Clone()
	}
}
