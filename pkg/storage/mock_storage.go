package storage

import (
	"sync"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/pkg/errors"
)

// MockStore implements Store with in-memory storage
type MockStore struct {
	mu     sync.Mutex
	events []models.RunEvent
	nextID int64
	closed bool
}

func (m *MockStore) SaveEvent(e models.RunEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("store is closed")
	}
	m.nextID++
	e.ID = m.nextID
	m.events = append(m.events, e)
	return e.ID, nil
}

func (m *MockStore) GetEvent(id int64) (models.RunEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return models.RunEvent{}, ErrNotFound
}

// Events returns a copy of every stored event in insertion order.
func (m *MockStore) Events() []models.RunEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RunEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func NewMockStore() *MockStore {
	return &MockStore{}
}
