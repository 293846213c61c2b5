package storage

import (
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

// Store defines the storage operations for the RunLog mirror.
// Events are append-only: there is no update or delete.
type Store interface {
	// SaveEvent appends an event and returns its assigned ID.
	SaveEvent(e models.RunEvent) (int64, error)
	// GetEvent retrieves a single event by ID.
	GetEvent(id int64) (models.RunEvent, error)
	Close() error
}
