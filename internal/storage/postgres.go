package storage

import (
	"database/sql"
	"time"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
}

// PostgresStore mirrors RunLog events into the run_events table.
type PostgresStore struct {
	db DBInterface
}

// eventRow is the scan target for run_events; run_date is a DATE column.
type eventRow struct {
	ID       int64     `db:"id"`
	RunID    string    `db:"run_id"`
	RunDate  time.Time `db:"run_date"`
	Stage    string    `db:"stage"`
	Task     string    `db:"task"`
	Kind     string    `db:"kind"`
	Detail   string    `db:"detail"`
	LoggedAt time.Time `db:"logged_at"`
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// SaveEvent appends an event and returns its ID
func (s *PostgresStore) SaveEvent(e models.RunEvent) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO run_events (run_id, run_date, stage, task, kind, detail, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.RunID, e.RunDate, e.Stage, e.Task, string(e.Kind), e.Detail, e.LoggedAt).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "save event %s for run %q", e.Kind, e.RunID)
	}
	return id, nil
}

// GetEvent retrieves an event by ID
func (s *PostgresStore) GetEvent(id int64) (models.RunEvent, error) {
	var row eventRow
	err := s.db.Get(&row, "SELECT id, run_id, run_date, stage, task, kind, detail, logged_at FROM run_events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.RunEvent{}, storage.ErrNotFound
	}
	if err != nil {
		return models.RunEvent{}, errors.Wrapf(err, "get event %d", id)
	}
	return models.RunEvent{
		ID:       row.ID,
		RunID:    row.RunID,
		RunDate:  row.RunDate.Format(models.DateLayout),
		Stage:    row.Stage,
		Task:     row.Task,
		Kind:     models.EventKind(row.Kind),
		Detail:   row.Detail,
		LoggedAt: row.LoggedAt,
	}, nil
}
