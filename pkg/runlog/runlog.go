// Package runlog records the append-only audit trail of pipeline runs.
//
// Appending must never fail from the caller's point of view: a broken sink
// is reported through the operational logger and the run carries on.
package runlog

import (
	"sync"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/storage"
)

// Log is the sink the pipeline and scheduler write RunLog events to.
type Log interface {
	Append(e models.RunEvent)
}

// ErrorLogger receives sink failures.
type ErrorLogger interface {
	Errorf(format string, args ...interface{})
}

// Nop discards all events.
type Nop struct{}

func (Nop) Append(models.RunEvent) {}

// SafeAppend appends e to l. A panic raised by the sink is recovered and
// reported to logger, which may be nil.
func SafeAppend(l Log, e models.RunEvent, logger ErrorLogger) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Errorf("Run log sink %T panicked on %s event for run %q: %v", l, e.Kind, e.RunID, r)
		}
	}()
	l.Append(e)
}

type multi struct {
	sinks  []Log
	logger ErrorLogger
}

// Multi fans every event out to each non-nil sink in order. A failing sink
// is reported to logger and does not keep the event from the others.
func Multi(logger ErrorLogger, logs ...Log) Log {
	m := &multi{logger: logger}
	for _, l := range logs {
		if l != nil {
			m.sinks = append(m.sinks, l)
		}
	}
	return m
}

func (m *multi) Append(e models.RunEvent) {
	for _, l := range m.sinks {
		SafeAppend(l, e, m.logger)
	}
}

// StoreLog mirrors events into a storage.Store.
type StoreLog struct {
	store  storage.Store
	logger ErrorLogger
}

func NewStoreLog(store storage.Store, logger ErrorLogger) *StoreLog {
	return &StoreLog{store: store, logger: logger}
}

func (s *StoreLog) Append(e models.RunEvent) {
	if _, err := s.store.SaveEvent(e); err != nil && s.logger != nil {
		s.logger.Errorf("Failed to mirror %s event for run %q: %v", e.Kind, e.RunID, err)
	}
}

// Recorder is a concurrency-safe in-memory collector.
type Recorder struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Append(e models.RunEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all recorded events.
func (r *Recorder) Snapshot() []models.RunEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RunEvent, len(r.events))
	copy(out, r.events)
	return out
}
