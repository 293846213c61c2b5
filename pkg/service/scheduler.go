package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/runlog"
	"github.com/pkg/errors"
)

// PipelineRunner is the part of a Pipeline the scheduler drives.
type PipelineRunner interface {
	RunOnce(ctx context.Context, date time.Time) (models.RunOutcome, error)
}

// Trigger is a fixed local time of day in a fixed timezone.
type Trigger struct {
	Hour         int
	Minute       int
	Location     *time.Location
	SkipWeekends bool
}

func (t Trigger) validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return errors.Errorf("trigger hour %d out of range 0-23", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return errors.Errorf("trigger minute %d out of range 0-59", t.Minute)
	}
	if t.Location == nil {
		return errors.New("trigger location is required")
	}
	return nil
}

// String returns the trigger as HH:MM.
func (t Trigger) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Scheduler invokes one pipeline run per calendar day at the trigger time.
// It holds no persisted state: after a restart it waits for the next trigger.
type Scheduler struct {
	pipeline PipelineRunner
	trigger  Trigger
	events   runlog.Log
	logger   Logger
	now      func() time.Time
	cron     gocron.TimeWrapper
}

type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the wall clock used to bind the run date.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithCronClock overrides the clock gocron uses to compute trigger times.
func WithCronClock(clock gocron.TimeWrapper) SchedulerOption {
	return func(s *Scheduler) { s.cron = clock }
}

func NewScheduler(pipeline PipelineRunner, trigger Trigger, events runlog.Log, logger Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if err := trigger.validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = runlog.Nop{}
	}
	s := &Scheduler{
		pipeline: pipeline,
		trigger:  trigger,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start blocks until ctx is done, firing the pipeline once a day.
func (s *Scheduler) Start(ctx context.Context) error {
	cron := gocron.NewScheduler(s.trigger.Location)
	if s.cron != nil {
		cron.CustomTime(s.cron)
	}
	job, err := cron.Every(1).Day().At(s.trigger.String()).WaitForSchedule().Do(s.fire, ctx)
	if err != nil {
		return errors.Wrap(err, "schedule daily run")
	}
	cron.StartAsync()
	s.logger.Infof("Scheduler started: daily at %s %s, next run at %s",
		s.trigger, s.trigger.Location, job.NextRun().Format(time.RFC3339))

	<-ctx.Done()
	cron.Stop()
	s.logger.Infof("Scheduler stopped: %v", ctx.Err())
	return nil
}

// Fire performs the work of a single trigger: bind today's date in the
// trigger location and run the pipeline.
func (s *Scheduler) Fire(ctx context.Context) (models.RunOutcome, error) {
	today := s.Today()
	if s.trigger.SkipWeekends && isWeekend(today) {
		detail := fmt.Sprintf("market closed on %s", today.Weekday())
		runlog.SafeAppend(s.events, models.RunEvent{
			RunDate:  today.Format(models.DateLayout),
			Kind:     models.SkipEventKind,
			Detail:   detail,
			LoggedAt: s.now(),
		}, s.logger)
		s.logger.Infof("Skipping run for %s: %s", today.Format(models.DateLayout), detail)
		return models.RunOutcome{Date: today, Status: models.SkippedRunStatus}, nil
	}
	return s.pipeline.RunOnce(ctx, today)
}

// fire is the gocron job. Nothing a run does may end the scheduler loop.
func (s *Scheduler) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Run panicked: %v", r)
		}
	}()
	outcome, err := s.Fire(ctx)
	if err != nil {
		s.logger.Warnf("Run for %s ended with status %s: %v", outcome.Date.Format(models.DateLayout), outcome.Status, err)
		return
	}
	s.logger.Infof("Run for %s ended with status %s; next run at %s",
		outcome.Date.Format(models.DateLayout), outcome.Status, s.NextTrigger(s.now()).Format(time.RFC3339))
}

// Today returns the current calendar date in the trigger location, at midnight.
func (s *Scheduler) Today() time.Time {
	now := s.now().In(s.trigger.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.trigger.Location)
}

// NextTrigger returns the first trigger time strictly after after.
func (s *Scheduler) NextTrigger(after time.Time) time.Time {
	return s.trigger.Next(after)
}

// Next returns the first trigger time strictly after after.
func (t Trigger) Next(after time.Time) time.Time {
	local := after.In(t.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, t.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, t.Hour, t.Minute, 0, 0, t.Location)
	}
	return next
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}
