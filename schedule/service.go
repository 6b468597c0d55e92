package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"robofleet/apperr"
	"robofleet/config"
	"robofleet/store"
	"robofleet/tasks"
)

// ErrOutOfOrder is returned when a complete task fires before its schedule
// was activated. The task runner retries it.
var ErrOutOfOrder = fmt.Errorf("schedule not yet processing: %w", tasks.ErrRetry)

const (
	actorTasks = "tasks"
	actorAPI   = "api"
)

// Service owns the schedule lifecycle: booking, re-stamping, cancellation
// and the timed activate/complete transitions.
type Service struct {
	db       *store.DB
	emitter  Emitter
	log      *zap.Logger
	loc      *time.Location
	slot     time.Duration
	pageSize int
	now      func() time.Time
}

func NewService(db *store.DB, emitter Emitter, cfg config.ScheduleConfig, logger *zap.Logger) *Service {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Service{
		db:       db,
		emitter:  emitter,
		log:      logger.Named("schedule"),
		loc:      cfg.Location(),
		slot:     cfg.SlotLength(),
		pageSize: pageSize,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock, for tests that simulate time.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Location() *time.Location { return s.loc }

// CreateInput is the body of a deferred booking request.
type CreateInput struct {
	Location      string `json:"location"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
}

func (s *Service) activeRobot(ctx context.Context, robotID int64) (*store.Robot, error) {
	r, err := s.db.GetRobot(ctx, robotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Robot not found")
		}
		return nil, apperr.Internal(err)
	}
	if !r.IsActive {
		return nil, apperr.NotFound("Robot not found")
	}
	return r, nil
}

// Create books a deferred slot and queues its activate and complete tasks.
func (s *Service) Create(ctx context.Context, robotID int64, in CreateInput) (*store.Schedule, error) {
	robot, err := s.activeRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	in.Location = strings.TrimSpace(in.Location)
	fields := map[string]string{}
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"location", in.Location},
		{"scheduled_date", in.ScheduledDate},
		{"scheduled_time", in.ScheduledTime},
	} {
		if f.val == "" {
			fields[f.name] = "This field is required."
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("Missing required fields: "+strings.Join(missing, ", "), fields)
	}

	w, err := NewWindow(in.ScheduledDate, in.ScheduledTime, s.slot, s.loc)
	if err != nil {
		return nil, windowError(err)
	}
	return s.book(ctx, robot, in.Location, w, store.ScheduleScheduled,
		"Time slot already booked for this robot and location")
}

// CreateImmediately books the current minute and starts in processing.
func (s *Service) CreateImmediately(ctx context.Context, robotID int64, location string) (*store.Schedule, error) {
	robot, err := s.activeRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, apperr.Validation("Missing required field: location", map[string]string{"location": "This field is required."})
	}
	w, err := ImmediateWindow(s.now().In(s.loc), s.slot)
	if err != nil {
		return nil, windowError(err)
	}
	return s.book(ctx, robot, location, w, store.ScheduleProcessing,
		"A schedule already exists for this robot at this time.")
}

func (s *Service) book(ctx context.Context, robot *store.Robot, location string, w Window, status, conflictMsg string) (*store.Schedule, error) {
	slot := w.Slot(robot.ID, location)
	sched := &store.Schedule{
		RobotID:       robot.ID,
		Location:      location,
		ScheduledDate: slot.Date,
		ScheduledTime: slot.Start,
		EndTime:       slot.End,
		Status:        status,
	}
	if err := s.db.CreateSchedule(ctx, sched, transitionTasks(w)); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			return nil, apperr.Conflict(conflictMsg)
		}
		return nil, apperr.Internal(err)
	}
	s.log.Info("schedule: created", zap.Int64("schedule_id", sched.ID), zap.String("robo_id", robot.RoboID),
		zap.String("date", sched.ScheduledDate), zap.String("time", sched.ScheduledTime), zap.String("status", sched.Status))
	s.emitter.EmitScheduleCreated(sched)
	return sched, nil
}

// UpdateImmediately re-stamps a live schedule to the current minute,
// optionally at a new location, and starts it.
func (s *Service) UpdateImmediately(ctx context.Context, id int64, location *string) (*store.Schedule, error) {
	cur, err := s.db.GetSchedule(ctx, id)
	if err != nil {
		return nil, scheduleLookupError(err)
	}
	if cur.IsCanceled {
		return nil, apperr.NotFound("Schedule not found")
	}
	loc := cur.Location
	if location != nil && strings.TrimSpace(*location) != "" {
		loc = strings.TrimSpace(*location)
	}
	w, err := ImmediateWindow(s.now().In(s.loc), s.slot)
	if err != nil {
		return nil, windowError(err)
	}
	updated, err := s.db.RestampSchedule(ctx, id, w.Slot(cur.RobotID, loc), transitionTasks(w))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("Schedule not found")
	case errors.Is(err, store.ErrScheduleCompleted):
		return nil, apperr.State("Completed schedule cannot be updated")
	case errors.Is(err, store.ErrSlotTaken):
		return nil, apperr.Conflict("Time slot already booked at this location")
	case err != nil:
		return nil, apperr.Internal(err)
	}
	s.log.Info("schedule: re-stamped", zap.Int64("schedule_id", id), zap.Int64("revision", updated.Revision),
		zap.String("time", updated.ScheduledTime))
	s.emitter.EmitScheduleRestamped(updated)
	if cur.Status != updated.Status {
		s.emitter.EmitScheduleUpdated(updated, cur.Status, actorAPI)
	}
	return updated, nil
}

// Cancel soft-cancels a schedule. Its queued tasks stay queued and become
// no-ops when they fire.
func (s *Service) Cancel(ctx context.Context, id int64) (*store.Schedule, error) {
	sched, err := s.db.CancelSchedule(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("Schedule not found")
	case errors.Is(err, store.ErrScheduleCompleted):
		return nil, apperr.State("Completed schedule cannot be deleted")
	case err != nil:
		return nil, apperr.Internal(err)
	}
	s.log.Info("schedule: canceled", zap.Int64("schedule_id", id))
	s.emitter.EmitScheduleCanceled(sched)
	return sched, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Schedule, error) {
	sched, err := s.db.GetSchedule(ctx, id)
	if err != nil {
		return nil, scheduleLookupError(err)
	}
	return sched, nil
}

// Page is one page of non-canceled schedules plus per-status totals.
type Page struct {
	Count        int
	StatusCounts map[string]int
	Page         int
	HasNext      bool
	HasPrevious  bool
	Results      []*store.Schedule
}

func (s *Service) List(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		return nil, apperr.NotFound("Invalid page.")
	}
	list, total, err := s.db.ListSchedules(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if page > 1 && len(list) == 0 {
		return nil, apperr.NotFound("Invalid page.")
	}
	counts, err := s.db.CountSchedulesByStatus(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Page{
		Count:        total,
		StatusCounts: counts,
		Page:         page,
		HasNext:      page*s.pageSize < total,
		HasPrevious:  page > 1,
		Results:      list,
	}, nil
}

// ListByDateRange returns non-canceled schedules with start <= date <= end.
func (s *Service) ListByDateRange(ctx context.Context, start, end string) ([]*store.Schedule, error) {
	fields := map[string]string{}
	sd, err := time.Parse(DateLayout, start)
	if err != nil {
		fields["start_date"] = "Date has wrong format. Use YYYY-MM-DD."
	}
	ed, err := time.Parse(DateLayout, end)
	if err != nil {
		fields["end_date"] = "Date has wrong format. Use YYYY-MM-DD."
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Invalid date range", fields)
	}
	if sd.After(ed) {
		return nil, apperr.Validation("start_date must be less than or equal to end_date", nil)
	}
	list, err := s.db.ListSchedulesByDateRange(ctx, start, end)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// RunTask executes a deferred transition. It implements tasks.Handler.
func (s *Service) RunTask(ctx context.Context, t *store.DeferredTask) error {
	switch t.Kind {
	case store.TaskActivate:
		return s.Activate(ctx, t.ScheduleID, t.Revision)
	case store.TaskComplete:
		return s.Complete(ctx, t.ScheduleID, t.Revision)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

// Activate moves scheduled -> processing. Missing, canceled, stale or
// already advanced schedules are left alone.
func (s *Service) Activate(ctx context.Context, id, revision int64) error {
	return s.transition(ctx, id, revision, store.ScheduleScheduled, store.ScheduleProcessing)
}

// Complete moves processing -> completed. If the schedule is still
// scheduled the activation has not run yet and ErrOutOfOrder is returned.
func (s *Service) Complete(ctx context.Context, id, revision int64) error {
	return s.transition(ctx, id, revision, store.ScheduleProcessing, store.ScheduleCompleted)
}

func (s *Service) transition(ctx context.Context, id, revision int64, from, to string) error {
	cur, err := s.db.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	log := s.log.With(zap.Int64("schedule_id", id), zap.String("to", to))
	switch {
	case cur.IsCanceled:
		log.Debug("schedule: skip transition, canceled")
		return nil
	case cur.Revision != revision:
		log.Debug("schedule: skip transition, stale revision", zap.Int64("task_revision", revision), zap.Int64("revision", cur.Revision))
		return nil
	case cur.Status == store.ScheduleScheduled && to == store.ScheduleCompleted:
		return ErrOutOfOrder
	case cur.Status != from:
		log.Debug("schedule: skip transition", zap.String("status", cur.Status))
		return nil
	}

	ok, err := s.db.TransitionSchedule(ctx, id, revision, from, to)
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with cancel, re-stamp or another worker.
		log.Debug("schedule: transition superseded")
		return nil
	}
	cur.Status = to
	log.Info("schedule: status changed", zap.String("from", from))
	s.emitter.EmitScheduleUpdated(cur, from, actorTasks)
	return nil
}

// transitionTasks builds the activate and complete tasks for a window.
func transitionTasks(w Window) []*store.DeferredTask {
	return []*store.DeferredTask{
		{Kind: store.TaskActivate, ETA: w.Start.Unix()},
		{Kind: store.TaskComplete, ETA: w.End.Unix()},
	}
}

func windowError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDate):
		return apperr.Validation("Invalid scheduled_date", map[string]string{"scheduled_date": err.Error()})
	case errors.Is(err, ErrInvalidTime):
		return apperr.Validation("Invalid scheduled_time", map[string]string{"scheduled_time": err.Error()})
	case errors.Is(err, ErrCrossesMidnight):
		return apperr.Validation("Schedule may not run past midnight", map[string]string{"scheduled_time": err.Error()})
	}
	return apperr.Internal(err)
}

func scheduleLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Schedule not found")
	}
	return apperr.Internal(err)
}
