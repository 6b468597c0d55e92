package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	ScheduleScheduled  = "scheduled"
	ScheduleProcessing = "processing"
	ScheduleCompleted  = "completed"
)

// Slot is a booking window on one robot, location and date. Date is
// YYYY-MM-DD; Start and End are HH:MM:SS and compare lexically.
type Slot struct {
	RobotID  int64
	Location string
	Date     string
	Start    string
	End      string
}

func (s Slot) lockKey() string {
	return fmt.Sprintf("slot:%d|%s|%s", s.RobotID, s.Location, s.Date)
}

type Schedule struct {
	ID            int64     `json:"id"`
	RobotID       int64     `json:"robot_id"`
	RoboID        string    `json:"robo_id"`
	Location      string    `json:"location"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	EndTime       string    `json:"end_time"`
	Status        string    `json:"status"`
	IsCanceled    bool      `json:"is_canceled"`
	Revision      int64     `json:"revision"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Schedule) Slot() Slot {
	return Slot{RobotID: s.RobotID, Location: s.Location, Date: s.ScheduledDate, Start: s.ScheduledTime, End: s.EndTime}
}

const scheduleSelectCols = `s.id, s.robot_id, r.robo_id, s.location, s.scheduled_date, s.scheduled_time, s.end_time,
	s.status, s.is_canceled, s.revision, s.created_at, s.updated_at`

const scheduleFromClause = `FROM schedules s JOIN robots r ON r.id = s.robot_id`

func scanSchedule(row interface{ Scan(...any) error }) (*Schedule, error) {
	var s Schedule
	var createdAt, updatedAt any
	if err := row.Scan(&s.ID, &s.RobotID, &s.RoboID, &s.Location, &s.ScheduledDate, &s.ScheduledTime, &s.EndTime,
		&s.Status, &s.IsCanceled, &s.Revision, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func scanSchedules(rows *sql.Rows) ([]*Schedule, error) {
	defer rows.Close()
	var out []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CheckOverlap reports whether any non-canceled schedule on the slot's robot,
// location and date intersects [Start, End). excludeID skips one record (0
// skips none).
func (db *DB) CheckOverlap(ctx context.Context, slot Slot, excludeID int64) (bool, error) {
	return db.hasOverlap(ctx, db, slot, excludeID)
}

func (db *DB) hasOverlap(ctx context.Context, q querier, slot Slot, excludeID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM schedules
		WHERE robot_id=? AND location=? AND scheduled_date=? AND is_canceled=?
		AND scheduled_time < ? AND end_time > ? AND id <> ?`),
		slot.RobotID, slot.Location, slot.Date, false, slot.End, slot.Start, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return n > 0, nil
}

func (db *DB) lockSlot(ctx context.Context, tx *sql.Tx, slot Slot) error {
	stmt := db.dialect.SlotLock()
	if stmt == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, db.Q(stmt), slot.lockKey()); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

// CreateSchedule checks the slot, inserts the schedule and its deferred
// tasks in one transaction. Returns ErrSlotTaken on overlap.
func (db *DB) CreateSchedule(ctx context.Context, s *Schedule, tasks []*DeferredTask) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		slot := s.Slot()
		if err := db.lockSlot(ctx, tx, slot); err != nil {
			return err
		}
		taken, err := db.hasOverlap(ctx, tx, slot, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		if s.Revision == 0 {
			s.Revision = 1
		}
		id, err := db.insertReturningID(ctx, tx, `INSERT INTO schedules (robot_id, location, scheduled_date, scheduled_time, end_time, status, is_canceled, revision) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RobotID, s.Location, s.ScheduledDate, s.ScheduledTime, s.EndTime, s.Status, false, s.Revision)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		s.ID = id
		for _, t := range tasks {
			t.ScheduleID = id
			t.Revision = s.Revision
			if err := db.enqueueTask(ctx, tx, t); err != nil {
				return err
			}
		}
		return db.reloadSchedule(ctx, tx, s)
	})
}

// RestampSchedule moves a live schedule onto a new slot, sets it processing
// and bumps its revision so tasks queued for the old slot become stale. The
// robot is taken from the stored record.
func (db *DB) RestampSchedule(ctx context.Context, id int64, slot Slot, tasks []*DeferredTask) (*Schedule, error) {
	var out *Schedule
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.getSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsCanceled {
			return ErrNotFound
		}
		if cur.Status == ScheduleCompleted {
			return ErrScheduleCompleted
		}
		slot.RobotID = cur.RobotID
		if err := db.lockSlot(ctx, tx, slot); err != nil {
			return err
		}
		taken, err := db.hasOverlap(ctx, tx, slot, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		_, err = tx.ExecContext(ctx, db.Q(`UPDATE schedules SET location=?, scheduled_date=?, scheduled_time=?, end_time=?,
			status=?, revision=revision+1, updated_at=datetime('now','localtime') WHERE id=?`),
			slot.Location, slot.Date, slot.Start, slot.End, ScheduleProcessing, id)
		if err != nil {
			return fmt.Errorf("restamp schedule: %w", err)
		}
		out, err = db.getSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			t.ScheduleID = id
			t.Revision = out.Revision
			if err := db.enqueueTask(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (db *DB) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	return db.getSchedule(ctx, db, id)
}

func (db *DB) getSchedule(ctx context.Context, q querier, id int64) (*Schedule, error) {
	row := q.QueryRowContext(ctx, db.Q(`SELECT `+scheduleSelectCols+` `+scheduleFromClause+` WHERE s.id=?`), id)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (db *DB) reloadSchedule(ctx context.Context, q querier, s *Schedule) error {
	got, err := db.getSchedule(ctx, q, s.ID)
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

// CancelSchedule soft-cancels a schedule. Already canceled counts as missing;
// a completed schedule returns ErrScheduleCompleted and is left untouched.
func (db *DB) CancelSchedule(ctx context.Context, id int64) (*Schedule, error) {
	var out *Schedule
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.getSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsCanceled {
			return ErrNotFound
		}
		if cur.Status == ScheduleCompleted {
			return ErrScheduleCompleted
		}
		if _, err := tx.ExecContext(ctx, db.Q(`UPDATE schedules SET is_canceled=?, updated_at=datetime('now','localtime') WHERE id=?`), true, id); err != nil {
			return fmt.Errorf("cancel schedule: %w", err)
		}
		cur.IsCanceled = true
		out = cur
		return nil
	})
	return out, err
}

// TransitionSchedule moves a schedule from one status to the next only if it
// is still in from, not canceled and at the given revision. Returns false
// when any of those no longer holds.
func (db *DB) TransitionSchedule(ctx context.Context, id, revision int64, from, to string) (bool, error) {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE schedules SET status=?, updated_at=datetime('now','localtime')
		WHERE id=? AND status=? AND is_canceled=? AND revision=?`), to, id, from, false, revision)
	if err != nil {
		return false, fmt.Errorf("transition schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListSchedules pages through non-canceled schedules, newest first.
func (db *DB) ListSchedules(ctx context.Context, limit, offset int) ([]*Schedule, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM schedules WHERE is_canceled=?`), false).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+scheduleSelectCols+` `+scheduleFromClause+`
		WHERE s.is_canceled=? ORDER BY s.id DESC LIMIT ? OFFSET ?`), false, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	list, err := scanSchedules(rows)
	return list, total, err
}

// CountSchedulesByStatus counts non-canceled schedules per status. Statuses
// with no rows are absent from the map.
func (db *DB) CountSchedulesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT status, COUNT(*) FROM schedules WHERE is_canceled=? GROUP BY status`), false)
	if err != nil {
		return nil, fmt.Errorf("count schedules by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListSchedulesByDateRange returns non-canceled schedules with
// start <= scheduled_date <= end in chronological order.
func (db *DB) ListSchedulesByDateRange(ctx context.Context, start, end string) ([]*Schedule, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+scheduleSelectCols+` `+scheduleFromClause+`
		WHERE s.is_canceled=? AND s.scheduled_date >= ? AND s.scheduled_date <= ?
		ORDER BY s.scheduled_date, s.scheduled_time`), false, start, end)
	if err != nil {
		return nil, fmt.Errorf("list schedules by date: %w", err)
	}
	return scanSchedules(rows)
}
