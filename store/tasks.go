package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	TaskActivate = "activate"
	TaskComplete = "complete"

	TaskPending = "pending"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

type DeferredTask struct {
	ID         int64  `json:"id"`
	ScheduleID int64  `json:"schedule_id"`
	Kind       string `json:"kind"`
	Revision   int64  `json:"revision"`
	// ETA is when the task becomes due, in unix seconds.
	ETA        int64  `json:"eta"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
	ClaimedAt  *int64 `json:"claimed_at,omitempty"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

const taskSelectCols = `id, schedule_id, kind, revision, eta, status, attempts, last_error, claimed_at, finished_at`

func scanTask(row interface{ Scan(...any) error }) (*DeferredTask, error) {
	var t DeferredTask
	var claimed, finished sql.NullInt64
	if err := row.Scan(&t.ID, &t.ScheduleID, &t.Kind, &t.Revision, &t.ETA, &t.Status,
		&t.Attempts, &t.LastError, &claimed, &finished); err != nil {
		return nil, err
	}
	if claimed.Valid {
		t.ClaimedAt = &claimed.Int64
	}
	if finished.Valid {
		t.FinishedAt = &finished.Int64
	}
	return &t, nil
}

// EnqueueTask persists a pending task outside any schedule transaction.
func (db *DB) EnqueueTask(ctx context.Context, t *DeferredTask) error {
	return db.enqueueTask(ctx, db, t)
}

func (db *DB) enqueueTask(ctx context.Context, q querier, t *DeferredTask) error {
	t.Status = TaskPending
	id, err := db.insertReturningID(ctx, q, `INSERT INTO deferred_tasks (schedule_id, kind, revision, eta, status) VALUES (?, ?, ?, ?, ?)`,
		t.ScheduleID, t.Kind, t.Revision, t.ETA, t.Status)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	t.ID = id
	return nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*DeferredTask, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+taskSelectCols+` FROM deferred_tasks WHERE id=?`), id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// ListScheduleTasks returns every task ever queued for a schedule, oldest first.
func (db *DB) ListScheduleTasks(ctx context.Context, scheduleID int64) ([]*DeferredTask, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+taskSelectCols+` FROM deferred_tasks WHERE schedule_id=? ORDER BY id`), scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DeferredTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimDueTasks marks up to limit due tasks running and returns them. A task
// is due when it is pending with eta <= now, or running with a claim older
// than lease (its worker is presumed dead). Each claim bumps attempts.
func (db *DB) ClaimDueTasks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*DeferredTask, error) {
	nowUnix := now.Unix()
	stale := now.Add(-lease).Unix()
	var claimed []*DeferredTask
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, db.Q(`SELECT `+taskSelectCols+` FROM deferred_tasks
			WHERE (status=? AND eta <= ?) OR (status=? AND claimed_at <= ?)
			ORDER BY eta, id LIMIT ?`), TaskPending, nowUnix, TaskRunning, stale, limit)
		if err != nil {
			return fmt.Errorf("select due tasks: %w", err)
		}
		var due []*DeferredTask
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			due = append(due, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, t := range due {
			res, err := tx.ExecContext(ctx, db.Q(`UPDATE deferred_tasks SET status=?, claimed_at=?, attempts=attempts+1
				WHERE id=? AND status=? AND (claimed_at IS NULL OR claimed_at=?)`),
				TaskRunning, nowUnix, t.ID, t.Status, nullableInt(t.ClaimedAt))
			if err != nil {
				return fmt.Errorf("claim task %d: %w", t.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			t.Status = TaskRunning
			t.ClaimedAt = &nowUnix
			t.Attempts++
			claimed = append(claimed, t)
		}
		return nil
	})
	return claimed, err
}

func (db *DB) CompleteTask(ctx context.Context, id int64, now time.Time) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE deferred_tasks SET status=?, finished_at=?, last_error=? WHERE id=?`),
		TaskDone, now.Unix(), "", id)
	return err
}

func (db *DB) FailTask(ctx context.Context, id int64, now time.Time, reason string) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE deferred_tasks SET status=?, finished_at=?, last_error=? WHERE id=?`),
		TaskFailed, now.Unix(), reason, id)
	return err
}

// RetryTask puts a claimed task back to pending with a new eta.
func (db *DB) RetryTask(ctx context.Context, id int64, eta time.Time, reason string) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE deferred_tasks SET status=?, eta=?, claimed_at=NULL, last_error=? WHERE id=?`),
		TaskPending, eta.Unix(), reason, id)
	return err
}

// PurgeFinishedTasks deletes done and failed tasks that finished before cutoff.
func (db *DB) PurgeFinishedTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM deferred_tasks WHERE status IN (?, ?) AND finished_at < ?`),
		TaskDone, TaskFailed, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullableInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
