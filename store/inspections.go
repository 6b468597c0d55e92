package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Inspection struct {
	ID              int64      `json:"id"`
	ScheduleID      int64      `json:"schedule_id"`
	RimID           string     `json:"rim_id"`
	RimTypeID       *int64     `json:"rim_type_id"`
	Image           string     `json:"image"`
	IsDefect        bool       `json:"is_defect"`
	Description     string     `json:"description"`
	IsHumanVerified bool       `json:"is_human_verified"`
	FalseDetected   bool       `json:"false_detected"`
	CorrectLabel    *string    `json:"correct_label"`
	UserDescription string     `json:"user_description"`
	IsApproved      bool       `json:"is_approved"`
	VerifiedAt      *time.Time `json:"verified_at"`
	InspectedAt     time.Time  `json:"inspected_at"`
}

// Verification is the normalized outcome of a human review.
type Verification struct {
	FalseDetected   bool
	CorrectLabel    *string
	UserDescription string
	IsApproved      bool
}

type InspectionPage struct {
	Total            int           `json:"count"`
	TotalDefected    int           `json:"total_defected"`
	TotalNonDefected int           `json:"total_non_defected"`
	Inspections      []*Inspection `json:"inspections"`
	PageSize         int           `json:"-"`
}

type RimType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

const inspectionSelectCols = `id, schedule_id, rim_id, rim_type_id, image, is_defect, description,
	is_human_verified, false_detected, correct_label, user_description, is_approved, verified_at, inspected_at`

func scanInspection(row interface{ Scan(...any) error }) (*Inspection, error) {
	var in Inspection
	var rimType sql.NullInt64
	var label sql.NullString
	var verifiedAt, inspectedAt any
	if err := row.Scan(&in.ID, &in.ScheduleID, &in.RimID, &rimType, &in.Image, &in.IsDefect, &in.Description,
		&in.IsHumanVerified, &in.FalseDetected, &label, &in.UserDescription, &in.IsApproved, &verifiedAt, &inspectedAt); err != nil {
		return nil, err
	}
	if rimType.Valid {
		in.RimTypeID = &rimType.Int64
	}
	if label.Valid {
		in.CorrectLabel = &label.String
	}
	in.VerifiedAt = parseTimePtr(verifiedAt)
	in.InspectedAt = parseTime(inspectedAt)
	return &in, nil
}

// CreateInspection inserts a detection result under an existing schedule.
// A repeated rim_id returns ErrDuplicate.
func (db *DB) CreateInspection(ctx context.Context, in *Inspection) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.getSchedule(ctx, tx, in.ScheduleID); err != nil {
			return err
		}
		if in.RimTypeID != nil {
			if _, err := db.getRimType(ctx, tx, *in.RimTypeID); err != nil {
				return fmt.Errorf("rim type %d: %w", *in.RimTypeID, err)
			}
		}
		id, err := db.insertReturningID(ctx, tx, `INSERT INTO inspections (schedule_id, rim_id, rim_type_id, image, is_defect, description) VALUES (?, ?, ?, ?, ?, ?)`,
			in.ScheduleID, in.RimID, nullableInt(in.RimTypeID), in.Image, in.IsDefect, in.Description)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert inspection: %w", err)
		}
		got, err := db.getInspection(ctx, tx, id)
		if err != nil {
			return err
		}
		*in = *got
		return nil
	})
}

func (db *DB) GetInspection(ctx context.Context, id int64) (*Inspection, error) {
	return db.getInspection(ctx, db, id)
}

func (db *DB) getInspection(ctx context.Context, q querier, id int64) (*Inspection, error) {
	row := q.QueryRowContext(ctx, db.Q(`SELECT `+inspectionSelectCols+` FROM inspections WHERE id=?`), id)
	in, err := scanInspection(row)
	if err != nil {
		return nil, notFound(err)
	}
	return in, nil
}

// ListInspections pages through a schedule's inspections with defect totals
// computed over the whole schedule.
func (db *DB) ListInspections(ctx context.Context, scheduleID int64, limit, offset int) (*InspectionPage, error) {
	page := &InspectionPage{}
	err := db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN is_defect=? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_defect=? THEN 0 ELSE 1 END), 0)
		FROM inspections WHERE schedule_id=?`), true, true, scheduleID).
		Scan(&page.Total, &page.TotalDefected, &page.TotalNonDefected)
	if err != nil {
		return nil, fmt.Errorf("count inspections: %w", err)
	}
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+inspectionSelectCols+` FROM inspections
		WHERE schedule_id=? ORDER BY id LIMIT ? OFFSET ?`), scheduleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		page.Inspections = append(page.Inspections, in)
	}
	return page, rows.Err()
}

// VerifyInspection records a human review exactly once. A second attempt
// returns ErrAlreadyVerified and changes nothing. False detections with an
// image queue a feedback sample in the same transaction.
func (db *DB) VerifyInspection(ctx context.Context, id int64, v Verification) (*Inspection, error) {
	var out *Inspection
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.getInspection(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsHumanVerified {
			return ErrAlreadyVerified
		}
		var label any
		if v.CorrectLabel != nil {
			label = *v.CorrectLabel
		}
		res, err := tx.ExecContext(ctx, db.Q(`UPDATE inspections SET is_human_verified=?, false_detected=?, correct_label=?,
			user_description=?, is_approved=?, verified_at=datetime('now','localtime')
			WHERE id=? AND is_human_verified=?`),
			true, v.FalseDetected, label, v.UserDescription, v.IsApproved, id, false)
		if err != nil {
			return fmt.Errorf("verify inspection: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAlreadyVerified
		}
		out, err = db.getInspection(ctx, tx, id)
		if err != nil {
			return err
		}
		if sample := feedbackFor(out); sample != nil {
			return db.insertFeedbackSample(ctx, tx, sample)
		}
		return nil
	})
	return out, err
}

func (db *DB) CreateRimType(ctx context.Context, rt *RimType) error {
	id, err := db.insertReturningID(ctx, db, `INSERT INTO rim_types (name, description, is_active) VALUES (?, ?, ?)`,
		rt.Name, rt.Description, true)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create rim type: %w", err)
	}
	rt.ID = id
	rt.IsActive = true
	return nil
}

func (db *DB) GetRimType(ctx context.Context, id int64) (*RimType, error) {
	return db.getRimType(ctx, db, id)
}

func (db *DB) getRimType(ctx context.Context, q querier, id int64) (*RimType, error) {
	var rt RimType
	var createdAt any
	err := q.QueryRowContext(ctx, db.Q(`SELECT id, name, description, is_active, created_at FROM rim_types WHERE id=?`), id).
		Scan(&rt.ID, &rt.Name, &rt.Description, &rt.IsActive, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	rt.CreatedAt = parseTime(createdAt)
	return &rt, nil
}
