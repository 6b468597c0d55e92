package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	RobotTypeInspection = "inspection"
	RobotTypePickDrop   = "pick_drop"

	RobotStatusAvailable   = "available"
	RobotStatusSold        = "sold"
	RobotStatusInTransit   = "in_transit"
	RobotStatusMaintenance = "maintenance"
)

type Robot struct {
	ID         int64     `json:"id"`
	RoboID     string    `json:"robo_id"`
	Name       string    `json:"name"`
	RobotType  string    `json:"robot_type"`
	Status     string    `json:"status"`
	IsActive   bool      `json:"is_active"`
	Emergency  bool      `json:"emergency"`
	SpeakStart bool      `json:"speak_start"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RobotLocation struct {
	RobotID      int64      `json:"robot_id"`
	LocationData JSONObject `json:"location_data"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const robotSelectCols = `id, robo_id, name, robot_type, status, is_active, emergency, speak_start, created_at, updated_at`

func scanRobot(row interface{ Scan(...any) error }) (*Robot, error) {
	var r Robot
	var createdAt, updatedAt any
	if err := row.Scan(&r.ID, &r.RoboID, &r.Name, &r.RobotType, &r.Status,
		&r.IsActive, &r.Emergency, &r.SpeakStart, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func (db *DB) CreateRobot(ctx context.Context, r *Robot) error {
	if r.RobotType == "" {
		r.RobotType = RobotTypeInspection
	}
	if r.Status == "" {
		r.Status = RobotStatusAvailable
	}
	id, err := db.insertReturningID(ctx, db, `INSERT INTO robots (robo_id, name, robot_type, status, is_active) VALUES (?, ?, ?, ?, ?)`,
		r.RoboID, r.Name, r.RobotType, r.Status, true)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create robot: %w", err)
	}
	r.ID = id
	r.IsActive = true
	return nil
}

func (db *DB) GetRobot(ctx context.Context, id int64) (*Robot, error) {
	return db.getRobot(ctx, db, id)
}

func (db *DB) getRobot(ctx context.Context, q querier, id int64) (*Robot, error) {
	row := q.QueryRowContext(ctx, db.Q(`SELECT `+robotSelectCols+` FROM robots WHERE id=?`), id)
	r, err := scanRobot(row)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (db *DB) GetRobotByRoboID(ctx context.Context, roboID string) (*Robot, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+robotSelectCols+` FROM robots WHERE robo_id=?`), roboID)
	r, err := scanRobot(row)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (db *DB) SetRobotActive(ctx context.Context, id int64, active bool) error {
	return db.setRobotFlag(ctx, id, "is_active", active)
}

func (db *DB) SetRobotEmergency(ctx context.Context, id int64, on bool) error {
	return db.setRobotFlag(ctx, id, "emergency", on)
}

func (db *DB) SetRobotSpeakStart(ctx context.Context, id int64, on bool) error {
	return db.setRobotFlag(ctx, id, "speak_start", on)
}

// setRobotFlag updates one of the fixed boolean columns above; column is
// never caller-supplied.
func (db *DB) setRobotFlag(ctx context.Context, id int64, column string, v bool) error {
	res, err := db.ExecContext(ctx, db.Q(`UPDATE robots SET `+column+`=?, updated_at=datetime('now','localtime') WHERE id=?`), v, id)
	if err != nil {
		return fmt.Errorf("update robot %s: %w", column, err)
	}
	return requireAffected(res)
}

func (db *DB) UpsertRobotLocation(ctx context.Context, robotID int64, data JSONObject) error {
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO robot_locations (robot_id, location_data) VALUES (?, ?)
		ON CONFLICT (robot_id) DO UPDATE SET location_data=excluded.location_data, updated_at=datetime('now','localtime')`),
		robotID, data)
	if err != nil {
		return fmt.Errorf("upsert robot location: %w", err)
	}
	return nil
}

func (db *DB) GetRobotLocation(ctx context.Context, robotID int64) (*RobotLocation, error) {
	var loc RobotLocation
	var updatedAt any
	err := db.QueryRowContext(ctx, db.Q(`SELECT robot_id, location_data, updated_at FROM robot_locations WHERE robot_id=?`), robotID).
		Scan(&loc.RobotID, &loc.LocationData, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	loc.UpdatedAt = parseTime(updatedAt)
	return &loc, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
