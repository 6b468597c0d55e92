package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	HandLeft  = "left"
	HandRight = "right"

	PointOne   = "one"
	PointTwo   = "two"
	PointThree = "three"
)

var (
	Hands  = []string{HandLeft, HandRight}
	Points = []string{PointOne, PointTwo, PointThree}
)

func ValidHand(h string) bool  { return h == HandLeft || h == HandRight }
func ValidPoint(p string) bool { return p == PointOne || p == PointTwo || p == PointThree }

type EmergencyStop struct {
	RobotID         int64     `json:"robot_id"`
	IsEmergencyStop bool      `json:"is_emergency_stop"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Profile struct {
	ID                int64     `json:"id"`
	RobotID           int64     `json:"robot_id"`
	Name              string    `json:"name"`
	CalibrationStatus bool      `json:"calibration_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type CalibrationPoint struct {
	Point    string     `json:"point"`
	IsActive bool       `json:"is_active"`
	Data     JSONObject `json:"data"`
}

type HandCalibration struct {
	Hand     string              `json:"hand"`
	IsActive bool                `json:"is_active"`
	Points   []*CalibrationPoint `json:"points"`
}

type Calibration struct {
	Profile *Profile           `json:"profile"`
	Hands   []*HandCalibration `json:"hands"`
}

// Hand returns the named hand, or nil.
func (c *Calibration) Hand(name string) *HandCalibration {
	for _, h := range c.Hands {
		if h.Hand == name {
			return h
		}
	}
	return nil
}

// Point returns the named point of this hand, or nil.
func (h *HandCalibration) Point(name string) *CalibrationPoint {
	for _, p := range h.Points {
		if p.Point == name {
			return p
		}
	}
	return nil
}

// --- Emergency stop ---

// GetOrCreateEmergencyStop returns the robot's stop record, creating an
// inactive one on first access.
func (db *DB) GetOrCreateEmergencyStop(ctx context.Context, robotID int64) (*EmergencyStop, error) {
	if _, err := db.ExecContext(ctx, db.Q(`INSERT INTO emergency_stops (robot_id, is_emergency_stop) VALUES (?, ?) ON CONFLICT (robot_id) DO NOTHING`),
		robotID, false); err != nil {
		return nil, fmt.Errorf("init emergency stop: %w", err)
	}
	return db.getEmergencyStop(ctx, robotID)
}

func (db *DB) SetEmergencyStop(ctx context.Context, robotID int64, on bool) (*EmergencyStop, error) {
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO emergency_stops (robot_id, is_emergency_stop) VALUES (?, ?)
		ON CONFLICT (robot_id) DO UPDATE SET is_emergency_stop=excluded.is_emergency_stop, updated_at=datetime('now','localtime')`),
		robotID, on)
	if err != nil {
		return nil, fmt.Errorf("set emergency stop: %w", err)
	}
	return db.getEmergencyStop(ctx, robotID)
}

func (db *DB) getEmergencyStop(ctx context.Context, robotID int64) (*EmergencyStop, error) {
	var es EmergencyStop
	var updatedAt any
	err := db.QueryRowContext(ctx, db.Q(`SELECT robot_id, is_emergency_stop, updated_at FROM emergency_stops WHERE robot_id=?`), robotID).
		Scan(&es.RobotID, &es.IsEmergencyStop, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	es.UpdatedAt = parseTime(updatedAt)
	return &es, nil
}

// --- Profiles and calibration ---

// CreateProfile inserts a profile with both hands and all six points
// inactive.
func (db *DB) CreateProfile(ctx context.Context, p *Profile) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.getRobot(ctx, tx, p.RobotID); err != nil {
			return err
		}
		id, err := db.insertReturningID(ctx, tx, `INSERT INTO profiles (robot_id, name, calibration_status) VALUES (?, ?, ?)`,
			p.RobotID, p.Name, p.CalibrationStatus)
		if err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		for _, h := range Hands {
			if _, err := tx.ExecContext(ctx, db.Q(`INSERT INTO calibrate_hands (profile_id, hand, is_active) VALUES (?, ?, ?)`), id, h, false); err != nil {
				return fmt.Errorf("insert hand: %w", err)
			}
			for _, pt := range Points {
				if _, err := tx.ExecContext(ctx, db.Q(`INSERT INTO calibration_points (profile_id, hand, point, is_active) VALUES (?, ?, ?, ?)`), id, h, pt, false); err != nil {
					return fmt.Errorf("insert point: %w", err)
				}
			}
		}
		got, err := db.getProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		*p = *got
		return nil
	})
}

func (db *DB) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	return db.getProfile(ctx, db, id)
}

func (db *DB) getProfile(ctx context.Context, q querier, id int64) (*Profile, error) {
	var p Profile
	var createdAt, updatedAt any
	err := q.QueryRowContext(ctx, db.Q(`SELECT id, robot_id, name, calibration_status, created_at, updated_at FROM profiles WHERE id=?`), id).
		Scan(&p.ID, &p.RobotID, &p.Name, &p.CalibrationStatus, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (db *DB) GetCalibration(ctx context.Context, profileID int64) (*Calibration, error) {
	return db.getCalibration(ctx, db, profileID)
}

func (db *DB) getCalibration(ctx context.Context, q querier, profileID int64) (*Calibration, error) {
	p, err := db.getProfile(ctx, q, profileID)
	if err != nil {
		return nil, err
	}
	c := &Calibration{Profile: p}
	for _, h := range Hands {
		c.Hands = append(c.Hands, &HandCalibration{Hand: h})
	}
	rows, err := q.QueryContext(ctx, db.Q(`SELECT hand, is_active FROM calibrate_hands WHERE profile_id=?`), profileID)
	if err != nil {
		return nil, fmt.Errorf("load hands: %w", err)
	}
	for rows.Next() {
		var hand string
		var active bool
		if err := rows.Scan(&hand, &active); err != nil {
			rows.Close()
			return nil, err
		}
		if h := c.Hand(hand); h != nil {
			h.IsActive = active
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, db.Q(`SELECT hand, point, is_active, data FROM calibration_points WHERE profile_id=?`), profileID)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()
	byKey := make(map[string]*CalibrationPoint)
	for rows.Next() {
		var hand string
		cp := &CalibrationPoint{}
		if err := rows.Scan(&hand, &cp.Point, &cp.IsActive, &cp.Data); err != nil {
			return nil, err
		}
		byKey[hand+"/"+cp.Point] = cp
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, h := range c.Hands {
		for _, pt := range Points {
			cp, ok := byKey[h.Hand+"/"+pt]
			if !ok {
				cp = &CalibrationPoint{Point: pt}
			}
			h.Points = append(h.Points, cp)
		}
	}
	return c, nil
}

// SetCalibrationStatus toggles the profile's master switch. Turning it off
// deactivates every hand and point.
func (db *DB) SetCalibrationStatus(ctx context.Context, profileID int64, on bool) (*Calibration, error) {
	var out *Calibration
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.Q(`UPDATE profiles SET calibration_status=?, updated_at=datetime('now','localtime') WHERE id=?`), on, profileID)
		if err != nil {
			return fmt.Errorf("set calibration status: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if !on {
			if _, err := tx.ExecContext(ctx, db.Q(`UPDATE calibrate_hands SET is_active=?, updated_at=datetime('now','localtime') WHERE profile_id=?`), false, profileID); err != nil {
				return fmt.Errorf("reset hands: %w", err)
			}
			if _, err := tx.ExecContext(ctx, db.Q(`UPDATE calibration_points SET is_active=?, updated_at=datetime('now','localtime') WHERE profile_id=?`), false, profileID); err != nil {
				return fmt.Errorf("reset points: %w", err)
			}
		}
		out, err = db.getCalibration(ctx, tx, profileID)
		return err
	})
	return out, err
}

// SetHandActive activates or deactivates one hand. Activation requires the
// profile's calibration to be on; deactivation forces the hand's three
// points inactive.
func (db *DB) SetHandActive(ctx context.Context, profileID int64, hand string, on bool) (*Calibration, error) {
	var out *Calibration
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := db.getProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if on && !p.CalibrationStatus {
			return ErrCalibrationOff
		}
		res, err := tx.ExecContext(ctx, db.Q(`UPDATE calibrate_hands SET is_active=?, updated_at=datetime('now','localtime') WHERE profile_id=? AND hand=?`), on, profileID, hand)
		if err != nil {
			return fmt.Errorf("set hand: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if !on {
			if _, err := tx.ExecContext(ctx, db.Q(`UPDATE calibration_points SET is_active=?, updated_at=datetime('now','localtime') WHERE profile_id=? AND hand=?`), false, profileID, hand); err != nil {
				return fmt.Errorf("reset hand points: %w", err)
			}
		}
		out, err = db.getCalibration(ctx, tx, profileID)
		return err
	})
	return out, err
}

// SetPoint writes a point's active flag and data. A nil data leaves the
// stored data alone. Activating requires calibration on and the parent
// hand active.
func (db *DB) SetPoint(ctx context.Context, profileID int64, hand, point string, active bool, data JSONObject) (*Calibration, error) {
	var out *Calibration
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.getCalibration(ctx, tx, profileID)
		if err != nil {
			return err
		}
		h := cur.Hand(hand)
		if h == nil || h.Point(point) == nil {
			return ErrNotFound
		}
		if active {
			if !cur.Profile.CalibrationStatus {
				return ErrCalibrationOff
			}
			if !h.IsActive {
				return ErrHandInactive
			}
		}
		if data != nil {
			_, err = tx.ExecContext(ctx, db.Q(`UPDATE calibration_points SET is_active=?, data=?, updated_at=datetime('now','localtime') WHERE profile_id=? AND hand=? AND point=?`),
				active, data, profileID, hand, point)
		} else {
			_, err = tx.ExecContext(ctx, db.Q(`UPDATE calibration_points SET is_active=?, updated_at=datetime('now','localtime') WHERE profile_id=? AND hand=? AND point=?`),
				active, profileID, hand, point)
		}
		if err != nil {
			return fmt.Errorf("set point: %w", err)
		}
		out, err = db.getCalibration(ctx, tx, profileID)
		return err
	})
	return out, err
}

// ClearPoint deactivates a point and drops its data.
func (db *DB) ClearPoint(ctx context.Context, profileID int64, hand, point string) (*Calibration, error) {
	var out *Calibration
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.Q(`UPDATE calibration_points SET is_active=?, data=NULL, updated_at=datetime('now','localtime') WHERE profile_id=? AND hand=? AND point=?`),
			false, profileID, hand, point)
		if err != nil {
			return fmt.Errorf("clear point: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		out, err = db.getCalibration(ctx, tx, profileID)
		return err
	})
	return out, err
}
