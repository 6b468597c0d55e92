// Package fleetstate owns per-robot switches, emergency stops, calibration
// profiles and location records. Every mutation is written to SQL first,
// then mirrored to Redis, then emitted.
package fleetstate

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"robofleet/apperr"
	"robofleet/store"
)

type Manager struct {
	db      *store.DB
	redis   *RedisStore
	emitter Emitter
	log     *zap.Logger
}

// NewManager builds a manager. redis may be nil, in which case reads go
// straight to SQL.
func NewManager(db *store.DB, redis *RedisStore, emitter Emitter, logger *zap.Logger) *Manager {
	return &Manager{db: db, redis: redis, emitter: emitter, log: logger.Named("fleetstate")}
}

// --- Robots ---

type RobotInput struct {
	RoboID    string `json:"robo_id"`
	Name      string `json:"name"`
	RobotType string `json:"robot_type"`
	Status    string `json:"status"`
}

var (
	robotTypes    = map[string]bool{store.RobotTypeInspection: true, store.RobotTypePickDrop: true}
	robotStatuses = map[string]bool{
		store.RobotStatusAvailable: true, store.RobotStatusSold: true,
		store.RobotStatusInTransit: true, store.RobotStatusMaintenance: true,
	}
)

func (m *Manager) CreateRobot(ctx context.Context, in RobotInput) (*store.Robot, error) {
	in.RoboID = strings.TrimSpace(in.RoboID)
	fields := map[string]string{}
	if in.RoboID == "" {
		fields["robo_id"] = "This field is required."
	}
	if in.RobotType != "" && !robotTypes[in.RobotType] {
		fields["robot_type"] = `"` + in.RobotType + `" is not a valid choice.`
	}
	if in.Status != "" && !robotStatuses[in.Status] {
		fields["status"] = `"` + in.Status + `" is not a valid choice.`
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Validation failed", fields)
	}
	r := &store.Robot{RoboID: in.RoboID, Name: in.Name, RobotType: in.RobotType, Status: in.Status}
	if err := m.db.CreateRobot(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("robot with this robo id already exists.")
		}
		return nil, apperr.Internal(err)
	}
	m.log.Info("fleetstate: robot created", zap.Int64("robot_id", r.ID), zap.String("robo_id", r.RoboID))
	return r, nil
}

func (m *Manager) Robot(ctx context.Context, id int64) (*store.Robot, error) {
	r, err := m.db.GetRobot(ctx, id)
	if err != nil {
		return nil, robotLookupError(err)
	}
	return r, nil
}

// SetActive soft-activates or deactivates a robot. Robots are never deleted.
func (m *Manager) SetActive(ctx context.Context, id int64, on bool) (*store.Robot, error) {
	r, err := m.setFlag(ctx, id, on, m.db.SetRobotActive)
	if err != nil {
		return nil, err
	}
	m.log.Info("fleetstate: robot activity changed", zap.Int64("robot_id", id), zap.Bool("is_active", on))
	m.emitter.EmitRobotActive(r)
	return r, nil
}

// --- Per-robot flags ---

func (m *Manager) Flags(ctx context.Context, id int64) (*Flags, error) {
	if m.redis != nil {
		f, err := m.redis.GetFlags(ctx, id)
		if err != nil {
			m.log.Debug("fleetstate: redis read failed", zap.Int64("robot_id", id), zap.Error(err))
		} else if f != nil {
			return f, nil
		}
	}
	r, err := m.db.GetRobot(ctx, id)
	if err != nil {
		return nil, robotLookupError(err)
	}
	es, err := m.db.GetOrCreateEmergencyStop(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	f := flagsOf(r, es)
	m.cache(ctx, f)
	return f, nil
}

func (m *Manager) SetEmergency(ctx context.Context, id int64, on bool) (*store.Robot, error) {
	r, err := m.setFlag(ctx, id, on, m.db.SetRobotEmergency)
	if err != nil {
		return nil, err
	}
	m.log.Info("fleetstate: emergency flag changed", zap.String("robo_id", r.RoboID), zap.Bool("emergency", on))
	m.emitter.EmitEmergency(r)
	return r, nil
}

func (m *Manager) SetSpeakStart(ctx context.Context, id int64, on bool) (*store.Robot, error) {
	r, err := m.setFlag(ctx, id, on, m.db.SetRobotSpeakStart)
	if err != nil {
		return nil, err
	}
	m.log.Info("fleetstate: speak flag changed", zap.String("robo_id", r.RoboID), zap.Bool("speak_start", on))
	m.emitter.EmitSpeakStart(r)
	return r, nil
}

func (m *Manager) setFlag(ctx context.Context, id int64, on bool, set func(context.Context, int64, bool) error) (*store.Robot, error) {
	if err := set(ctx, id, on); err != nil {
		return nil, robotLookupError(err)
	}
	r, err := m.db.GetRobot(ctx, id)
	if err != nil {
		return nil, robotLookupError(err)
	}
	m.refresh(ctx, r)
	return r, nil
}

// --- Emergency stop ---

// EmergencyStop returns the robot's stop record, creating it on first access.
func (m *Manager) EmergencyStop(ctx context.Context, robotID int64) (*store.EmergencyStop, error) {
	if _, err := m.Robot(ctx, robotID); err != nil {
		return nil, err
	}
	es, err := m.db.GetOrCreateEmergencyStop(ctx, robotID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return es, nil
}

func (m *Manager) SetEmergencyStop(ctx context.Context, robotID int64, on bool) (*store.EmergencyStop, error) {
	r, err := m.Robot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	es, err := m.db.SetEmergencyStop(ctx, robotID, on)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	m.refresh(ctx, r)
	m.log.Warn("fleetstate: emergency stop changed", zap.String("robo_id", r.RoboID), zap.Bool("is_emergency_stop", on))
	m.emitter.EmitEmergencyStop(r, es)
	return es, nil
}

// --- Profiles and calibration ---

func (m *Manager) CreateProfile(ctx context.Context, robotID int64, name string) (*store.Calibration, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Validation failed", map[string]string{"name": "This field is required."})
	}
	p := &store.Profile{RobotID: robotID, Name: name}
	if err := m.db.CreateProfile(ctx, p); err != nil {
		return nil, robotLookupError(err)
	}
	c, err := m.db.GetCalibration(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	m.log.Info("fleetstate: profile created", zap.Int64("robot_id", robotID), zap.Int64("profile_id", p.ID))
	return c, nil
}

func (m *Manager) Calibration(ctx context.Context, profileID int64) (*store.Calibration, error) {
	c, err := m.db.GetCalibration(ctx, profileID)
	if err != nil {
		return nil, calibrationError(err)
	}
	return c, nil
}

func (m *Manager) SetCalibrationStatus(ctx context.Context, profileID int64, on bool) (*store.Calibration, error) {
	c, err := m.db.SetCalibrationStatus(ctx, profileID, on)
	if err != nil {
		return nil, calibrationError(err)
	}
	m.emitCalibration(ctx, c, ChangeStatus, "", "")
	return c, nil
}

func (m *Manager) SetHandActive(ctx context.Context, profileID int64, hand string, on bool) (*store.Calibration, error) {
	if !store.ValidHand(hand) {
		return nil, apperr.NotFound("Hand not found")
	}
	c, err := m.db.SetHandActive(ctx, profileID, hand, on)
	if err != nil {
		return nil, calibrationError(err)
	}
	m.emitCalibration(ctx, c, ChangeHand, hand, "")
	return c, nil
}

// SetPoint sets one point's active flag and, when data is non-nil, its
// coordinate blob.
func (m *Manager) SetPoint(ctx context.Context, profileID int64, hand, point string, active bool, data store.JSONObject) (*store.Calibration, error) {
	if !store.ValidHand(hand) || !store.ValidPoint(point) {
		return nil, apperr.NotFound("Calibration point not found")
	}
	c, err := m.db.SetPoint(ctx, profileID, hand, point, active, data)
	if err != nil {
		return nil, calibrationError(err)
	}
	m.emitCalibration(ctx, c, ChangePoint, hand, point)
	return c, nil
}

func (m *Manager) ClearPoint(ctx context.Context, profileID int64, hand, point string) (*store.Calibration, error) {
	if !store.ValidHand(hand) || !store.ValidPoint(point) {
		return nil, apperr.NotFound("Calibration point not found")
	}
	c, err := m.db.ClearPoint(ctx, profileID, hand, point)
	if err != nil {
		return nil, calibrationError(err)
	}
	m.emitCalibration(ctx, c, ChangePointClear, hand, point)
	return c, nil
}

// emitCalibration resolves the owning robot for the profile group name.
// The mutation is already committed, so a failed lookup is logged only.
func (m *Manager) emitCalibration(ctx context.Context, c *store.Calibration, change, hand, point string) {
	r, err := m.db.GetRobot(ctx, c.Profile.RobotID)
	if err != nil {
		m.log.Error("fleetstate: calibration owner lookup", zap.Int64("profile_id", c.Profile.ID), zap.Error(err))
		return
	}
	m.log.Info("fleetstate: calibration changed", zap.Int64("profile_id", c.Profile.ID),
		zap.String("change", change), zap.String("hand", hand), zap.String("point", point))
	m.emitter.EmitCalibration(r, c, change, hand, point)
}

// --- Location ---

func (m *Manager) Location(ctx context.Context, robotID int64) (*store.RobotLocation, error) {
	if _, err := m.Robot(ctx, robotID); err != nil {
		return nil, err
	}
	loc, err := m.db.GetRobotLocation(ctx, robotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Robot location not found")
		}
		return nil, apperr.Internal(err)
	}
	return loc, nil
}

// UpdateLocation records a telemetry position for the robot with roboID.
func (m *Manager) UpdateLocation(ctx context.Context, roboID string, data store.JSONObject) (*store.RobotLocation, error) {
	if data == nil {
		return nil, apperr.Validation("Validation failed", map[string]string{"location_data": store.ErrNotObject.Error()})
	}
	r, err := m.db.GetRobotByRoboID(ctx, roboID)
	if err != nil {
		return nil, robotLookupError(err)
	}
	if err := m.db.UpsertRobotLocation(ctx, r.ID, data); err != nil {
		return nil, apperr.Internal(err)
	}
	loc, err := m.db.GetRobotLocation(ctx, r.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	m.log.Debug("fleetstate: location updated", zap.String("robo_id", roboID))
	m.emitter.EmitLocation(r, loc)
	return loc, nil
}

// refresh rewrites the robot's cached flags. Redis failures never fail the
// SQL write that preceded them.
func (m *Manager) refresh(ctx context.Context, r *store.Robot) {
	if m.redis == nil {
		return
	}
	es, err := m.db.GetOrCreateEmergencyStop(ctx, r.ID)
	if err != nil {
		m.log.Warn("fleetstate: load emergency stop for cache", zap.Int64("robot_id", r.ID), zap.Error(err))
		m.redis.RemoveFlags(ctx, r.ID)
		return
	}
	m.cache(ctx, flagsOf(r, es))
}

func (m *Manager) cache(ctx context.Context, f *Flags) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetFlags(ctx, f); err != nil {
		m.log.Debug("fleetstate: redis write failed", zap.Int64("robot_id", f.RobotID), zap.Error(err))
	}
}

func robotLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Robot not found")
	}
	return apperr.Internal(err)
}

func calibrationError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Profile not found")
	case errors.Is(err, store.ErrCalibrationOff):
		return apperr.State("Calibration is not enabled for this profile")
	case errors.Is(err, store.ErrHandInactive):
		return apperr.State("Hand must be active before its points can be activated")
	}
	return apperr.Internal(err)
}
