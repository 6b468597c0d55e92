package fleetstate

import "robofleet/store"

// Flags is the cached per-robot switch state.
type Flags struct {
	RobotID         int64  `json:"robot_id"`
	RoboID          string `json:"robo_id"`
	IsActive        bool   `json:"is_active"`
	Emergency       bool   `json:"emergency"`
	SpeakStart      bool   `json:"speak_start"`
	IsEmergencyStop bool   `json:"is_emergency_stop"`
}

func flagsOf(r *store.Robot, es *store.EmergencyStop) *Flags {
	f := &Flags{
		RobotID:    r.ID,
		RoboID:     r.RoboID,
		IsActive:   r.IsActive,
		Emergency:  r.Emergency,
		SpeakStart: r.SpeakStart,
	}
	if es != nil {
		f.IsEmergencyStop = es.IsEmergencyStop
	}
	return f
}

// Calibration change kinds carried on profile events.
const (
	ChangeStatus     = "calibration_status"
	ChangeHand       = "hand"
	ChangePoint      = "point"
	ChangePointClear = "point_cleared"
)

// Emitter receives every fleet state mutation after it is persisted.
type Emitter interface {
	EmitRobotActive(r *store.Robot)
	EmitEmergency(r *store.Robot)
	EmitSpeakStart(r *store.Robot)
	EmitEmergencyStop(r *store.Robot, es *store.EmergencyStop)
	EmitCalibration(r *store.Robot, c *store.Calibration, change, hand, point string)
	EmitLocation(r *store.Robot, loc *store.RobotLocation)
}
