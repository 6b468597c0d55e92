package protocol

import "encoding/json"

// --- Core -> subscribers ---

// ScheduleEvent describes a schedule after a lifecycle change.
type ScheduleEvent struct {
	ScheduleID    int64  `json:"schedule_id"`
	RobotID       int64  `json:"robot_id"`
	RoboID        string `json:"robo_id"`
	Location      string `json:"location"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	OldStatus     string `json:"old_status,omitempty"`
	IsCanceled    bool   `json:"is_canceled"`
	Revision      int64  `json:"revision"`
	Actor         string `json:"actor,omitempty"`
}

// InspectionEvent describes an inspection after creation or review.
type InspectionEvent struct {
	InspectionID    int64   `json:"inspection_id"`
	ScheduleID      int64   `json:"schedule_id"`
	RimID           string  `json:"rim_id"`
	IsDefect        bool    `json:"is_defect"`
	IsHumanVerified bool    `json:"is_human_verified"`
	FalseDetected   bool    `json:"false_detected"`
	CorrectLabel    *string `json:"correct_label,omitempty"`
	IsApproved      bool    `json:"is_approved"`
}

// EmergencyStopEvent carries a per-robot emergency stop toggle.
type EmergencyStopEvent struct {
	RobotID         int64  `json:"robot_id"`
	RoboID          string `json:"robo_id"`
	IsEmergencyStop bool   `json:"is_emergency_stop"`
}

// --- Robot -> Core ---

// RobotTelemetry is a position report. Location is an opaque object.
type RobotTelemetry struct {
	RoboID   string         `json:"robo_id"`
	Location map[string]any `json:"location"`
}

// RobotEvent is a robot-originated event relayed to the robot's group.
type RobotEvent struct {
	RoboID string          `json:"robo_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}
