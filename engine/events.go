package engine

import "robofleet/store"

const (
	EventScheduleCreated EventType = iota + 1
	EventScheduleStatusChanged
	EventScheduleRestamped
	EventScheduleCanceled
	EventInspectionCreated
	EventInspectionVerified
	EventRobotActiveChanged
	EventEmergencyChanged
	EventSpeakStartChanged
	EventEmergencyStopChanged
	EventCalibrationChanged
	EventLocationUpdated
)

// --- Event payloads ---

type ScheduleEvent struct {
	Schedule *store.Schedule
}

type ScheduleStatusChangedEvent struct {
	Schedule  *store.Schedule
	OldStatus string
	Actor     string
}

type InspectionEvent struct {
	Inspection *store.Inspection
}

type RobotEvent struct {
	Robot *store.Robot
}

type EmergencyStopEvent struct {
	Robot *store.Robot
	Stop  *store.EmergencyStop
}

type CalibrationChangedEvent struct {
	Robot       *store.Robot
	Calibration *store.Calibration
	Change      string
	Hand        string
	Point       string
}

type LocationUpdatedEvent struct {
	Robot    *store.Robot
	Location *store.RobotLocation
}
