package protocol

// Message type constants.
const (
	// Core -> subscribers (published on the events topic)
	TypeScheduleCreated    = "schedule.created"
	TypeScheduleUpdated    = "schedule.updated"
	TypeScheduleCanceled   = "schedule.canceled"
	TypeInspectionCreated  = "inspection.created"
	TypeInspectionVerified = "inspection.verified"
	TypeEmergencyStop      = "robot.emergency_stop"

	// Robot -> Core (MQTT telemetry topic)
	TypeRobotTelemetry = "robot.telemetry"
	TypeRobotEvent     = "robot.event"
)

// Roles for Address.Role.
const (
	RoleCore  = "core"
	RoleRobot = "robot"
)

// Protocol version.
const Version = 1
