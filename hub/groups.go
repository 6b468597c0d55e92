package hub

import "fmt"

const (
	// EmergencyStopGroup receives emergency-stop toggles for every robot.
	EmergencyStopGroup = "emergency_stop"
	// RobotMessageGroup is the fleet-wide bidirectional robot channel.
	RobotMessageGroup = "robot_message_group"
)

func ScheduleGroup(scheduleID int64) string {
	return fmt.Sprintf("schedule_%d", scheduleID)
}

func RobotGroup(roboID string) string {
	return "robot_message_" + roboID
}

func ProfileGroup(roboID string, profileID int64) string {
	return fmt.Sprintf("robot_profile_%s_%d", roboID, profileID)
}
