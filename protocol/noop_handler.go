package protocol

// NoOpHandler implements MessageHandler with no-op methods.
type NoOpHandler struct{}

func (NoOpHandler) HandleRobotTelemetry(*Envelope, *RobotTelemetry) {}
func (NoOpHandler) HandleRobotEvent(*Envelope, *RobotEvent)         {}

var _ MessageHandler = NoOpHandler{}
