package engine

import "robofleet/store"

// scheduleEmitter bridges the schedule package's emitter interface to the EventBus.
type scheduleEmitter struct {
	bus *EventBus
}

func (e *scheduleEmitter) EmitScheduleCreated(s *store.Schedule) {
	e.bus.Emit(Event{Type: EventScheduleCreated, Payload: ScheduleEvent{Schedule: s}})
}

func (e *scheduleEmitter) EmitScheduleUpdated(s *store.Schedule, oldStatus, actor string) {
	e.bus.Emit(Event{Type: EventScheduleStatusChanged, Payload: ScheduleStatusChangedEvent{
		Schedule:  s,
		OldStatus: oldStatus,
		Actor:     actor,
	}})
}

func (e *scheduleEmitter) EmitScheduleRestamped(s *store.Schedule) {
	e.bus.Emit(Event{Type: EventScheduleRestamped, Payload: ScheduleEvent{Schedule: s}})
}

func (e *scheduleEmitter) EmitScheduleCanceled(s *store.Schedule) {
	e.bus.Emit(Event{Type: EventScheduleCanceled, Payload: ScheduleEvent{Schedule: s}})
}

func (e *scheduleEmitter) EmitInspectionCreated(in *store.Inspection) {
	e.bus.Emit(Event{Type: EventInspectionCreated, Payload: InspectionEvent{Inspection: in}})
}

func (e *scheduleEmitter) EmitInspectionVerified(in *store.Inspection) {
	e.bus.Emit(Event{Type: EventInspectionVerified, Payload: InspectionEvent{Inspection: in}})
}

// fleetEmitter bridges fleetstate mutations to the EventBus.
type fleetEmitter struct {
	bus *EventBus
}

func (e *fleetEmitter) EmitRobotActive(r *store.Robot) {
	e.bus.Emit(Event{Type: EventRobotActiveChanged, Payload: RobotEvent{Robot: r}})
}

func (e *fleetEmitter) EmitEmergency(r *store.Robot) {
	e.bus.Emit(Event{Type: EventEmergencyChanged, Payload: RobotEvent{Robot: r}})
}

func (e *fleetEmitter) EmitSpeakStart(r *store.Robot) {
	e.bus.Emit(Event{Type: EventSpeakStartChanged, Payload: RobotEvent{Robot: r}})
}

func (e *fleetEmitter) EmitEmergencyStop(r *store.Robot, es *store.EmergencyStop) {
	e.bus.Emit(Event{Type: EventEmergencyStopChanged, Payload: EmergencyStopEvent{Robot: r, Stop: es}})
}

func (e *fleetEmitter) EmitCalibration(r *store.Robot, c *store.Calibration, change, hand, point string) {
	e.bus.Emit(Event{Type: EventCalibrationChanged, Payload: CalibrationChangedEvent{
		Robot:       r,
		Calibration: c,
		Change:      change,
		Hand:        hand,
		Point:       point,
	}})
}

func (e *fleetEmitter) EmitLocation(r *store.Robot, loc *store.RobotLocation) {
	e.bus.Emit(Event{Type: EventLocationUpdated, Payload: LocationUpdatedEvent{Robot: r, Location: loc}})
}
