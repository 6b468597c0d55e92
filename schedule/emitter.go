package schedule

import "robofleet/store"

// Emitter is the interface adapters must satisfy to bridge schedule events to the engine.
type Emitter interface {
	EmitScheduleCreated(s *store.Schedule)
	EmitScheduleUpdated(s *store.Schedule, oldStatus, actor string)
	EmitScheduleRestamped(s *store.Schedule)
	EmitScheduleCanceled(s *store.Schedule)
	EmitInspectionCreated(in *store.Inspection)
	EmitInspectionVerified(in *store.Inspection)
}
