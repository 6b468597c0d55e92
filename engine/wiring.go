package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"robofleet/hub"
	"robofleet/protocol"
	"robofleet/store"
)

const (
	wireTimeout = 5 * time.Second
	actorSystem = "system"
)

// Frame event names seen by realtime clients.
const (
	FrameScheduleCreated    = "schedule_created"
	FrameScheduleUpdated    = "schedule_updated"
	FrameScheduleRestamped  = "schedule_restamped"
	FrameScheduleCanceled   = "schedule_canceled"
	FrameInspectionCreated  = "inspection_created"
	FrameInspectionVerified = "inspection_verified"
	FrameEmergencyUpdate    = "emergency_update"
	FrameSpeakStartUpdate   = "speak_start_update"
	FrameEmergencyUpdated   = "emergency_updated"
	FrameCalibrationUpdated = "calibration_updated"
	FrameLocationUpdated    = "robot_location_updated"
)

type scheduleFrame struct {
	*store.Schedule
	OldStatus string `json:"old_status,omitempty"`
}

type robotFlagFrame struct {
	RobotID    int64  `json:"robot_id"`
	RoboID     string `json:"robo_id"`
	Emergency  *bool  `json:"emergency,omitempty"`
	SpeakStart *bool  `json:"speak_start,omitempty"`
}

type emergencyStopFrame struct {
	*store.EmergencyStop
	RoboID string `json:"robo_id"`
}

type calibrationFrame struct {
	Change      string             `json:"change"`
	Hand        string             `json:"hand,omitempty"`
	Point       string             `json:"point,omitempty"`
	Calibration *store.Calibration `json:"calibration"`
}

func (e *Engine) wireEventHandlers() {
	e.wireBroadcasts()
	e.wireAudit()
	if e.msgClient != nil {
		e.wireOutbox()
	}
}

// wireBroadcasts maps every domain event onto its hub group.
func (e *Engine) wireBroadcasts() {
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ScheduleEvent)
		e.publish(hub.RobotGroup(ev.Schedule.RoboID), FrameScheduleCreated, scheduleFrame{Schedule: ev.Schedule})
	}, EventScheduleCreated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ScheduleStatusChangedEvent)
		e.publish(hub.RobotGroup(ev.Schedule.RoboID), FrameScheduleUpdated, scheduleFrame{Schedule: ev.Schedule, OldStatus: ev.OldStatus})
	}, EventScheduleStatusChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ScheduleEvent)
		e.publish(hub.RobotGroup(ev.Schedule.RoboID), FrameScheduleRestamped, scheduleFrame{Schedule: ev.Schedule})
	}, EventScheduleRestamped)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ScheduleEvent)
		e.publish(hub.RobotGroup(ev.Schedule.RoboID), FrameScheduleCanceled, scheduleFrame{Schedule: ev.Schedule})
	}, EventScheduleCanceled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(InspectionEvent)
		e.publish(hub.ScheduleGroup(ev.Inspection.ScheduleID), FrameInspectionCreated, ev.Inspection)
	}, EventInspectionCreated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(InspectionEvent)
		e.publish(hub.ScheduleGroup(ev.Inspection.ScheduleID), FrameInspectionVerified, ev.Inspection)
	}, EventInspectionVerified)

	e.Events.SubscribeTypes(func(evt Event) {
		r := evt.Payload.(RobotEvent).Robot
		e.publish(hub.RobotGroup(r.RoboID), FrameEmergencyUpdate, robotFlagFrame{RobotID: r.ID, RoboID: r.RoboID, Emergency: &r.Emergency})
	}, EventEmergencyChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		r := evt.Payload.(RobotEvent).Robot
		e.publish(hub.RobotGroup(r.RoboID), FrameSpeakStartUpdate, robotFlagFrame{RobotID: r.ID, RoboID: r.RoboID, SpeakStart: &r.SpeakStart})
	}, EventSpeakStartChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(EmergencyStopEvent)
		e.publish(hub.EmergencyStopGroup, FrameEmergencyUpdated, emergencyStopFrame{EmergencyStop: ev.Stop, RoboID: ev.Robot.RoboID})
	}, EventEmergencyStopChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(CalibrationChangedEvent)
		e.publish(hub.ProfileGroup(ev.Robot.RoboID, ev.Calibration.Profile.ID), FrameCalibrationUpdated, calibrationFrame{
			Change:      ev.Change,
			Hand:        ev.Hand,
			Point:       ev.Point,
			Calibration: ev.Calibration,
		})
	}, EventCalibrationChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(LocationUpdatedEvent)
		e.publish(hub.RobotGroup(ev.Robot.RoboID), FrameLocationUpdated, ev.Location)
	}, EventLocationUpdated)
}

func (e *Engine) wireAudit() {
	e.Events.SubscribeTypes(func(evt Event) {
		s := evt.Payload.(ScheduleEvent).Schedule
		e.audit("schedule", s.ID, "created", "", fmt.Sprintf("%s %s %s-%s", s.Location, s.ScheduledDate, s.ScheduledTime, s.EndTime), "api")
	}, EventScheduleCreated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ScheduleStatusChangedEvent)
		e.audit("schedule", ev.Schedule.ID, "status", ev.OldStatus, ev.Schedule.Status, ev.Actor)
	}, EventScheduleStatusChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		s := evt.Payload.(ScheduleEvent).Schedule
		e.audit("schedule", s.ID, "restamped", "", fmt.Sprintf("rev=%d %s %s", s.Revision, s.Location, s.ScheduledTime), "api")
	}, EventScheduleRestamped)

	e.Events.SubscribeTypes(func(evt Event) {
		s := evt.Payload.(ScheduleEvent).Schedule
		e.audit("schedule", s.ID, "canceled", s.Status, "", "api")
	}, EventScheduleCanceled)

	e.Events.SubscribeTypes(func(evt Event) {
		in := evt.Payload.(InspectionEvent).Inspection
		e.audit("inspection", in.ID, "verified", "", fmt.Sprintf("false_detected=%t approved=%t", in.FalseDetected, in.IsApproved), "api")
	}, EventInspectionVerified)

	e.Events.SubscribeTypes(func(evt Event) {
		r := evt.Payload.(RobotEvent).Robot
		e.audit("robot", r.ID, "active", "", strconv.FormatBool(r.IsActive), "api")
	}, EventRobotActiveChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(EmergencyStopEvent)
		e.audit("robot", ev.Robot.ID, "emergency_stop", "", strconv.FormatBool(ev.Stop.IsEmergencyStop), "api")
	}, EventEmergencyStopChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(CalibrationChangedEvent)
		e.audit("profile", ev.Calibration.Profile.ID, ev.Change, "", ev.Hand+"/"+ev.Point, "api")
	}, EventCalibrationChanged)
}

// wireOutbox queues lifecycle events for Kafka, keyed by robo_id.
func (e *Engine) wireOutbox() {
	e.Events.SubscribeTypes(func(evt Event) {
		var (
			s         *store.Schedule
			oldStatus string
			actor     string
			msgType   string
		)
		switch evt.Type {
		case EventScheduleCreated:
			s, msgType = evt.Payload.(ScheduleEvent).Schedule, protocol.TypeScheduleCreated
		case EventScheduleCanceled:
			s, msgType = evt.Payload.(ScheduleEvent).Schedule, protocol.TypeScheduleCanceled
		case EventScheduleRestamped:
			s, msgType = evt.Payload.(ScheduleEvent).Schedule, protocol.TypeScheduleUpdated
		case EventScheduleStatusChanged:
			ev := evt.Payload.(ScheduleStatusChangedEvent)
			s, oldStatus, actor, msgType = ev.Schedule, ev.OldStatus, ev.Actor, protocol.TypeScheduleUpdated
		}
		e.enqueue(msgType, s.RoboID, &protocol.ScheduleEvent{
			ScheduleID:    s.ID,
			RobotID:       s.RobotID,
			RoboID:        s.RoboID,
			Location:      s.Location,
			ScheduledDate: s.ScheduledDate,
			ScheduledTime: s.ScheduledTime,
			EndTime:       s.EndTime,
			Status:        s.Status,
			OldStatus:     oldStatus,
			IsCanceled:    s.IsCanceled,
			Revision:      s.Revision,
			Actor:         actor,
		})
	}, EventScheduleCreated, EventScheduleStatusChanged, EventScheduleRestamped, EventScheduleCanceled)

	e.Events.SubscribeTypes(func(evt Event) {
		in := evt.Payload.(InspectionEvent).Inspection
		msgType := protocol.TypeInspectionCreated
		if evt.Type == EventInspectionVerified {
			msgType = protocol.TypeInspectionVerified
		}
		ctx, cancel := context.WithTimeout(context.Background(), wireTimeout)
		defer cancel()
		var key string
		if s, err := e.db.GetSchedule(ctx, in.ScheduleID); err == nil {
			key = s.RoboID
		}
		e.enqueue(msgType, key, &protocol.InspectionEvent{
			InspectionID:    in.ID,
			ScheduleID:      in.ScheduleID,
			RimID:           in.RimID,
			IsDefect:        in.IsDefect,
			IsHumanVerified: in.IsHumanVerified,
			FalseDetected:   in.FalseDetected,
			CorrectLabel:    in.CorrectLabel,
			IsApproved:      in.IsApproved,
		})
	}, EventInspectionCreated, EventInspectionVerified)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(EmergencyStopEvent)
		e.enqueue(protocol.TypeEmergencyStop, ev.Robot.RoboID, &protocol.EmergencyStopEvent{
			RobotID:         ev.Robot.ID,
			RoboID:          ev.Robot.RoboID,
			IsEmergencyStop: ev.Stop.IsEmergencyStop,
		})
	}, EventEmergencyStopChanged)
}

func (e *Engine) publish(group, event string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), wireTimeout)
	defer cancel()
	if err := e.hub.Publish(ctx, group, event, data); err != nil {
		e.log.Error("engine: publish", zap.String("group", group), zap.String("event", event), zap.Error(err))
	}
}

func (e *Engine) audit(entity string, id int64, action, oldValue, newValue, actor string) {
	ctx, cancel := context.WithTimeout(context.Background(), wireTimeout)
	defer cancel()
	if actor == "" {
		actor = actorSystem
	}
	if err := e.db.AppendAudit(ctx, entity, id, action, oldValue, newValue, actor); err != nil {
		e.log.Warn("engine: audit", zap.String("entity", entity), zap.Int64("id", id), zap.Error(err))
	}
}

func (e *Engine) enqueue(msgType, key string, payload any) {
	env, err := protocol.NewEnvelope(msgType, protocol.Address{Role: protocol.RoleCore}, protocol.Address{}, payload)
	if err != nil {
		e.log.Error("engine: build envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		e.log.Error("engine: encode envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), wireTimeout)
	defer cancel()
	if err := e.db.EnqueueOutbox(ctx, e.cfg.Messaging.EventsTopic, data, msgType, key); err != nil {
		e.log.Error("engine: enqueue outbox", zap.String("type", msgType), zap.Error(err))
	}
}
