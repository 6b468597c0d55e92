package messaging

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"robofleet/hub"
	"robofleet/protocol"
	"robofleet/store"
)

const handleTimeout = 5 * time.Second

// LocationUpdater persists a telemetry position.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, roboID string, data store.JSONObject) (*store.RobotLocation, error)
}

// RawPublisher forwards an encoded frame to a hub group.
type RawPublisher interface {
	PublishRaw(ctx context.Context, group string, msg []byte)
}

// RobotHandler handles inbound robot messages from the telemetry topic.
type RobotHandler struct {
	protocol.NoOpHandler

	locations LocationUpdater
	hub       RawPublisher
	log       *zap.Logger
}

func NewRobotHandler(locations LocationUpdater, h RawPublisher, logger *zap.Logger) *RobotHandler {
	return &RobotHandler{locations: locations, hub: h, log: logger.Named("robot_handler")}
}

func (h *RobotHandler) HandleRobotTelemetry(_ *protocol.Envelope, p *protocol.RobotTelemetry) {
	if p.RoboID == "" || p.Location == nil {
		h.log.Debug("robot_handler: telemetry without robot or location")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if _, err := h.locations.UpdateLocation(ctx, p.RoboID, store.JSONObject(p.Location)); err != nil {
		h.log.Warn("robot_handler: update location", zap.String("robo_id", p.RoboID), zap.Error(err))
	}
}

// HandleRobotEvent relays a robot-originated event to that robot's group
// in the same {event, data} frame the gateway relays.
func (h *RobotHandler) HandleRobotEvent(_ *protocol.Envelope, p *protocol.RobotEvent) {
	if p.RoboID == "" || p.Event == "" {
		h.log.Debug("robot_handler: event without robot or name")
		return
	}
	data := p.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	msg, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{p.Event, data})
	if err != nil {
		h.log.Warn("robot_handler: encode event", zap.String("robo_id", p.RoboID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	h.hub.PublishRaw(ctx, hub.RobotGroup(p.RoboID), msg)
}
