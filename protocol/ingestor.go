package protocol

import (
	"encoding/json"

	"go.uber.org/zap"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for inbound robot messages.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	HandleRobotTelemetry(env *Envelope, p *RobotTelemetry)
	HandleRobotEvent(env *Envelope, p *RobotEvent)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
	log     *zap.Logger
}

// NewIngestor creates an ingestor with the given handler and filter.
func NewIngestor(handler MessageHandler, filter FilterFunc, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		handler: handler,
		filter:  filter,
		log:     logger.Named("protocol"),
	}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: decode routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		ing.log.Warn("protocol: header decode error", zap.Error(err))
		return
	}

	if IsExpiredHeader(&hdr) {
		ing.log.Debug("protocol: dropping expired message", zap.String("id", hdr.ID), zap.String("type", hdr.Type))
		return
	}

	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope decode
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ing.log.Warn("protocol: envelope decode error", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeRobotTelemetry:
		decodeAndCall(ing, ing.handler.HandleRobotTelemetry, &env)
	case TypeRobotEvent:
		decodeAndCall(ing, ing.handler.HandleRobotEvent, &env)
	default:
		ing.log.Warn("protocol: unknown message type", zap.String("type", env.Type))
	}
}

// decodeAndCall unmarshals the payload and calls the handler method.
func decodeAndCall[T any](ing *Ingestor, fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ing.log.Warn("protocol: payload decode error", zap.String("type", env.Type), zap.Error(err))
		return
	}
	fn(env, &p)
}
