package www

import (
	"encoding/json"
	"net/http"
	"strings"

	"robofleet/apperr"
	"robofleet/hub"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	services := h.engine.Health(r.Context())
	status, code := "ok", http.StatusOK
	for _, v := range services {
		if v != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"services": services,
	})
}

type robotEventRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// apiRobotEvent relays {event, data} to robot_message_group unchanged. Only
// the shape is checked.
func (h *Handlers) apiRobotEvent(w http.ResponseWriter, r *http.Request) {
	var req robotEventRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	data, ok := objectPayload(req.Data)
	if strings.TrimSpace(req.Event) == "" || !ok {
		h.fail(w, r, apperr.Validation("Invalid payload", nil))
		return
	}
	if err := h.engine.Broadcast(r.Context(), hub.RobotMessageGroup, req.Event, data); err != nil {
		h.fail(w, r, apperr.Internal(err))
		return
	}
	h.ok(w, http.StatusOK, "Event broadcasted", nil)
}

// objectPayload accepts raw only when it is a JSON object.
func objectPayload(raw json.RawMessage) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil || obj == nil {
		return nil, false
	}
	return raw, true
}
