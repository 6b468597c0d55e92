package www

import (
	"net/http"

	"robofleet/apperr"
	"robofleet/fleetstate"
)

func (h *Handlers) apiCreateRobot(w http.ResponseWriter, r *http.Request) {
	var in fleetstate.RobotInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	robot, err := h.engine.Fleet().CreateRobot(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "Robot created successfully", robot)
}

func (h *Handlers) apiGetRobot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	robot, err := h.engine.Fleet().Robot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Robot fetched successfully", robot)
}

func (h *Handlers) apiDeactivateRobot(w http.ResponseWriter, r *http.Request) {
	h.setRobotActive(w, r, false, "Robot deactivated")
}

func (h *Handlers) apiActivateRobot(w http.ResponseWriter, r *http.Request) {
	h.setRobotActive(w, r, true, "Robot activated")
}

func (h *Handlers) setRobotActive(w http.ResponseWriter, r *http.Request, on bool, msg string) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.engine.Fleet().SetActive(r.Context(), id, on); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, msg, nil)
}

func (h *Handlers) apiRobotLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	loc, err := h.engine.Fleet().Location(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Robot location fetched", loc)
}

// --- Per-robot flags ---

type emergencyData struct {
	RobotID   int64  `json:"robot_id"`
	RoboID    string `json:"robo_id"`
	Emergency bool   `json:"emergency"`
}

type speakData struct {
	RobotID    int64  `json:"robot_id"`
	RoboID     string `json:"robo_id"`
	SpeakStart bool   `json:"speak_start"`
}

func (h *Handlers) apiGetEmergency(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flags(w, r)
	if !ok {
		return
	}
	h.ok(w, http.StatusOK, "Emergency status fetched", emergencyData{f.RobotID, f.RoboID, f.Emergency})
}

func (h *Handlers) apiGetSpeakStart(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flags(w, r)
	if !ok {
		return
	}
	h.ok(w, http.StatusOK, "Speak status fetched successfully", speakData{f.RobotID, f.RoboID, f.SpeakStart})
}

func (h *Handlers) flags(w http.ResponseWriter, r *http.Request) (*fleetstate.Flags, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	f, err := h.engine.Fleet().Flags(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return f, true
}

func (h *Handlers) apiSetEmergency(w http.ResponseWriter, r *http.Request) {
	id, on, ok := h.boolBody(w, r, "emergency")
	if !ok {
		return
	}
	robot, err := h.engine.Fleet().SetEmergency(r.Context(), id, on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Emergency status updated", emergencyData{robot.ID, robot.RoboID, robot.Emergency})
}

func (h *Handlers) apiSetSpeakStart(w http.ResponseWriter, r *http.Request) {
	id, on, ok := h.boolBody(w, r, "speak_start")
	if !ok {
		return
	}
	robot, err := h.engine.Fleet().SetSpeakStart(r.Context(), id, on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Speak stopped successfully"
	if on {
		msg = "Speak started successfully"
	}
	h.ok(w, http.StatusOK, msg, speakData{robot.ID, robot.RoboID, robot.SpeakStart})
}

func (h *Handlers) apiGetEmergencyStop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	es, err := h.engine.Fleet().EmergencyStop(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Emergency stop status fetched", es)
}

func (h *Handlers) apiSetEmergencyStop(w http.ResponseWriter, r *http.Request) {
	id, on, ok := h.boolBody(w, r, "is_emergency_stop")
	if !ok {
		return
	}
	es, err := h.engine.Fleet().SetEmergencyStop(r.Context(), id, on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Emergency stop status updated", es)
}

// boolBody reads the path id and a required boolean field from the body.
func (h *Handlers) boolBody(w http.ResponseWriter, r *http.Request, field string) (int64, bool, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return 0, false, false
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return 0, false, false
	}
	v, ok := body[field].(bool)
	if !ok {
		h.fail(w, r, apperr.Validation(field+" is required", map[string]string{field: "Must be a valid boolean."}))
		return 0, false, false
	}
	return id, v, true
}
