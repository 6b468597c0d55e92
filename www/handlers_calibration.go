package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"robofleet/apperr"
	"robofleet/store"
)

func (h *Handlers) apiCreateProfile(w http.ResponseWriter, r *http.Request) {
	robotID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.engine.Fleet().CreateProfile(r.Context(), robotID, in.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "Profile created successfully", c)
}

func (h *Handlers) apiGetCalibration(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.engine.Fleet().Calibration(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Calibration fetched successfully", c)
}

func (h *Handlers) apiSetCalibrationStatus(w http.ResponseWriter, r *http.Request) {
	id, on, ok := h.boolBody(w, r, "calibration_status")
	if !ok {
		return
	}
	c, err := h.engine.Fleet().SetCalibrationStatus(r.Context(), id, on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Calibration status updated", c)
}

func (h *Handlers) apiActivateHand(w http.ResponseWriter, r *http.Request) {
	h.setHand(w, r, true)
}

func (h *Handlers) apiDeactivateHand(w http.ResponseWriter, r *http.Request) {
	h.setHand(w, r, false)
}

func (h *Handlers) setHand(w http.ResponseWriter, r *http.Request, on bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hand := chi.URLParam(r, "hand")
	c, err := h.engine.Fleet().SetHandActive(r.Context(), id, hand, on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := hand + " hand deactivated"
	if on {
		msg = hand + " hand activated"
	}
	h.ok(w, http.StatusOK, msg, c)
}

type pointRequest struct {
	IsActive *bool            `json:"is_active"`
	Data     store.JSONObject `json:"data"`
}

func (h *Handlers) apiSetPoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in pointRequest
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, apperr.Validation("Validation failed", map[string]string{"data": store.ErrNotObject.Error()}))
		return
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c, err := h.engine.Fleet().SetPoint(r.Context(), id, chi.URLParam(r, "hand"), chi.URLParam(r, "point"), active, in.Data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Calibration point updated", c)
}

func (h *Handlers) apiClearPoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.engine.Fleet().ClearPoint(r.Context(), id, chi.URLParam(r, "hand"), chi.URLParam(r, "point"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Calibration point cleared", c)
}
