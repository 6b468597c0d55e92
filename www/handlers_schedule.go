package www

import (
	"net/http"

	"robofleet/schedule"
	"robofleet/store"
)

func (h *Handlers) apiCreateSchedule(w http.ResponseWriter, r *http.Request) {
	robotID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in schedule.CreateInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.engine.Schedules().Create(r.Context(), robotID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "Schedule created successfully", s)
}

func (h *Handlers) apiCreateScheduleImmediately(w http.ResponseWriter, r *http.Request) {
	robotID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in struct {
		Location string `json:"location"`
	}
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.engine.Schedules().CreateImmediately(r.Context(), robotID, in.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "Schedule created and started immediately", s)
}

func (h *Handlers) apiUpdateScheduleImmediately(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in struct {
		Location *string `json:"location"`
	}
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.engine.Schedules().UpdateImmediately(r.Context(), id, in.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Schedule updated with current date/time and started", s)
}

func (h *Handlers) apiCancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.engine.Schedules().Cancel(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Schedule deleted successfully", nil)
}

// apiListSchedules returns count, the per-status totals flattened into the
// top level, next, previous and results.
func (h *Handlers) apiListSchedules(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.engine.Schedules().List(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body := make(map[string]any, len(p.StatusCounts)+4)
	for status, n := range p.StatusCounts {
		body[status] = n
	}
	body["count"] = p.Count
	body["next"] = pageLink(r, page+1, p.HasNext)
	body["previous"] = pageLink(r, page-1, p.HasPrevious)
	results := p.Results
	if results == nil {
		results = []*store.Schedule{}
	}
	body["results"] = results
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) apiFilterSchedulesByDate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.engine.Schedules().ListByDateRange(r.Context(), in.StartDate, in.EndDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*store.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Schedules retrieved successfully",
		"count":     len(list),
		"schedules": list,
	})
}
