package www

import (
	"net/http"

	"robofleet/schedule"
	"robofleet/store"
)

func (h *Handlers) apiCreateInspection(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in schedule.InspectionInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.engine.Schedules().CreateInspection(r.Context(), scheduleID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"message":    "Inspection created successfully",
		"inspection": rec,
	})
}

func (h *Handlers) apiListInspections(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Schedules().ListInspections(r.Context(), scheduleID, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	results := res.Inspections
	if results == nil {
		results = []*store.Inspection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":              res.Total,
		"total_defected":     res.TotalDefected,
		"total_non_defected": res.TotalNonDefected,
		"next":               pageLink(r, page+1, page*res.PageSize < res.Total),
		"previous":           pageLink(r, page-1, page > 1),
		"results":            results,
	})
}

func (h *Handlers) apiGetInspection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.engine.Schedules().GetInspection(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Inspection details retrieved successfully",
		"inspection": rec,
	})
}

func (h *Handlers) apiVerifyInspection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in schedule.VerifyInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.engine.Schedules().VerifyInspection(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "Inspection human verification completed successfully.", rec)
}
