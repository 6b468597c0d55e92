package www

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"robofleet/config"
	"robofleet/hub"
)

func TestCreateScheduleComputesEndTime(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
		"location":       "Bay-1",
		"scheduled_date": "2025-01-01",
		"scheduled_time": "10:00",
	})
	require.Equal(t, http.StatusCreated, resp.Code, "%v", resp.Body)
	assert.Equal(t, true, resp.Body["success"])
	assert.Equal(t, "Schedule created successfully", resp.Body["message"])
	d := resp.data(t)
	assert.Equal(t, "10:00:00", d["scheduled_time"])
	assert.Equal(t, "10:03:00", d["end_time"])
	assert.Equal(t, "scheduled", d["status"])
	assert.Equal(t, "ABC123", d["robo_id"])

	overlap := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
		"location":       "Bay-1",
		"scheduled_date": "2025-01-01",
		"scheduled_time": "10:02",
	})
	assert.Equal(t, http.StatusBadRequest, overlap.Code)
	assert.Equal(t, false, overlap.Body["success"])
	assert.Equal(t, "conflict", overlap.Body["error"])
	assert.Equal(t, float64(400), overlap.Body["status"])
}

func TestCreateScheduleValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{"location": "Bay-1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation", resp.Body["error"])
	fields, ok := resp.Body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "scheduled_date")
	assert.Contains(t, fields, "scheduled_time")

	missing := env.do(t, http.MethodPost, "/api/robots/999/schedule", map[string]any{
		"location": "Bay-1", "scheduled_date": "2025-01-01", "scheduled_time": "10:00",
	})
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "Robot not found", missing.Body["message"])
	assert.Equal(t, "not_found", missing.Body["error"])

	bad := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
		"location": "Bay-1", "scheduled_date": "2025-01-01", "scheduled_time": "23:58",
	})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestInactiveRobotCannotBook(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")

	resp := env.do(t, http.MethodDelete, fmt.Sprintf("/api/robots/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Robot deactivated", resp.Body["message"])

	book := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule/create-immediately", id), map[string]any{"location": "Bay"})
	assert.Equal(t, http.StatusNotFound, book.Code)

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/robots/%d/activate", id), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	book = env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule/create-immediately", id), map[string]any{"location": "Bay"})
	require.Equal(t, http.StatusCreated, book.Code)
	assert.Equal(t, "processing", book.data(t)["status"])
	assert.Equal(t, "09:00:00", book.data(t)["scheduled_time"])
}

func TestListSchedulesFlattensStatusCounts(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	for i := 0; i < 12; i++ {
		resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
			"location":       "Bay-1",
			"scheduled_date": "2025-01-02",
			"scheduled_time": fmt.Sprintf("%02d:00", i+1),
		})
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule/create-immediately", id), map[string]any{"location": "Dock"})
	require.Equal(t, http.StatusCreated, resp.Code)

	list := env.do(t, http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, float64(13), list.Body["count"])
	assert.Equal(t, float64(12), list.Body["scheduled"])
	assert.Equal(t, float64(1), list.Body["processing"])
	assert.Nil(t, list.Body["previous"])
	next, ok := list.Body["next"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(next, "/api/schedule?page=2"), next)
	assert.Len(t, list.Body["results"], 10)

	page2 := env.do(t, http.MethodGet, "/api/schedule?page=2", nil)
	require.Equal(t, http.StatusOK, page2.Code)
	assert.Len(t, page2.Body["results"], 3)
	assert.Nil(t, page2.Body["next"])
	prev, ok := page2.Body["previous"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(prev, "/api/schedule"), prev)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/schedule?page=9", nil).Code)
}

func TestUpdateAndCancelSchedule(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	created := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
		"location": "Bay-1", "scheduled_date": "2025-01-05", "scheduled_time": "12:00",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	sid := int64(created.data(t)["id"].(float64))

	upd := env.do(t, http.MethodPut, fmt.Sprintf("/api/schedule/%d", sid), map[string]any{"location": "Bay-2"})
	require.Equal(t, http.StatusOK, upd.Code, "%v", upd.Body)
	d := upd.data(t)
	assert.Equal(t, "Bay-2", d["location"])
	assert.Equal(t, "2025-01-01", d["scheduled_date"])
	assert.Equal(t, "09:00:00", d["scheduled_time"])
	assert.Equal(t, "processing", d["status"])

	del := env.do(t, http.MethodDelete, fmt.Sprintf("/api/schedule/%d", sid), nil)
	require.Equal(t, http.StatusOK, del.Code)
	assert.Equal(t, "Schedule deleted successfully", del.Body["message"])

	list := env.do(t, http.MethodGet, "/api/schedule", nil)
	assert.Equal(t, float64(0), list.Body["count"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/schedule/9999", nil).Code)
}

func TestFilterByDateRange(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	for _, date := range []string{"2025-02-01", "2025-02-10", "2025-03-01"} {
		resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule", id), map[string]any{
			"location": "Bay", "scheduled_date": date, "scheduled_time": "08:00",
		})
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	resp := env.do(t, http.MethodPost, "/api/schedule/filter-by-date-range", map[string]any{
		"start_date": "2025-02-01", "end_date": "2025-02-28",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(2), resp.Body["count"])

	bad := env.do(t, http.MethodPost, "/api/schedule/filter-by-date-range", map[string]any{
		"start_date": "2025-03-01", "end_date": "2025-02-01",
	})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestInspectionFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	created := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/schedule/create-immediately", id), map[string]any{"location": "Bay"})
	require.Equal(t, http.StatusCreated, created.Code)
	sid := int64(created.data(t)["id"].(float64))

	sub := env.engine.Hub().Join(hub.ScheduleGroup(sid))
	defer env.engine.Hub().Leave(sub)

	ins := env.do(t, http.MethodPost, fmt.Sprintf("/api/schedule/%d/inspections", sid), map[string]any{
		"rim_id": "RIM-1", "is_defect": true, "description": "crack",
	})
	require.Equal(t, http.StatusCreated, ins.Code, "%v", ins.Body)
	rec, ok := ins.Body["inspection"].(map[string]any)
	require.True(t, ok)
	iid := int64(rec["id"].(float64))

	select {
	case msg := <-sub.C():
		assert.Contains(t, string(msg), `"event":"inspection_created"`)
		assert.Contains(t, string(msg), `"rim_id":"RIM-1"`)
	case <-time.After(time.Second):
		t.Fatal("inspection_created not broadcast")
	}

	env.do(t, http.MethodPost, fmt.Sprintf("/api/schedule/%d/inspections", sid), map[string]any{"rim_id": "RIM-2"})
	list := env.do(t, http.MethodGet, fmt.Sprintf("/api/schedule/%d/inspections?page_size=1", sid), nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, float64(2), list.Body["count"])
	assert.Equal(t, float64(1), list.Body["total_defected"])
	assert.Equal(t, float64(1), list.Body["total_non_defected"])
	assert.Len(t, list.Body["results"], 1)
	assert.NotNil(t, list.Body["next"])

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/inspection/%d", iid), nil)
	require.Equal(t, http.StatusOK, got.Code)

	v := env.do(t, http.MethodPatch, fmt.Sprintf("/api/inspection/%d/verify", iid), map[string]any{"false_detected": false})
	require.Equal(t, http.StatusOK, v.Code, "%v", v.Body)
	assert.Equal(t, true, v.data(t)["is_approved"])
	assert.Equal(t, true, v.data(t)["is_human_verified"])

	again := env.do(t, http.MethodPatch, fmt.Sprintf("/api/inspection/%d/verify", iid), map[string]any{"false_detected": false})
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "Inspection has already been human verified.", again.Body["message"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/inspection/9999", nil).Code)
}

func TestRobotFlags(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	sub := env.engine.Hub().Join(hub.RobotGroup("ABC123"))
	defer env.engine.Hub().Leave(sub)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/emergency", id), map[string]any{"emergency": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, resp.data(t)["emergency"])
	select {
	case msg := <-sub.C():
		assert.Contains(t, string(msg), `"event":"emergency_update"`)
	case <-time.After(time.Second):
		t.Fatal("emergency_update not broadcast")
	}

	get := env.do(t, http.MethodGet, fmt.Sprintf("/api/robots/%d/emergency", id), nil)
	assert.Equal(t, true, get.data(t)["emergency"])

	bad := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/speak_start", id), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	speak := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/speak_start", id), map[string]any{"speak_start": true})
	require.Equal(t, http.StatusOK, speak.Code)
	assert.Equal(t, "Speak started successfully", speak.Body["message"])
	assert.Equal(t, true, env.do(t, http.MethodGet, fmt.Sprintf("/api/robots/%d/speak_start", id), nil).data(t)["speak_start"])

	stop := env.do(t, http.MethodGet, fmt.Sprintf("/api/robots/%d/emergency-stop", id), nil)
	require.Equal(t, http.StatusOK, stop.Code)
	assert.Equal(t, false, stop.data(t)["is_emergency_stop"])
	stop = env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/emergency-stop", id), map[string]any{"is_emergency_stop": true})
	require.Equal(t, http.StatusOK, stop.Code)
	assert.Equal(t, true, stop.data(t)["is_emergency_stop"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/robots/999/emergency", nil).Code)
}

func TestCalibrationEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createRobot(t, "ABC123")
	prof := env.do(t, http.MethodPost, fmt.Sprintf("/api/robots/%d/profiles", id), map[string]any{"name": "default"})
	require.Equal(t, http.StatusCreated, prof.Code, "%v", prof.Body)
	pid := int64(prof.data(t)["profile"].(map[string]any)["id"].(float64))
	base := fmt.Sprintf("/api/profiles/%d", pid)

	off := env.do(t, http.MethodPost, base+"/hands/left/points/one", map[string]any{"data": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusBadRequest, off.Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/calibration-status", map[string]any{"calibration_status": true}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/hands/left/activate", nil).Code)

	set := env.do(t, http.MethodPost, base+"/hands/left/points/one", map[string]any{"data": map[string]any{"x": 1.5, "y": 2}})
	require.Equal(t, http.StatusOK, set.Code, "%v", set.Body)

	arr := env.do(t, http.MethodPost, base+"/hands/left/points/two", map[string]any{"data": []int{1, 2}})
	assert.Equal(t, http.StatusBadRequest, arr.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, base+"/hands/middle/activate", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/hands/left/points/one", nil).Code)

	cal := env.do(t, http.MethodGet, base+"/calibration", nil)
	require.Equal(t, http.StatusOK, cal.Code)
	assert.Equal(t, true, cal.data(t)["profile"].(map[string]any)["calibration_status"])
}

func TestRobotEventRelay(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.engine.Hub().Join(hub.RobotMessageGroup)
	defer env.engine.Hub().Leave(sub)

	bad := env.do(t, http.MethodPost, "/api/robots/event", map[string]any{"event": "arrived", "data": "nope"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "Invalid payload", bad.Body["message"])
	bad = env.do(t, http.MethodPost, "/api/robots/event", map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	ok := env.do(t, http.MethodPost, "/api/robots/event", map[string]any{"event": "arrived", "data": map[string]any{"dock": 3}})
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "Event broadcasted", ok.Body["message"])
	select {
	case msg := <-sub.C():
		assert.JSONEq(t, `{"event":"arrived","data":{"dock":3}}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("relay frame not delivered")
	}
}

func TestAPIKeyGuardsMutations(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	env := newTestEnv(t, func(c *config.Config) { c.Web.APIKeyHash = string(hash) })

	resp := env.do(t, http.MethodPost, "/api/robots", map[string]any{"robo_id": "ABC123"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", resp.Body["error"])

	resp = env.do(t, http.MethodPost, "/api/robots", map[string]any{"robo_id": "ABC123"}, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/robots", map[string]any{"robo_id": "ABC123"}, "Authorization", "Api-Key s3cret")
	assert.Equal(t, http.StatusCreated, resp.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/schedule", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/robots/event",
		map[string]any{"event": "e", "data": map[string]any{}}).Code)
}

func TestDuplicateRobotIsConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createRobot(t, "ABC123")
	resp := env.do(t, http.MethodPost, "/api/robots", map[string]any{"robo_id": "ABC123"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "conflict", resp.Body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	health := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, "ok", health.Body["status"])

	require.NoError(t, env.engine.Broadcast(context.Background(), hub.EmergencyStopGroup, "emergency_updated", map[string]any{}))
	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `robofleet_hub_published_total{event="emergency_updated"} 1`)
}
