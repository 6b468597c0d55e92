package www

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"robofleet/config"
	"robofleet/engine"
	"robofleet/hub"
	"robofleet/metrics"
	"robofleet/store"
)

type testEnv struct {
	srv    *httptest.Server
	engine *engine.Engine
	stop   func()
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Schedule.Timezone = "UTC"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "www.db")
	cfg.Web.PingInterval = time.Second
	if mutate != nil {
		mutate(cfg)
	}
	db, err := store.Open(&cfg.Database)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Hub:       hub.New(cfg.Web.SendBuffer, zap.NewNop(), m),
		Metrics:   m,
		Logger:    zap.NewNop(),
	})
	eng.Schedules().SetClock(func() time.Time {
		return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	})
	handler, stop := NewRouter(eng, reg, zap.NewNop())
	srv := httptest.NewServer(handler)
	env := &testEnv{srv: srv, engine: eng, stop: stop}
	t.Cleanup(func() {
		stop()
		srv.Close()
		db.Close()
	})
	return env
}

type apiResponse struct {
	Code int
	Body map[string]any
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) apiResponse {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := apiResponse{Code: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.Body))
	}
	return out
}

func (r apiResponse) data(t *testing.T) map[string]any {
	t.Helper()
	d, ok := r.Body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", r.Body)
	return d
}

// createRobot registers roboID and returns its numeric id.
func (e *testEnv) createRobot(t *testing.T, roboID string) int64 {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/robots", map[string]any{"robo_id": roboID, "name": roboID})
	require.Equal(t, http.StatusCreated, resp.Code, "%v", resp.Body)
	return int64(resp.data(t)["id"].(float64))
}
