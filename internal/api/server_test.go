package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/clock"
	"github.com/VectorBarks/smart-climate-sub001/internal/diagnostics"
	"github.com/VectorBarks/smart-climate-sub001/internal/ha"
	"github.com/VectorBarks/smart-climate-sub001/internal/monitor"
	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
)

func newTestServer(t *testing.T) (*Server, *monitor.Monitor, *clock.MockClock) {
	t.Helper()

	logger := zap.NewNop()
	mock := ha.NewMockClient()
	mock.SetSensor("sensor.indoor_humidity", 45.0)
	mock.SetSensor("sensor.outdoor_humidity", 60.0)
	mock.SetSensor("sensor.indoor_temperature", 21.0)
	mock.SetSensor("sensor.outdoor_temperature", 15.0)

	source := sensors.NewSource(mock, sensors.EntityMap{
		IndoorHumidity:  "sensor.indoor_humidity",
		OutdoorHumidity: "sensor.outdoor_humidity",
		IndoorTemp:      "sensor.indoor_temperature",
		OutdoorTemp:     "sensor.outdoor_temperature",
	}, logger)
	require.NoError(t, source.Sync())

	clk := clock.NewMockClock(time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC))
	mon := monitor.NewMonitor(mock, source, nil, nil, nil,
		climate.DefaultThresholds(), monitor.Config{}, clk, logger)

	registry := diagnostics.NewRegistry()
	registry.Register("monitor", diagnostics.ProviderFunc(mon.Diagnostics))

	return NewServer(mon, registry, logger, 8090), mon, clk
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := get(t, server, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStateBeforeFirstCycle(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := get(t, server, "/api/state")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStateEndpoint(t *testing.T) {
	server, mon, _ := newTestServer(t)
	mon.RunCycle()

	w := get(t, server, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)

	var body StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Snapshot.IndoorHumidity)
	assert.Equal(t, 45.0, *body.Snapshot.IndoorHumidity)
	assert.NotNil(t, body.Triggers)
	assert.Empty(t, body.Triggers)
}

func TestHistoryEndpoint(t *testing.T) {
	server, mon, clk := newTestServer(t)

	for i := 0; i < 3; i++ {
		mon.RunCycle()
		clk.Advance(5 * time.Minute)
	}

	w := get(t, server, "/api/history?minutes=30")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []climate.BufferEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)
}

func TestHistoryRejectsBadMinutes(t *testing.T) {
	server, _, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"Not a number", "minutes=abc"},
		{"Zero", "minutes=0"},
		{"Negative", "minutes=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, server, "/api/history?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDailyEndpoint(t *testing.T) {
	server, mon, clk := newTestServer(t)

	mon.RunCycle()
	day := climate.DayKey(clk.Now())
	mon.AggregateDay(day)

	w := get(t, server, "/api/daily")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]climate.DailyAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, day)
}

func TestOffsetEndpoint(t *testing.T) {
	server, mon, _ := newTestServer(t)
	mon.RunCycle()

	w := get(t, server, "/api/offset")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "offset")
	assert.Contains(t, body, "confidence")
}

func TestDiagnosticsEndpoint(t *testing.T) {
	server, mon, _ := newTestServer(t)
	mon.RunCycle()

	w := get(t, server, "/api/diagnostics")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "monitor")
	assert.Equal(t, float64(1), body["monitor"]["cycles"])
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/state", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
