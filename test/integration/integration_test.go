// Package integration exercises the system against a mock Home Assistant
// WebSocket server: real client, real subscriptions, real service calls.
package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
	"github.com/VectorBarks/smart-climate-sub001/pkg/testutil"
)

const testToken = "test_token_12345"

func newEnv(t *testing.T, addr string) *testutil.TestEnv {
	t.Helper()
	env, err := testutil.NewTestEnv(addr, testToken)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)
	return env
}

func TestConnectionAndSync(t *testing.T) {
	env := newEnv(t, "localhost:18121")

	assert.True(t, env.Client.IsConnected())

	humidity, ok := env.Source.Value(sensors.QtyIndoorHumidity)
	require.True(t, ok)
	assert.Equal(t, 45.0, humidity)

	reading := env.Source.Current()
	require.NotNil(t, reading.IndoorTemp)
	assert.Equal(t, 21.5, *reading.IndoorTemp)
	require.NotNil(t, reading.OutdoorHumidity)
	assert.Equal(t, 60.0, *reading.OutdoorHumidity)
}

func TestStateChangePropagation(t *testing.T) {
	env := newEnv(t, "localhost:18122")

	env.Server.SetSensor(testutil.EntityIndoorHumidity, 52.5, "%")

	require.Eventually(t, func() bool {
		v, ok := env.Source.Value(sensors.QtyIndoorHumidity)
		return ok && v == 52.5
	}, 2*time.Second, 20*time.Millisecond, "state change should reach the sensor cache")
}

func TestSensorBecomesUnavailable(t *testing.T) {
	env := newEnv(t, "localhost:18123")

	env.Server.SetSensorUnavailable(testutil.EntityOutdoorTemp)

	require.Eventually(t, func() bool {
		_, ok := env.Source.Value(sensors.QtyOutdoorTemp)
		return !ok
	}, 2*time.Second, 20*time.Millisecond, "unavailable sensor should drop out of the cache")

	// The other sensors are untouched.
	_, ok := env.Source.Value(sensors.QtyIndoorTemp)
	assert.True(t, ok)
}

func TestInstanceConfigCoordinates(t *testing.T) {
	env := newEnv(t, "localhost:18124")

	cfg, err := env.Client.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, 52.52, cfg.Latitude)
	assert.Equal(t, 13.405, cfg.Longitude)
	assert.NotEmpty(t, cfg.TimeZone)
}

func TestServiceCallRecording(t *testing.T) {
	env := newEnv(t, "localhost:18125")

	err := env.Client.CallService("notify", "mobile_app_test", map[string]interface{}{
		"title":   "Smart Climate",
		"message": "hello",
	})
	require.NoError(t, err)

	calls := testutil.Notifications(env.GetServiceCalls())
	require.Len(t, calls, 1)
	assert.Equal(t, "mobile_app_test", calls[0].Service)
	assert.Equal(t, "hello", calls[0].ServiceData["message"])
}
