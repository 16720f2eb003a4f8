package ha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockHAServer creates a mock Home Assistant WebSocket server
func mockHAServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("Failed to upgrade connection: %v", err)
		}
		defer conn.Close()

		handler(conn)
	}))
}

// standardAuthFlow handles the standard authentication flow
func standardAuthFlow(t *testing.T, conn *websocket.Conn, token string) {
	// Send auth_required
	err := conn.WriteJSON(Message{Type: "auth_required"})
	require.NoError(t, err)

	// Receive auth message
	var authMsg AuthMessage
	err = conn.ReadJSON(&authMsg)
	require.NoError(t, err)
	assert.Equal(t, "auth", authMsg.Type)
	assert.Equal(t, token, authMsg.AccessToken)

	// Send auth_ok
	err = conn.WriteJSON(Message{Type: "auth_ok"})
	require.NoError(t, err)
}

// ackSubscription handles the subscribe_events request sent right after auth
func ackSubscription(conn *websocket.Conn) {
	var subMsg SubscribeEventsRequest
	conn.ReadJSON(&subMsg)
	success := true
	conn.WriteJSON(Message{
		ID:      subMsg.ID,
		Type:    "result",
		Success: &success,
	})
}

func TestClient_Connect(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	t.Run("successful connection", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)
			ackSubscription(conn)

			// Keep connection open
			time.Sleep(100 * time.Millisecond)
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, token, logger)

		err := client.Connect()
		assert.NoError(t, err)
		assert.True(t, client.IsConnected())

		client.Disconnect()
	})

	t.Run("invalid token", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			conn.WriteJSON(Message{Type: "auth_required"})

			var authMsg AuthMessage
			conn.ReadJSON(&authMsg)

			conn.WriteJSON(Message{Type: "auth_invalid"})
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, "wrong_token", logger)

		err := client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
		assert.False(t, client.IsConnected())
	})

	t.Run("already connected", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)
			ackSubscription(conn)

			time.Sleep(100 * time.Millisecond)
		})
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http")
		client := NewClient(url, token, logger)

		err := client.Connect()
		require.NoError(t, err)

		err = client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already connected")

		client.Disconnect()
	})
}

func TestClient_GetAllStates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscription(conn)

		// Handle get_states request
		var statesReq GetStatesRequest
		conn.ReadJSON(&statesReq)

		states := []*State{
			{
				EntityID: "sensor.indoor_humidity",
				State:    "52.5",
				Attributes: map[string]interface{}{
					"unit_of_measurement": "%",
				},
			},
			{
				EntityID: "sensor.indoor_temperature",
				State:    "21.8",
				Attributes: map[string]interface{}{
					"unit_of_measurement": "°C",
				},
			},
		}

		success := true
		statesJSON, _ := json.Marshal(states)
		conn.WriteJSON(Message{
			ID:      statesReq.ID,
			Type:    "result",
			Success: &success,
			Result:  statesJSON,
		})

		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	states, err := client.GetAllStates()
	assert.NoError(t, err)
	assert.Len(t, states, 2)
	assert.Equal(t, "sensor.indoor_humidity", states[0].EntityID)
	assert.Equal(t, "52.5", states[0].State)
}

func TestClient_GetState(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscription(conn)

		var statesReq GetStatesRequest
		conn.ReadJSON(&statesReq)

		states := []*State{
			{
				EntityID: "sensor.indoor_humidity",
				State:    "47.0",
			},
		}

		success := true
		statesJSON, _ := json.Marshal(states)
		conn.WriteJSON(Message{
			ID:      statesReq.ID,
			Type:    "result",
			Success: &success,
			Result:  statesJSON,
		})

		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	state, err := client.GetState("sensor.indoor_humidity")
	assert.NoError(t, err)
	assert.Equal(t, "sensor.indoor_humidity", state.EntityID)
	assert.Equal(t, "47.0", state.State)

	_, err = client.GetState("sensor.nonexistent")
	assert.Error(t, err)
}

func TestClient_GetConfig(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscription(conn)

		var configReq GetConfigRequest
		conn.ReadJSON(&configReq)
		assert.Equal(t, "get_config", configReq.Type)

		success := true
		configJSON, _ := json.Marshal(InstanceConfig{
			Latitude:  52.52,
			Longitude: 13.405,
			TimeZone:  "Europe/Berlin",
			Version:   "2024.6.1",
		})
		conn.WriteJSON(Message{
			ID:      configReq.ID,
			Type:    "result",
			Success: &success,
			Result:  configJSON,
		})

		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	config, err := client.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, 52.52, config.Latitude)
	assert.Equal(t, 13.405, config.Longitude)
	assert.Equal(t, "Europe/Berlin", config.TimeZone)
}

func TestClient_CallService(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)
		ackSubscription(conn)

		var serviceReq CallServiceRequest
		conn.ReadJSON(&serviceReq)

		assert.Equal(t, "input_number", serviceReq.Domain)
		assert.Equal(t, "set_value", serviceReq.Service)
		assert.Equal(t, "input_number.climate_offset", serviceReq.ServiceData["entity_id"])

		success := true
		conn.WriteJSON(Message{
			ID:      serviceReq.ID,
			Type:    "result",
			Success: &success,
		})

		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, token, logger)

	err := client.Connect()
	require.NoError(t, err)
	defer client.Disconnect()

	err = client.CallService("input_number", "set_value", map[string]interface{}{
		"entity_id": "input_number.climate_offset",
		"value":     1.5,
	})
	assert.NoError(t, err)
}

func TestClient_SetInputHelpers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	testCases := []struct {
		name    string
		call    func(c *Client) error
		domain  string
		service string
	}{
		{
			"input boolean on",
			func(c *Client) error { return c.SetInputBoolean("comfort_zone", true) },
			"input_boolean", "turn_on",
		},
		{
			"input boolean off",
			func(c *Client) error { return c.SetInputBoolean("comfort_zone", false) },
			"input_boolean", "turn_off",
		},
		{
			"input number",
			func(c *Client) error { return c.SetInputNumber("climate_offset", 1.5) },
			"input_number", "set_value",
		},
		{
			"input text",
			func(c *Client) error { return c.SetInputText("climate_status", "humidity rising") },
			"input_text", "set_value",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mockHAServer(t, func(conn *websocket.Conn) {
				standardAuthFlow(t, conn, token)
				ackSubscription(conn)

				var serviceReq CallServiceRequest
				conn.ReadJSON(&serviceReq)

				assert.Equal(t, tc.domain, serviceReq.Domain)
				assert.Equal(t, tc.service, serviceReq.Service)

				success := true
				conn.WriteJSON(Message{
					ID:      serviceReq.ID,
					Type:    "result",
					Success: &success,
				})

				time.Sleep(50 * time.Millisecond)
			})
			defer server.Close()

			url := "ws" + strings.TrimPrefix(server.URL, "http")
			client := NewClient(url, token, logger)

			err := client.Connect()
			require.NoError(t, err)
			defer client.Disconnect()

			assert.NoError(t, tc.call(client))
		})
	}
}

func TestStateNumeric(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  *float64
	}{
		{"Plain number", "47.5", floatPtr(47.5)},
		{"Integer", "21", floatPtr(21.0)},
		{"Negative", "-3.2", floatPtr(-3.2)},
		{"Unavailable", StateUnavailable, nil},
		{"Unknown", StateUnknown, nil},
		{"Empty", "", nil},
		{"Non numeric", "on", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{EntityID: "sensor.test", State: tt.state}
			got := s.Numeric()
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}

	var nilState *State
	assert.Nil(t, nilState.Numeric())
	assert.False(t, nilState.Available())
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()

	t.Run("connection", func(t *testing.T) {
		assert.False(t, mock.IsConnected())

		err := mock.Connect()
		assert.NoError(t, err)
		assert.True(t, mock.IsConnected())

		err = mock.Connect()
		assert.Error(t, err)

		err = mock.Disconnect()
		assert.NoError(t, err)
		assert.False(t, mock.IsConnected())
	})

	t.Run("state management", func(t *testing.T) {
		mock.SetSensor("sensor.indoor_humidity", 47.5)

		state, err := mock.GetState("sensor.indoor_humidity")
		assert.NoError(t, err)
		require.NotNil(t, state.Numeric())
		assert.Equal(t, 47.5, *state.Numeric())

		mock.SetUnavailable("sensor.indoor_humidity")
		state, err = mock.GetState("sensor.indoor_humidity")
		assert.NoError(t, err)
		assert.False(t, state.Available())

		_, err = mock.GetState("sensor.nonexistent")
		assert.Error(t, err)
	})

	t.Run("instance config", func(t *testing.T) {
		mock.SetInstanceConfig(InstanceConfig{Latitude: 48.2, Longitude: 16.37})

		config, err := mock.GetConfig()
		require.NoError(t, err)
		assert.Equal(t, 48.2, config.Latitude)
		assert.Equal(t, 16.37, config.Longitude)
	})

	t.Run("service calls", func(t *testing.T) {
		mock.ClearServiceCalls()

		err := mock.SetInputNumber("climate_offset", 1.5)
		assert.NoError(t, err)

		calls := mock.GetServiceCalls()
		assert.Len(t, calls, 1)
		assert.Equal(t, "input_number", calls[0].Domain)
		assert.Equal(t, "set_value", calls[0].Service)
	})

	t.Run("subscriptions", func(t *testing.T) {
		callCount := 0
		handler := func(entityID string, oldState, newState *State) {
			callCount++
			assert.Equal(t, "sensor.indoor_humidity", entityID)
			assert.Equal(t, "51.0", newState.State)
		}

		sub, err := mock.SubscribeStateChanges("sensor.indoor_humidity", handler)
		assert.NoError(t, err)

		mock.SimulateStateChange("sensor.indoor_humidity", "51.0")
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, 1, callCount)

		// After unsubscribing the handler no longer fires
		require.NoError(t, sub.Unsubscribe())
		mock.SimulateStateChange("sensor.indoor_humidity", "51.0")
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, 1, callCount)
	})
}
