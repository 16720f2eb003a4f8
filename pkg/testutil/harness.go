package testutil

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/ha"
	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
)

// Default entity IDs seeded by SeedClimateSensors, matching Entities().
const (
	EntityIndoorHumidity  = "sensor.indoor_humidity"
	EntityOutdoorHumidity = "sensor.outdoor_humidity"
	EntityIndoorTemp      = "sensor.indoor_temperature"
	EntityOutdoorTemp     = "sensor.outdoor_temperature"
	EntityPower           = "sensor.ac_power"
	EntityACInternalTemp  = "sensor.ac_internal_temperature"
)

// TestEnv wires a mock Home Assistant server, a connected WebSocket client
// and a synced sensor source for integration tests.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv("localhost:18123", "test_token")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
type TestEnv struct {
	Server *MockHAServer
	Client *ha.Client
	Source *sensors.Source
	Logger *zap.Logger
}

// Entities returns the entity mapping the harness seeds, covering every
// sensor role including the offset engine inputs.
func Entities() sensors.EntityMap {
	return sensors.EntityMap{
		IndoorHumidity:  EntityIndoorHumidity,
		OutdoorHumidity: EntityOutdoorHumidity,
		IndoorTemp:      EntityIndoorTemp,
		OutdoorTemp:     EntityOutdoorTemp,
		Power:           EntityPower,
		ACInternalTemp:  EntityACInternalTemp,
	}
}

// NewTestEnv starts a mock server with the default climate sensors seeded,
// connects a client to it and primes a sensor source.
func NewTestEnv(addr, token string) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	server := NewMockHAServer(addr, token)
	server.SeedClimateSensors()
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}

	client := ha.NewClient(fmt.Sprintf("ws://%s/api/websocket", addr), token, logger)
	if err := client.Connect(); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	source := sensors.NewSource(client, Entities(), logger)
	if err := source.Sync(); err != nil {
		client.Disconnect()
		server.Stop()
		return nil, fmt.Errorf("failed to sync sensors: %w", err)
	}

	return &TestEnv{
		Server: server,
		Client: client,
		Source: source,
		Logger: logger,
	}, nil
}

// SeedClimateSensors sets up a comfortable-baseline reading on every
// default sensor entity. Callable again mid-test to reset.
func (s *MockHAServer) SeedClimateSensors() {
	s.SetSensor(EntityIndoorHumidity, 45, "%")
	s.SetSensor(EntityOutdoorHumidity, 60, "%")
	s.SetSensor(EntityIndoorTemp, 21.5, "°C")
	s.SetSensor(EntityOutdoorTemp, 15, "°C")
	s.SetSensor(EntityPower, 0, "W")
	s.SetSensor(EntityACInternalTemp, 21.5, "°C")
}

// Cleanup stops all components in dependency order. Always defer after
// creating the TestEnv.
func (e *TestEnv) Cleanup() {
	if e.Source != nil {
		e.Source.Close()
	}
	if e.Client != nil {
		e.Client.Disconnect()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
}

// GetServiceCalls returns all service calls made against the mock server.
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.Server.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls.
func (e *TestEnv) ClearServiceCalls() {
	e.Server.ClearServiceCalls()
}
