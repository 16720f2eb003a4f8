// Package testutil provides a mock Home Assistant WebSocket server and a
// test harness for integration tests: sensor entities can be seeded and
// mutated, and every service call the system makes is recorded for
// verification.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper pairs a connection with its write mutex.
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MockHAServer simulates the Home Assistant WebSocket API: auth handshake,
// get_states, get_config, call_service and state_changed event broadcast.
type MockHAServer struct {
	server       *http.Server
	addr         string
	token        string
	states       map[string]*EntityState
	statesMu     sync.RWMutex
	connections  []*connWrapper
	connsMu      sync.Mutex
	eventDelay   time.Duration
	serviceCalls []ServiceCall
	callsMu      sync.Mutex

	// Coordinates returned by get_config.
	Latitude  float64
	Longitude float64
}

// EntityState is the wire shape of a Home Assistant entity state.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Message is a WebSocket API message.
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Event is a Home Assistant event envelope.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent is the payload of a state_changed event.
type StateChangedEvent struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

type callServiceRequest struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

type idRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// NewMockHAServer creates a mock server listening on addr that accepts the
// given token. Coordinates default to Berlin; override the exported fields
// before connecting clients if a scenario needs others.
func NewMockHAServer(addr, token string) *MockHAServer {
	return &MockHAServer{
		addr:       addr,
		token:      token,
		states:     make(map[string]*EntityState),
		eventDelay: 10 * time.Millisecond,
		Latitude:   52.52,
		Longitude:  13.405,
	}
}

// SetEventDelay sets the simulated network latency before event broadcast.
func (s *MockHAServer) SetEventDelay(delay time.Duration) {
	s.eventDelay = delay
}

// Start begins serving the WebSocket endpoint.
func (s *MockHAServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("mock HA server error: %v", err)
		}
	}()

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop closes all connections and the listener.
func (s *MockHAServer) Stop() error {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// SetState sets an entity state and broadcasts the change to all clients.
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	oldState := s.states[entityID]

	now := time.Now()
	newState := &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	s.states[entityID] = newState
	s.statesMu.Unlock()

	if s.eventDelay > 0 {
		time.Sleep(s.eventDelay)
	}
	s.broadcastStateChange(entityID, oldState, newState)
}

// SetSensor sets a numeric sensor reading with a unit attribute.
func (s *MockHAServer) SetSensor(entityID string, value float64, unit string) {
	s.SetState(entityID, strconv.FormatFloat(value, 'f', -1, 64), map[string]interface{}{
		"unit_of_measurement": unit,
	})
}

// SetSensorUnavailable marks a sensor as unavailable.
func (s *MockHAServer) SetSensorUnavailable(entityID string) {
	s.SetState(entityID, "unavailable", nil)
}

// GetState returns the current state of an entity, nil if unset.
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w.conn == conn {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.writeJSON(Message{Type: "auth_required"})

	var auth authMessage
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.AccessToken != s.token {
		wrapper.writeJSON(Message{Type: "auth_invalid"})
		return
	}
	wrapper.writeJSON(Message{Type: "auth_ok"})

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var baseMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			continue
		}

		switch baseMsg.Type {
		case "subscribe_events":
			s.handleAck(wrapper, msg)
		case "get_states":
			s.handleGetStates(wrapper, msg)
		case "get_config":
			s.handleGetConfig(wrapper, msg)
		case "call_service":
			s.handleCallService(wrapper, msg)
		}
	}
}

func (w *connWrapper) writeJSON(v interface{}) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.WriteJSON(v)
}

func (s *MockHAServer) handleAck(wrapper *connWrapper, msg json.RawMessage) {
	var req idRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}
	success := true
	wrapper.writeJSON(Message{ID: req.ID, Type: "result", Success: &success})
}

func (s *MockHAServer) handleGetStates(wrapper *connWrapper, msg json.RawMessage) {
	var req idRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	s.statesMu.RLock()
	states := make([]*EntityState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	s.statesMu.RUnlock()

	statesJSON, _ := json.Marshal(states)
	success := true
	wrapper.writeJSON(Message{
		ID:      req.ID,
		Type:    "result",
		Success: &success,
		Result:  statesJSON,
	})
}

func (s *MockHAServer) handleGetConfig(wrapper *connWrapper, msg json.RawMessage) {
	var req idRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	cfg := map[string]interface{}{
		"latitude":  s.Latitude,
		"longitude": s.Longitude,
		"elevation": 34.0,
		"time_zone": "Europe/Berlin",
		"version":   "2025.7.1",
	}
	cfgJSON, _ := json.Marshal(cfg)
	success := true
	wrapper.writeJSON(Message{
		ID:      req.ID,
		Type:    "result",
		Success: &success,
		Result:  cfgJSON,
	})
}

func (s *MockHAServer) handleCallService(wrapper *connWrapper, msg json.RawMessage) {
	var req callServiceRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	s.callsMu.Unlock()

	entityID, _ := req.ServiceData["entity_id"].(string)

	switch req.Domain {
	case "input_boolean":
		newState := "off"
		if req.Service == "turn_on" {
			newState = "on"
		}
		s.updateIfKnown(entityID, newState)

	case "input_number":
		if value, ok := req.ServiceData["value"].(float64); ok {
			s.updateIfKnown(entityID, fmt.Sprintf("%.2f", value))
		}

	case "input_text":
		if value, ok := req.ServiceData["value"].(string); ok {
			s.updateIfKnown(entityID, value)
		}

	case "notify":
		// Notifications are fire-and-forget; the recorded call is what
		// tests assert on.

	default:
		// Acknowledge unknown domains so the caller does not time out.
	}

	success := true
	wrapper.writeJSON(Message{ID: req.ID, Type: "result", Success: &success})
}

func (s *MockHAServer) updateIfKnown(entityID, newState string) {
	if entityID == "" {
		return
	}
	s.statesMu.RLock()
	oldState := s.states[entityID]
	s.statesMu.RUnlock()
	if oldState != nil {
		s.SetState(entityID, newState, oldState.Attributes)
	}
}

func (s *MockHAServer) broadcastStateChange(entityID string, oldState, newState *EntityState) {
	eventData := StateChangedEvent{
		EntityID: entityID,
		NewState: newState,
		OldState: oldState,
	}
	eventDataJSON, _ := json.Marshal(eventData)

	msg := Message{
		Type: "event",
		Event: &Event{
			EventType: "state_changed",
			Data:      eventDataJSON,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.writeJSON(msg)
	}
}

// GetServiceCalls returns all recorded service calls since the last clear.
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]ServiceCall, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// ClearServiceCalls resets the service call log.
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}

// CountServiceCalls counts recorded calls matching domain and service.
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	count := 0
	for _, call := range s.serviceCalls {
		if call.Domain == domain && call.Service == service {
			count++
		}
	}
	return count
}
