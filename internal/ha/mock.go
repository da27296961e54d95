package ha

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient implements HAClient for testing. Service calls are recorded
// and applied to the in-memory state map; state-change notifications are
// only delivered through SetState / SimulateStateChange so tests control
// exactly which events the code under test observes.
type MockClient struct {
	states    map[string]*State
	statesMu  sync.RWMutex
	stateSubs map[string][]stateSubscriber
	eventSubs map[string][]eventSubscriber
	subsMu    sync.RWMutex
	connected bool
	connMu    sync.RWMutex

	serviceCalls []ServiceCall
	stateWrites  []StateWrite
	callsMu      sync.Mutex
}

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// StateWrite records a SetEntityState call for testing
type StateWrite struct {
	EntityID   string
	State      string
	Attributes map[string]interface{}
	Time       time.Time
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:    make(map[string]*State),
		stateSubs: make(map[string][]stateSubscriber),
		eventSubs: make(map[string][]eventSubscriber),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.connected = false

	m.subsMu.Lock()
	m.stateSubs = make(map[string][]stateSubscriber)
	m.eventSubs = make(map[string][]eventSubscriber)
	m.subsMu.Unlock()

	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetState retrieves a mock state
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}

	return state, nil
}

// GetAllStates retrieves all mock states
func (m *MockClient) GetAllStates() ([]*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}

	return states, nil
}

// CallService records a service call and applies its effect to the state map
func (m *MockClient) CallService(domain, service string, data map[string]interface{}) error {
	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	if entityID, ok := data["entity_id"].(string); ok {
		m.applyServiceCall(entityID, domain, service, data)
	}

	return nil
}

// SetEntityState records a virtual entity write and stores it as state
func (m *MockClient) SetEntityState(entityID, state string, attributes map[string]interface{}) error {
	m.callsMu.Lock()
	m.stateWrites = append(m.stateWrites, StateWrite{
		EntityID:   entityID,
		State:      state,
		Attributes: attributes,
		Time:       time.Now(),
	})
	m.callsMu.Unlock()

	m.statesMu.Lock()
	now := time.Now()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	m.statesMu.Unlock()

	return nil
}

// SubscribeStateChanges subscribes to state changes for an entity
func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	token := uuid.NewString()

	m.subsMu.Lock()
	m.stateSubs[entityID] = append(m.stateSubs[entityID], stateSubscriber{
		token:   token,
		handler: handler,
	})
	m.subsMu.Unlock()

	return &clientSubscription{
		key:    entityID,
		token:  token,
		cancel: m.unsubscribeState,
	}, nil
}

// SubscribeEvents subscribes to a mock event type
func (m *MockClient) SubscribeEvents(eventType string, handler EventHandler) (Subscription, error) {
	token := uuid.NewString()

	m.subsMu.Lock()
	m.eventSubs[eventType] = append(m.eventSubs[eventType], eventSubscriber{
		token:   token,
		handler: handler,
	})
	m.subsMu.Unlock()

	return &clientSubscription{
		key:    eventType,
		token:  token,
		cancel: m.unsubscribeEvent,
	}, nil
}

func (m *MockClient) unsubscribeState(entityID, token string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subscribers, ok := m.stateSubs[entityID]
	if !ok {
		return nil
	}

	for i, entry := range subscribers {
		if entry.token == token {
			m.stateSubs[entityID] = append(subscribers[:i], subscribers[i+1:]...)
			if len(m.stateSubs[entityID]) == 0 {
				delete(m.stateSubs, entityID)
			}
			break
		}
	}

	return nil
}

func (m *MockClient) unsubscribeEvent(eventType, token string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subscribers, ok := m.eventSubs[eventType]
	if !ok {
		return nil
	}

	for i, entry := range subscribers {
		if entry.token == token {
			m.eventSubs[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			if len(m.eventSubs[eventType]) == 0 {
				delete(m.eventSubs, eventType)
			}
			break
		}
	}

	return nil
}

// SetState sets a mock state and notifies subscribers of the change
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	m.statesMu.Lock()
	now := time.Now()
	oldState := m.states[entityID]

	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	newState := &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.notifyStateSubscribers(entityID, oldState, newState)
}

// SetStateQuiet sets a mock state without notifying subscribers, for
// seeding initial conditions before the code under test starts observing.
func (m *MockClient) SetStateQuiet(entityID string, stateValue string, attributes map[string]interface{}) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	now := time.Now()
	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// SimulateStateChange simulates a state change event, keeping attributes
func (m *MockClient) SimulateStateChange(entityID string, newStateValue string) {
	m.statesMu.Lock()
	oldState := m.states[entityID]

	now := time.Now()
	newState := &State{
		EntityID:    entityID,
		State:       newStateValue,
		Attributes:  make(map[string]interface{}),
		LastChanged: now,
		LastUpdated: now,
	}

	if oldState != nil {
		newState.Attributes = oldState.Attributes
	}

	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.notifyStateSubscribers(entityID, oldState, newState)
}

// FireEvent delivers a mock event to event subscribers
func (m *MockClient) FireEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("mock event payload not serializable: %v", err))
	}

	m.subsMu.RLock()
	entries := append([]eventSubscriber(nil), m.eventSubs[eventType]...)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(eventType, payload)
	}
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// GetStateWrites returns all recorded SetEntityState calls
func (m *MockClient) GetStateWrites() []StateWrite {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	writes := make([]StateWrite, len(m.stateWrites))
	copy(writes, m.stateWrites)
	return writes
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
	m.stateWrites = nil
}

// applyServiceCall updates the state map to reflect a light/switch command
func (m *MockClient) applyServiceCall(entityID, domain, service string, data map[string]interface{}) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	oldState := m.states[entityID]
	now := time.Now()

	var newStateValue string
	attributes := make(map[string]interface{})

	if oldState != nil {
		newStateValue = oldState.State
		for k, v := range oldState.Attributes {
			attributes[k] = v
		}
	}

	switch domain {
	case "light", "switch", "input_boolean":
		switch service {
		case "turn_on":
			newStateValue = "on"
			if pct, ok := toFloat(data["brightness_pct"]); ok {
				attributes["brightness"] = math.Round(pct / 100.0 * 255.0)
			}
			if ct, ok := toFloat(data["color_temp_kelvin"]); ok {
				attributes["color_temp_kelvin"] = ct
			}
		case "turn_off":
			newStateValue = "off"
		}
	}

	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       newStateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// toFloat converts the numeric types that appear in service data
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// notifyStateSubscribers notifies all subscribers of a state change
func (m *MockClient) notifyStateSubscribers(entityID string, oldState, newState *State) {
	m.subsMu.RLock()
	entries := append([]stateSubscriber(nil), m.stateSubs[entityID]...)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(entityID, oldState, newState)
	}
}
