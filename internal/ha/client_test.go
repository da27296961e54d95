package ha

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://homeassistant.local:8123", "ws://homeassistant.local:8123/api/websocket", false},
		{"https://ha.example.com", "wss://ha.example.com/api/websocket", false},
		{"http://homeassistant.local:8123/", "ws://homeassistant.local:8123/api/websocket", false},
		{"ws://homeassistant.local:8123", "ws://homeassistant.local:8123/api/websocket", false},
		{"ftp://homeassistant.local", "", true},
	}

	for _, tt := range tests {
		got, err := websocketURL(tt.base)
		if tt.wantErr {
			assert.Error(t, err, "base %q", tt.base)
			continue
		}
		require.NoError(t, err, "base %q", tt.base)
		assert.Equal(t, tt.want, got, "base %q", tt.base)
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	_, err := NewClient("not a url at all\x00", "token", logger)
	assert.Error(t, err)

	client, err := NewClient("http://homeassistant.local:8123/", "token", logger)
	require.NoError(t, err)
	assert.Equal(t, "http://homeassistant.local:8123", client.baseURL)
	assert.False(t, client.IsConnected())
}

func TestMockClient_ServiceCallsUpdateState(t *testing.T) {
	client := NewMockClient()

	require.NoError(t, client.CallService("light", "turn_on", map[string]interface{}{
		"entity_id":      "light.kitchen",
		"brightness_pct": 80,
	}))

	state, err := client.GetState("light.kitchen")
	require.NoError(t, err)
	assert.Equal(t, "on", state.State)
	assert.Equal(t, 204.0, state.Attributes["brightness"])

	require.NoError(t, client.CallService("light", "turn_off", map[string]interface{}{
		"entity_id": "light.kitchen",
	}))

	state, err = client.GetState("light.kitchen")
	require.NoError(t, err)
	assert.Equal(t, "off", state.State)
}

func TestMockClient_StateChangeNotifications(t *testing.T) {
	client := NewMockClient()

	var changes []string
	sub, err := client.SubscribeStateChanges("light.kitchen", func(entityID string, oldState, newState *State) {
		changes = append(changes, newState.State)
	})
	require.NoError(t, err)

	client.SetState("light.kitchen", "on", nil)
	client.SimulateStateChange("light.kitchen", "off")
	assert.Equal(t, []string{"on", "off"}, changes)

	// Quiet seeding and service calls do not notify
	client.SetStateQuiet("light.kitchen", "on", nil)
	client.CallService("light", "turn_off", map[string]interface{}{"entity_id": "light.kitchen"})
	assert.Len(t, changes, 2)

	require.NoError(t, sub.Unsubscribe())
	client.SetState("light.kitchen", "on", nil)
	assert.Len(t, changes, 2)
}

func TestMockClient_FireEvent(t *testing.T) {
	client := NewMockClient()

	var received []string
	_, err := client.SubscribeEvents("call_service", func(eventType string, data json.RawMessage) {
		received = append(received, eventType)
	})
	require.NoError(t, err)

	client.FireEvent("call_service", CallServiceEventData{
		Domain:  "button",
		Service: "press",
	})
	assert.Equal(t, []string{"call_service"}, received)
}
