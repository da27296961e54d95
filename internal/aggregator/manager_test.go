package aggregator

import (
	"testing"
	"time"

	"lightzone/internal/clock"
	"lightzone/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(zones []string) (*Manager, *ha.MockClient, *clock.MockClock) {
	logger, _ := zap.NewDevelopment()
	client := ha.NewMockClient()
	clk := clock.NewMockClock(time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC))
	return NewManager(client, clk, zones, logger), client, clk
}

func lastManagerWrite(t *testing.T, client *ha.MockClient) ha.StateWrite {
	t.Helper()
	writes := client.GetStateWrites()
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].EntityID == ManagerEntity {
			return writes[i]
		}
	}
	t.Fatal("no manager entity write recorded")
	return ha.StateWrite{}
}

func TestManager_AllZonesAuto(t *testing.T) {
	manager, client, _ := newTestManager([]string{"kitchen", "den"})

	client.SetStateQuiet("sensor.light_status_kitchen", "auto", map[string]interface{}{
		"manual_state":      "auto",
		"reautomate_button": "button.reautomate_kitchen",
	})
	client.SetStateQuiet("sensor.light_status_den", "auto", map[string]interface{}{
		"manual_state":      "auto",
		"reautomate_button": "button.reautomate_den",
	})

	manager.Refresh()

	write := lastManagerWrite(t, client)
	assert.Equal(t, "off", write.State)
	assert.Empty(t, write.Attributes["reautomate_buttons"])
}

func TestManager_ManualZonesCollected(t *testing.T) {
	manager, client, _ := newTestManager([]string{"kitchen", "den", "porch"})

	client.SetStateQuiet("sensor.light_status_kitchen", "manual_on", map[string]interface{}{
		"manual_state":      "manual_on",
		"reautomate_button": "button.reautomate_kitchen",
	})
	client.SetStateQuiet("sensor.light_status_den", "manual_off", map[string]interface{}{
		"manual_state":      "manual_off",
		"reautomate_button": "button.reautomate_den",
	})
	client.SetStateQuiet("sensor.light_status_porch", "auto", map[string]interface{}{
		"manual_state":      "auto",
		"reautomate_button": "button.reautomate_porch",
	})

	manager.Refresh()

	write := lastManagerWrite(t, client)
	assert.Equal(t, "on", write.State)
	assert.Equal(t,
		[]string{"button.reautomate_kitchen", "button.reautomate_den"},
		write.Attributes["reautomate_buttons"])
}

func TestManager_MissingZoneEntitySkipped(t *testing.T) {
	manager, client, _ := newTestManager([]string{"kitchen", "ghost"})

	client.SetStateQuiet("sensor.light_status_kitchen", "manual_on", map[string]interface{}{
		"manual_state":      "manual_on",
		"reautomate_button": "button.reautomate_kitchen",
	})

	manager.Refresh()

	write := lastManagerWrite(t, client)
	assert.Equal(t, "on", write.State)
	assert.Equal(t, []string{"button.reautomate_kitchen"}, write.Attributes["reautomate_buttons"])
}

func TestManager_StateFallbackWithoutAttribute(t *testing.T) {
	manager, client, _ := newTestManager([]string{"kitchen"})

	// No manual_state attribute: the entity state itself is used
	client.SetStateQuiet("sensor.light_status_kitchen", "manual_off", map[string]interface{}{
		"reautomate_button": "button.reautomate_kitchen",
	})

	manager.Refresh()

	write := lastManagerWrite(t, client)
	assert.Equal(t, "on", write.State)
}

func TestManager_StopHaltsRefreshes(t *testing.T) {
	manager, client, clk := newTestManager([]string{"kitchen"})

	client.SetStateQuiet("sensor.light_status_kitchen", "auto", map[string]interface{}{
		"manual_state":      "auto",
		"reautomate_button": "button.reautomate_kitchen",
	})

	require.NoError(t, manager.Start())
	manager.Stop()

	before := len(client.GetStateWrites())
	clk.Advance(5 * time.Minute)
	assert.Equal(t, before, len(client.GetStateWrites()))
}

func TestManager_PeriodicRefresh(t *testing.T) {
	manager, client, clk := newTestManager([]string{"kitchen"})

	client.SetStateQuiet("sensor.light_status_kitchen", "auto", map[string]interface{}{
		"manual_state":      "auto",
		"reautomate_button": "button.reautomate_kitchen",
	})

	require.NoError(t, manager.Start())
	defer manager.Stop()

	baseline := len(client.GetStateWrites())

	// The zone flips to manual; the startup refresh picks it up
	client.SetStateQuiet("sensor.light_status_kitchen", "manual_on", map[string]interface{}{
		"manual_state":      "manual_on",
		"reautomate_button": "button.reautomate_kitchen",
	})
	clk.Advance(5 * time.Second)

	assert.Greater(t, len(client.GetStateWrites()), baseline)
	write := lastManagerWrite(t, client)
	assert.Equal(t, "on", write.State)

	// And the interval keeps it fresh afterwards
	before := len(client.GetStateWrites())
	clk.Advance(30 * time.Second)
	assert.Greater(t, len(client.GetStateWrites()), before)
}
