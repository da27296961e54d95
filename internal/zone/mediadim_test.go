package zone

import (
	"testing"

	"lightzone/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOverlay(dimPct, autoPct *int) (*MediaDimOverlay, *ha.MockClient) {
	logger, _ := zap.NewDevelopment()
	client := ha.NewMockClient()
	return NewMediaDimOverlay(client, dimPct, autoPct, logger), client
}

func intPtr(v int) *int { return &v }

func TestMediaDimOverlay_DisabledWithoutDimPct(t *testing.T) {
	overlay, client := newTestOverlay(nil, nil)

	assert.False(t, overlay.Enabled())
	overlay.Apply([]string{"light.kitchen"})
	assert.Empty(t, client.GetServiceCalls())
}

func TestMediaDimOverlay_DimAndRestore(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	// 204 of 255 raw is 80 pct
	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{
		"brightness": float64(204),
	})

	overlay.Apply([]string{"light.kitchen"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "light", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, 20, calls[0].Data["brightness_pct"])

	client.ClearServiceCalls()
	overlay.Restore([]string{"light.kitchen"})

	calls = client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 80, calls[0].Data["brightness_pct"])
}

func TestMediaDimOverlay_CaptureHappensOnce(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{
		"brightness": float64(204),
	})

	// The second Apply sees the already-dimmed brightness but must not
	// overwrite the captured pre-dim level.
	overlay.Apply([]string{"light.kitchen"})
	overlay.Apply([]string{"light.kitchen"})

	client.ClearServiceCalls()
	overlay.Restore([]string{"light.kitchen"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 80, calls[0].Data["brightness_pct"])
}

func TestMediaDimOverlay_EachLightRestoredToOwnLevel(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	// 204 raw is 80 pct, 153 raw is 60 pct
	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{
		"brightness": float64(204),
	})
	client.SetStateQuiet("light.island", "on", map[string]interface{}{
		"brightness": float64(153),
	})

	overlay.Apply([]string{"light.kitchen", "light.island"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Equal(t, 20, call.Data["brightness_pct"])
	}

	client.ClearServiceCalls()
	overlay.Restore([]string{"light.kitchen", "light.island"})

	restored := make(map[string]interface{})
	for _, call := range client.GetServiceCalls() {
		restored[call.Data["entity_id"].(string)] = call.Data["brightness_pct"]
	}
	assert.Equal(t, 80, restored["light.kitchen"])
	assert.Equal(t, 60, restored["light.island"])
}

func TestMediaDimOverlay_RestoreClearsCapture(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{
		"brightness": float64(204),
	})

	overlay.Apply([]string{"light.kitchen"})
	overlay.Restore([]string{"light.kitchen"})

	client.ClearServiceCalls()
	overlay.Restore([]string{"light.kitchen"})
	assert.Empty(t, client.GetServiceCalls(), "second restore with nothing captured is a no-op")
}

func TestMediaDimOverlay_RestoreFallsBackToAutoBrightness(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), intPtr(65))

	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{})

	// Nothing was ever dimmed, so restore applies the auto brightness
	overlay.Restore([]string{"light.kitchen"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 65, calls[0].Data["brightness_pct"])
}

func TestMediaDimOverlay_SkipsNonLightEntities(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	client.SetStateQuiet("switch.lamp", "on", map[string]interface{}{})

	overlay.Apply([]string{"switch.lamp"})
	assert.Empty(t, client.GetServiceCalls())
}

func TestMediaDimOverlay_UnreadableBrightnessNotRestored(t *testing.T) {
	overlay, client := newTestOverlay(intPtr(20), nil)

	// On but with no brightness attribute
	client.SetStateQuiet("light.kitchen", "on", map[string]interface{}{})

	overlay.Apply([]string{"light.kitchen"})
	client.ClearServiceCalls()

	overlay.Restore([]string{"light.kitchen"})
	assert.Empty(t, client.GetServiceCalls())
}
