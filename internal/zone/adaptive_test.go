package zone

import (
	"testing"

	"lightzone/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(cfg AdaptiveConfig) (*AdaptiveLightingReconciler, *ha.MockClient) {
	logger, _ := zap.NewDevelopment()
	client := ha.NewMockClient()
	return NewAdaptiveLightingReconciler(client, cfg, logger), client
}

func TestMiredsToKelvin(t *testing.T) {
	kelvin, ok := MiredsToKelvin(250)
	assert.True(t, ok)
	assert.Equal(t, 4000, kelvin)

	kelvin, ok = MiredsToKelvin(370)
	assert.True(t, ok)
	assert.Equal(t, 2703, kelvin)

	_, ok = MiredsToKelvin(0)
	assert.False(t, ok)

	_, ok = MiredsToKelvin(-10)
	assert.False(t, ok)
}

func TestReconciler_DisabledWithoutSwitch(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{})

	assert.False(t, rec.Enabled())
	assert.False(t, rec.UseTargets())
	assert.False(t, rec.LooksLikeOwnAdaptation("brightness_pct", 50))

	rec.TakeManualControl([]string{"light.kitchen"})
	rec.Release([]string{"light.kitchen"})
	assert.Empty(t, client.GetServiceCalls())
}

func TestReconciler_CurrentTargetFromSwitchAttributes(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{
		"brightness_pct":    float64(72.4),
		"color_temp_kelvin": float64(3200),
	})

	target := rec.CurrentTarget()
	require.NotNil(t, target.BrightnessPct)
	require.NotNil(t, target.ColorTempKelvin)
	assert.Equal(t, 72, *target.BrightnessPct)
	assert.Equal(t, 3200, *target.ColorTempKelvin)
	assert.True(t, target.AdaptBrightness)
	assert.True(t, target.AdaptColor)
}

func TestReconciler_CurrentTargetMiredsFallback(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{
		"color_temp": float64(250),
	})

	target := rec.CurrentTarget()
	require.NotNil(t, target.ColorTempKelvin)
	assert.Equal(t, 4000, *target.ColorTempKelvin)
	assert.Nil(t, target.BrightnessPct)
}

func TestReconciler_CurrentTargetSwitchUnavailable(t *testing.T) {
	rec, _ := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	target := rec.CurrentTarget()
	assert.Nil(t, target.BrightnessPct)
	assert.Nil(t, target.ColorTempKelvin)
}

func TestReconciler_AdaptFlagsFromSwitch(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{
		"adapt_brightness": false,
		"adapt_color":      true,
	})

	target := rec.CurrentTarget()
	assert.False(t, target.AdaptBrightness)
	assert.True(t, target.AdaptColor)
}

func TestReconciler_LooksLikeOwnAdaptation_Brightness(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{
		"brightness_pct": float64(50),
	})

	// Within the 3 pct default tolerance
	assert.True(t, rec.LooksLikeOwnAdaptation("brightness_pct", float64(52)))
	// Raw brightness 128 of 255 is 50 pct
	assert.True(t, rec.LooksLikeOwnAdaptation("brightness", float64(128)))
	// Clearly a human change
	assert.False(t, rec.LooksLikeOwnAdaptation("brightness_pct", float64(80)))
}

func TestReconciler_LooksLikeOwnAdaptation_ColorTemp(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{
		"color_temp_kelvin": float64(4000),
	})

	// Within the 150 K default tolerance
	assert.True(t, rec.LooksLikeOwnAdaptation("color_temp_kelvin", float64(4100)))
	// 250 mireds is exactly 4000 K
	assert.True(t, rec.LooksLikeOwnAdaptation("color_temp", float64(250)))
	assert.False(t, rec.LooksLikeOwnAdaptation("color_temp_kelvin", float64(4500)))
}

func TestReconciler_LooksLikeOwnAdaptation_NoTarget(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	client.SetStateQuiet("switch.adaptive_lighting_kitchen", "on", map[string]interface{}{})

	assert.False(t, rec.LooksLikeOwnAdaptation("brightness_pct", float64(50)))
	assert.False(t, rec.LooksLikeOwnAdaptation("color_temp_kelvin", float64(4000)))
}

func TestReconciler_TakeManualControl(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	rec.TakeManualControl([]string{"light.kitchen"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "adaptive_lighting", calls[0].Domain)
	assert.Equal(t, "set_manual_control", calls[0].Service)
	assert.Equal(t, "switch.adaptive_lighting_kitchen", calls[0].Data["entity_id"])
	assert.Equal(t, []string{"light.kitchen"}, calls[0].Data["lights"])
}

func TestReconciler_TakeManualControlDisabledByConfig(t *testing.T) {
	takeOver := false
	rec, client := newTestReconciler(AdaptiveConfig{
		Switch:           "switch.adaptive_lighting_kitchen",
		TakeOverOnManual: &takeOver,
	})

	rec.TakeManualControl([]string{"light.kitchen"})
	assert.Empty(t, client.GetServiceCalls())
}

func TestReconciler_Release(t *testing.T) {
	rec, client := newTestReconciler(AdaptiveConfig{Switch: "switch.adaptive_lighting_kitchen"})

	rec.Release([]string{"light.kitchen", "light.island"})

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "adaptive_lighting", calls[0].Domain)
	assert.Equal(t, "reset", calls[0].Service)
}

func TestReconciler_ManualResetDelay(t *testing.T) {
	rec, _ := newTestReconciler(AdaptiveConfig{Switch: "switch.al"})
	assert.Equal(t, 900.0, rec.ManualResetDelay().Seconds())

	zero := 0.0
	rec, _ = newTestReconciler(AdaptiveConfig{Switch: "switch.al", ManualResetSeconds: &zero})
	assert.Equal(t, 0.0, rec.ManualResetDelay().Seconds())
}
