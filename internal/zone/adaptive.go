package zone

import (
	"encoding/json"
	"math"
	"time"

	"lightzone/internal/ha"

	"go.uber.org/zap"
)

// AdaptiveConfig configures cooperation with an external adaptive
// lighting integration (brightness/color tracked against time of day).
type AdaptiveConfig struct {
	Switch             string   `yaml:"switch"`
	UseTargets         *bool    `yaml:"use_targets"`          // default true
	TakeOverOnManual   *bool    `yaml:"take_over_on_manual"`  // default true
	ManualResetSeconds *float64 `yaml:"manual_reset_seconds"` // default 900, 0 disables
	AdaptBrightness    *bool    `yaml:"adapt_brightness"`     // nil = follow the switch
	AdaptColor         *bool    `yaml:"adapt_color"`          // nil = follow the switch

	// Tolerance bands for treating an observed change as the adaptive
	// service's own nudge rather than a human tweak.
	BrightnessTolerancePct   *int `yaml:"brightness_tolerance_pct"`    // default 3
	ColorTempToleranceKelvin *int `yaml:"color_temp_tolerance_kelvin"` // default 150
}

// AdaptiveTarget is the adaptation service's current target, derived
// per-read from the switch entity's attributes. Nil fields mean the
// attribute was absent or unparseable.
type AdaptiveTarget struct {
	BrightnessPct   *int
	ColorTempKelvin *int
	AdaptBrightness bool
	AdaptColor      bool
}

// AdaptiveLightingReconciler reads adaptation targets and flags lights
// as manually controlled on the external service. Every external call is
// fire-and-forget: failures are logged and automation continues.
type AdaptiveLightingReconciler struct {
	client ha.HAClient
	cfg    AdaptiveConfig
	logger *zap.Logger
}

// NewAdaptiveLightingReconciler creates a reconciler; cfg may be the
// zero value, in which case the reconciler is disabled.
func NewAdaptiveLightingReconciler(client ha.HAClient, cfg AdaptiveConfig, logger *zap.Logger) *AdaptiveLightingReconciler {
	return &AdaptiveLightingReconciler{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether an adaptation switch is configured
func (r *AdaptiveLightingReconciler) Enabled() bool {
	return r.cfg.Switch != ""
}

// Switch returns the adaptation switch entity ID
func (r *AdaptiveLightingReconciler) Switch() string {
	return r.cfg.Switch
}

// UseTargets reports whether turn-on commands should carry the service's
// current brightness/color targets
func (r *AdaptiveLightingReconciler) UseTargets() bool {
	return r.Enabled() && boolOrDefault(r.cfg.UseTargets, true)
}

// ManualResetDelay returns the per-light manual hold duration; zero
// means manual control is never released automatically.
func (r *AdaptiveLightingReconciler) ManualResetDelay() time.Duration {
	if r.cfg.ManualResetSeconds == nil {
		return 900 * time.Second
	}
	return time.Duration(*r.cfg.ManualResetSeconds * float64(time.Second))
}

// CurrentTarget reads the switch attributes and derives the target.
// Missing entity or attributes yield an empty target (fail-open).
func (r *AdaptiveLightingReconciler) CurrentTarget() AdaptiveTarget {
	target := AdaptiveTarget{
		AdaptBrightness: boolOrDefault(r.cfg.AdaptBrightness, true),
		AdaptColor:      boolOrDefault(r.cfg.AdaptColor, true),
	}

	if !r.Enabled() {
		return target
	}

	state, err := r.client.GetState(r.cfg.Switch)
	if err != nil {
		r.logger.Warn("Adaptive lighting switch unavailable",
			zap.String("switch", r.cfg.Switch), zap.Error(err))
		return target
	}
	attrs := state.Attributes

	if pct, ok := attrFloat(attrs["brightness_pct"]); ok {
		v := int(math.Round(pct))
		target.BrightnessPct = &v
	} else if raw, ok := attrFloat(attrs["brightness"]); ok {
		v := int(math.Round(raw))
		target.BrightnessPct = &v
	}

	if k, ok := attrFloat(attrs["color_temp_kelvin"]); ok {
		v := int(math.Round(k))
		target.ColorTempKelvin = &v
	} else if m, ok := attrFloat(attrs["color_temp"]); ok {
		if kelvin, valid := MiredsToKelvin(m); valid {
			target.ColorTempKelvin = &kelvin
		}
	}

	if r.cfg.AdaptBrightness == nil {
		if b, ok := attrs["adapt_brightness"].(bool); ok {
			target.AdaptBrightness = b
		}
	}
	if r.cfg.AdaptColor == nil {
		if b, ok := attrs["adapt_color"].(bool); ok {
			target.AdaptColor = b
		}
	}

	return target
}

// LooksLikeOwnAdaptation reports whether an observed attribute change is
// within the tolerance band of the service's current target, meaning it
// was most likely the service's own nudge and not a human.
func (r *AdaptiveLightingReconciler) LooksLikeOwnAdaptation(attribute string, newValue interface{}) bool {
	if !r.Enabled() {
		return false
	}

	target := r.CurrentTarget()

	switch attribute {
	case "brightness", "brightness_pct":
		if target.BrightnessPct == nil {
			return false
		}
		pct, ok := brightnessPctFromAttr(attribute, newValue)
		if !ok {
			return false
		}
		tolerance := intOrDefault(r.cfg.BrightnessTolerancePct, 3)
		return abs(*target.BrightnessPct-pct) <= tolerance

	case "color_temp", "color_temp_kelvin":
		if target.ColorTempKelvin == nil {
			return false
		}
		kelvin, ok := kelvinFromAttr(attribute, newValue)
		if !ok {
			return false
		}
		tolerance := intOrDefault(r.cfg.ColorTempToleranceKelvin, 150)
		return abs(*target.ColorTempKelvin-kelvin) <= tolerance
	}

	return false
}

// TakeManualControl asks the service to stop adapting these lights
func (r *AdaptiveLightingReconciler) TakeManualControl(lights []string) {
	if !r.Enabled() || !boolOrDefault(r.cfg.TakeOverOnManual, true) {
		return
	}

	err := r.client.CallService("adaptive_lighting", "set_manual_control", map[string]interface{}{
		"entity_id": r.cfg.Switch,
		"lights":    lights,
	})
	if err != nil {
		r.logger.Warn("Failed to call adaptive_lighting.set_manual_control", zap.Error(err))
		return
	}
	r.logger.Info("Handed manual control to the human",
		zap.Strings("lights", lights))
}

// Release asks the service to resume adapting these lights
func (r *AdaptiveLightingReconciler) Release(lights []string) {
	if !r.Enabled() {
		return
	}

	err := r.client.CallService("adaptive_lighting", "reset", map[string]interface{}{
		"entity_id": r.cfg.Switch,
		"lights":    lights,
	})
	if err != nil {
		r.logger.Warn("Failed to call adaptive_lighting.reset", zap.Error(err))
		return
	}
	r.logger.Info("Released adaptive lighting manual control",
		zap.Strings("lights", lights))
}

// MiredsToKelvin converts mireds to Kelvin. The conversion is undefined
// for non-positive mired values.
func MiredsToKelvin(mireds float64) (int, bool) {
	if mireds <= 0 {
		return 0, false
	}
	return int(math.Round(1_000_000 / mireds)), true
}

// brightnessPctFromAttr converts a brightness attribute value to a
// percentage: raw 0-255 for "brightness", already-pct otherwise.
func brightnessPctFromAttr(attribute string, value interface{}) (int, bool) {
	f, ok := attrFloat(value)
	if !ok {
		return 0, false
	}
	if attribute == "brightness" {
		return int(math.Round(f / 255.0 * 100.0)), true
	}
	return int(math.Round(f)), true
}

// kelvinFromAttr converts a color-temperature attribute value to Kelvin
func kelvinFromAttr(attribute string, value interface{}) (int, bool) {
	f, ok := attrFloat(value)
	if !ok {
		return 0, false
	}
	if attribute == "color_temp" {
		return MiredsToKelvin(f)
	}
	return int(math.Round(f)), true
}

// attrFloat extracts a numeric attribute value, distinguishing
// "unavailable" (absent, nil, wrong type) from a real reading
func attrFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOrDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
