package zone

import (
	"math"
	"strings"

	"lightzone/internal/ha"

	"go.uber.org/zap"
)

// MediaDimOverlay dims the zone's lights while media is playing and
// restores their previous brightness afterwards. Pre-dim levels are
// captured lazily on the first dim and cleared once restoration runs,
// so repeated dim or restore calls are no-ops on the capture state.
type MediaDimOverlay struct {
	client  ha.HAClient
	logger  *zap.Logger
	dimPct  *int
	autoPct *int

	// light entity -> brightness pct before dimming; nil value means the
	// light was seen but had no usable brightness reading
	captured map[string]*int
}

// NewMediaDimOverlay creates an overlay. dimPct nil disables dimming;
// autoPct is the optional fallback brightness applied on restore when
// nothing was captured.
func NewMediaDimOverlay(client ha.HAClient, dimPct, autoPct *int, logger *zap.Logger) *MediaDimOverlay {
	return &MediaDimOverlay{
		client:   client,
		logger:   logger,
		dimPct:   dimPct,
		autoPct:  autoPct,
		captured: make(map[string]*int),
	}
}

// Enabled reports whether a dim brightness is configured
func (o *MediaDimOverlay) Enabled() bool {
	return o.dimPct != nil
}

// Apply dims every dimmable light to the configured percentage,
// capturing each light's current brightness the first time only.
func (o *MediaDimOverlay) Apply(lights []string) {
	if o.dimPct == nil {
		return
	}

	dimmed := false
	for _, light := range lights {
		if !strings.HasPrefix(light, "light.") {
			continue
		}

		if _, seen := o.captured[light]; !seen {
			o.captured[light] = o.readBrightnessPct(light)
		}

		err := o.client.CallService("light", "turn_on", map[string]interface{}{
			"entity_id":      light,
			"brightness_pct": *o.dimPct,
		})
		if err != nil {
			o.logger.Warn("Failed to dim light",
				zap.String("light", light), zap.Error(err))
			continue
		}
		dimmed = true
	}

	if dimmed {
		o.logger.Info("Media playing, dimming lights",
			zap.Int("brightness_pct", *o.dimPct))
	}
}

// Restore puts each captured light back to its pre-dim brightness and
// clears the captured state. With nothing captured, the configured auto
// brightness is applied instead if present; otherwise this is a no-op.
func (o *MediaDimOverlay) Restore(lights []string) {
	if len(o.captured) == 0 {
		if o.autoPct == nil {
			return
		}
		for _, light := range lights {
			if !strings.HasPrefix(light, "light.") {
				continue
			}
			err := o.client.CallService("light", "turn_on", map[string]interface{}{
				"entity_id":      light,
				"brightness_pct": *o.autoPct,
			})
			if err != nil {
				o.logger.Warn("Failed to apply auto brightness",
					zap.String("light", light), zap.Error(err))
			}
		}
		o.logger.Info("Media stopped, setting lights to auto brightness",
			zap.Int("brightness_pct", *o.autoPct))
		return
	}

	for light, pct := range o.captured {
		if pct == nil {
			continue
		}
		err := o.client.CallService("light", "turn_on", map[string]interface{}{
			"entity_id":      light,
			"brightness_pct": *pct,
		})
		if err != nil {
			o.logger.Warn("Failed to restore brightness",
				zap.String("light", light), zap.Error(err))
		}
	}
	o.captured = make(map[string]*int)
	o.logger.Info("Media stopped, restoring brightness")
}

// readBrightnessPct reads a light's current raw brightness and converts
// it to a clamped percentage. Returns nil when unavailable.
func (o *MediaDimOverlay) readBrightnessPct(light string) *int {
	state, err := o.client.GetState(light)
	if err != nil {
		return nil
	}
	raw, ok := attrFloat(state.Attributes["brightness"])
	if !ok {
		return nil
	}
	pct := int(math.Round(raw / 255.0 * 100.0))
	if pct < 1 {
		pct = 1
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
