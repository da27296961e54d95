package zone

import (
	"fmt"
	"strings"
	"time"
)

// Config is the YAML configuration of one lighting zone. List-valued
// options are always sequences; durations are seconds. Pointer fields
// distinguish "unset, use the default" from an explicit zero.
type Config struct {
	Name          string   `yaml:"name"`
	Lights        []string `yaml:"lights"`
	MotionSensors []string `yaml:"motion_sensors"`

	LuxSensor    string   `yaml:"lux_sensor"`
	LuxThreshold *float64 `yaml:"lux_threshold"`
	OnlyWhenDark *bool    `yaml:"only_when_dark"` // default true

	DelayOffSeconds            *float64 `yaml:"delay_off_seconds"`             // default 60
	ManualOffReautomateSeconds *float64 `yaml:"manual_off_reautomate_seconds"` // default 3600
	MotionReautomateSeconds    *float64 `yaml:"motion_reautomate_seconds"`     // default 5
	BootGraceSeconds           *float64 `yaml:"boot_grace_seconds"`            // default 60
	EchoWindowSeconds          *float64 `yaml:"echo_window_seconds"`           // default 3
	EchoMaxWindowSeconds       *float64 `yaml:"echo_max_window_seconds"`       // default 60

	MediaPlayers          []string `yaml:"media_players"`
	MediaDimBrightnessPct *int     `yaml:"media_dim_brightness_pct"`
	AutoBrightnessPct     *int     `yaml:"auto_brightness_pct"`

	// Manual-tweak detection thresholds: smaller deltas are jitter
	BrightnessChangePct  *float64 `yaml:"brightness_change_pct"`   // default 5
	ColorTempChangeK     *float64 `yaml:"color_temp_change_kelvin"` // default 100
	ColorTempChangeMired *float64 `yaml:"color_temp_change_mireds"` // default 5

	AdaptiveLighting AdaptiveConfig `yaml:"adaptive_lighting"`

	BlockWindows []BlockWindowConfig `yaml:"block_windows"`
	QuietStart   string              `yaml:"quiet_start"`
	QuietEnd     string              `yaml:"quiet_end"`
	BlockActions string              `yaml:"block_actions"` // on|off|on_off, default on_off
}

// Validate checks the required fields and normalizes entity lists.
// A zone without lights is a configuration error, fatal at startup.
func (c *Config) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("zone name is required")
	}

	c.Lights = dedupe(c.Lights)
	if len(c.Lights) == 0 {
		return fmt.Errorf("zone %s: lights must list one or more light entities", c.Name)
	}

	c.MotionSensors = dedupe(c.MotionSensors)
	c.MediaPlayers = dedupe(c.MediaPlayers)

	if _, err := ParseBlockAction(c.BlockActions); err != nil {
		return fmt.Errorf("zone %s: %w", c.Name, err)
	}
	for i, w := range c.BlockWindows {
		if w.Actions != "" {
			if _, err := ParseBlockAction(w.Actions); err != nil {
				return fmt.Errorf("zone %s: block window %d: %w", c.Name, i, err)
			}
		}
	}

	return nil
}

// dedupe removes duplicate entries preserving first-seen order
func dedupe(entities []string) []string {
	seen := make(map[string]bool, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func (c *Config) secondsOrDefault(p *float64, def float64) time.Duration {
	v := def
	if p != nil {
		v = *p
	}
	return time.Duration(v * float64(time.Second))
}

// DelayOff is how long after presence clears before auto-off
func (c *Config) DelayOff() time.Duration {
	return c.secondsOrDefault(c.DelayOffSeconds, 60)
}

// ManualOffReautomateDelay is how long manual_off lasts before re-automation
func (c *Config) ManualOffReautomateDelay() time.Duration {
	return c.secondsOrDefault(c.ManualOffReautomateSeconds, 3600)
}

// MotionReautomateDelay is the quick re-automate delay after motion in manual_on
func (c *Config) MotionReautomateDelay() time.Duration {
	return c.secondsOrDefault(c.MotionReautomateSeconds, 5)
}

// BootGrace is the startup period during which manual detection is off
func (c *Config) BootGrace() time.Duration {
	return c.secondsOrDefault(c.BootGraceSeconds, 60)
}

// EchoWindow is how long a command's state report counts as an echo
func (c *Config) EchoWindow() time.Duration {
	return c.secondsOrDefault(c.EchoWindowSeconds, 3)
}

// EchoMaxWindow caps echo expectation lifetime
func (c *Config) EchoMaxWindow() time.Duration {
	return c.secondsOrDefault(c.EchoMaxWindowSeconds, 60)
}

// DarkOnly reports whether automation requires darkness
func (c *Config) DarkOnly() bool {
	return boolOrDefault(c.OnlyWhenDark, true)
}

func floatOrDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// StatusEntity is the per-zone status sensor published for collaborators
func (c *Config) StatusEntity() string {
	return "sensor.light_status_" + c.Name
}

// DebugEntity is the per-zone debug sensor
func (c *Config) DebugEntity() string {
	return "sensor.light_state_" + c.Name
}

// ReautomateButton is the per-zone re-automate trigger entity
func (c *Config) ReautomateButton() string {
	return "button.reautomate_" + c.Name
}
