// Package darkness decides whether it is dark enough to run lighting
// automation. A lux sensor with a threshold is preferred; when a zone has
// none but coordinates are configured, sun position stands in. Missing or
// malformed readings fail toward "dark enough" so automation keeps acting.
package darkness

import (
	"strconv"
	"time"

	"lightzone/internal/clock"
	"lightzone/internal/ha"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// SunFallback holds coordinates for the sun-position fallback. The
// twilight offset widens the "dark" span around sunrise/sunset, matching
// civil twilight at roughly 30 minutes.
type SunFallback struct {
	Latitude       float64
	Longitude      float64
	TwilightOffset time.Duration
}

// Evaluator answers the single question "dark enough to automate?"
type Evaluator struct {
	client       ha.HAClient
	clock        clock.Clock
	logger       *zap.Logger
	onlyWhenDark bool
	luxSensor    string
	luxThreshold *float64
	sun          *SunFallback
}

// NewEvaluator creates an evaluator. luxSensor may be empty; threshold
// may be nil; sun may be nil.
func NewEvaluator(client ha.HAClient, clk clock.Clock, onlyWhenDark bool, luxSensor string, luxThreshold *float64, sun *SunFallback, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		client:       client,
		clock:        clk,
		logger:       logger,
		onlyWhenDark: onlyWhenDark,
		luxSensor:    luxSensor,
		luxThreshold: luxThreshold,
		sun:          sun,
	}
}

// DarkEnough reports whether the darkness condition holds right now
func (e *Evaluator) DarkEnough() bool {
	if !e.onlyWhenDark {
		return true
	}

	if e.luxSensor != "" {
		lux, ok := e.readLux()
		if !ok {
			// Fail open: a missing or malformed reading must not keep
			// the lights off on a dark evening.
			return true
		}
		if e.luxThreshold == nil {
			return true
		}
		return lux <= *e.luxThreshold
	}

	if e.sun != nil {
		return e.darkBySun()
	}

	return true
}

// readLux reads and parses the lux sensor. The second return is false
// when the value is unavailable or not numeric.
func (e *Evaluator) readLux() (float64, bool) {
	state, err := e.client.GetState(e.luxSensor)
	if err != nil {
		e.logger.Warn("Lux sensor unavailable",
			zap.String("sensor", e.luxSensor), zap.Error(err))
		return 0, false
	}

	lux, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		e.logger.Warn("Lux sensor reading not numeric",
			zap.String("sensor", e.luxSensor),
			zap.String("value", state.State))
		return 0, false
	}

	return lux, true
}

// darkBySun reports darkness from sun position: before sunrise plus the
// twilight offset, or after sunset minus it.
func (e *Evaluator) darkBySun() bool {
	now := e.clock.Now()
	rise, set := sunrise.SunriseSunset(
		e.sun.Latitude, e.sun.Longitude,
		now.Year(), now.Month(), now.Day(),
	)

	offset := e.sun.TwilightOffset
	if offset == 0 {
		offset = 30 * time.Minute
	}

	return now.Before(rise.Add(offset)) || now.After(set.Add(-offset))
}
