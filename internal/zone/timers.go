package zone

import (
	"time"

	"lightzone/internal/clock"

	"go.uber.org/zap"
)

// TimerPurpose identifies what a pending timer will do when it fires.
// At most one timer per purpose (and per light, for the adaptive hold)
// is ever pending.
type TimerPurpose int

const (
	// TimerAutoOff turns the lights off after presence clears
	TimerAutoOff TimerPurpose = iota
	// TimerMotionReautomate returns to auto shortly after motion during manual_on
	TimerMotionReautomate
	// TimerManualOffReautomate returns to auto after a manual off
	TimerManualOffReautomate
	// TimerAdaptiveHold releases adaptive-lighting manual control for one light
	TimerAdaptiveHold
)

func (p TimerPurpose) String() string {
	switch p {
	case TimerAutoOff:
		return "auto_off"
	case TimerMotionReautomate:
		return "motion_reautomate"
	case TimerManualOffReautomate:
		return "manual_off_reautomate"
	case TimerAdaptiveHold:
		return "adaptive_hold"
	default:
		return "unknown"
	}
}

// timerKey distinguishes pending timers. Light is empty for zone-wide
// purposes and set for the per-light adaptive hold.
type timerKey struct {
	purpose TimerPurpose
	light   string
}

// TimerScheduler owns every pending timer for one zone. Scheduling a
// purpose that is already pending cancels the prior instance first, so
// the most recent intent always wins. Expiries are not executed in the
// timer goroutine; they are delivered as TimerEvents into the zone's
// event loop.
type TimerScheduler struct {
	clock   clock.Clock
	deliver func(Event)
	logger  *zap.Logger
	pending map[timerKey]clock.Timer
}

// NewTimerScheduler creates a scheduler delivering expiries via deliver
func NewTimerScheduler(clk clock.Clock, deliver func(Event), logger *zap.Logger) *TimerScheduler {
	return &TimerScheduler{
		clock:   clk,
		deliver: deliver,
		logger:  logger,
		pending: make(map[timerKey]clock.Timer),
	}
}

// Schedule arms a timer for the given purpose, replacing any pending one
func (s *TimerScheduler) Schedule(purpose TimerPurpose, light string, delay time.Duration) {
	key := timerKey{purpose: purpose, light: light}
	if existing, ok := s.pending[key]; ok {
		existing.Stop()
	}

	s.pending[key] = s.clock.AfterFunc(delay, func() {
		s.deliver(TimerEvent{Purpose: purpose, Light: light})
	})

	s.logger.Debug("Timer scheduled",
		zap.String("purpose", purpose.String()),
		zap.String("light", light),
		zap.Duration("delay", delay))
}

// Cancel stops a pending timer. Cancelling a purpose with no pending
// timer is a no-op.
func (s *TimerScheduler) Cancel(purpose TimerPurpose, light string) {
	key := timerKey{purpose: purpose, light: light}
	if existing, ok := s.pending[key]; ok {
		existing.Stop()
		delete(s.pending, key)
	}
}

// Clear removes the bookkeeping entry for a timer that just fired
func (s *TimerScheduler) Clear(purpose TimerPurpose, light string) {
	delete(s.pending, timerKey{purpose: purpose, light: light})
}

// CancelAll stops every pending timer, used on shutdown
func (s *TimerScheduler) CancelAll() {
	for key, timer := range s.pending {
		timer.Stop()
		delete(s.pending, key)
	}
}
