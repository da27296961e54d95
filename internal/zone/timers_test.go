package zone

import (
	"testing"
	"time"

	"lightzone/internal/clock"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestScheduler() (*TimerScheduler, *clock.MockClock, *[]Event) {
	logger, _ := zap.NewDevelopment()
	clk := clock.NewMockClock(time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC))
	var delivered []Event
	sched := NewTimerScheduler(clk, func(ev Event) {
		delivered = append(delivered, ev)
	}, logger)
	return sched, clk, &delivered
}

func TestTimerScheduler_DeliversExpiry(t *testing.T) {
	sched, clk, delivered := newTestScheduler()

	sched.Schedule(TimerAutoOff, "", 60*time.Second)

	clk.Advance(59 * time.Second)
	assert.Empty(t, *delivered)

	clk.Advance(1 * time.Second)
	assert.Equal(t, []Event{TimerEvent{Purpose: TimerAutoOff}}, *delivered)
}

func TestTimerScheduler_RescheduleReplacesPending(t *testing.T) {
	sched, clk, delivered := newTestScheduler()

	sched.Schedule(TimerAutoOff, "", 10*time.Second)
	sched.Schedule(TimerAutoOff, "", 60*time.Second)

	clk.Advance(10 * time.Second)
	assert.Empty(t, *delivered, "the replaced timer must not fire")

	clk.Advance(50 * time.Second)
	assert.Len(t, *delivered, 1)
}

func TestTimerScheduler_CancelStopsTimer(t *testing.T) {
	sched, clk, delivered := newTestScheduler()

	sched.Schedule(TimerManualOffReautomate, "", 30*time.Second)
	sched.Cancel(TimerManualOffReautomate, "")

	clk.Advance(time.Minute)
	assert.Empty(t, *delivered)
}

func TestTimerScheduler_CancelMissingIsNoop(t *testing.T) {
	sched, _, _ := newTestScheduler()

	assert.NotPanics(t, func() {
		sched.Cancel(TimerAutoOff, "")
		sched.Cancel(TimerAdaptiveHold, "light.kitchen")
	})
}

func TestTimerScheduler_PerLightKeys(t *testing.T) {
	sched, clk, delivered := newTestScheduler()

	sched.Schedule(TimerAdaptiveHold, "light.kitchen", 10*time.Second)
	sched.Schedule(TimerAdaptiveHold, "light.island", 20*time.Second)
	sched.Cancel(TimerAdaptiveHold, "light.kitchen")

	clk.Advance(30 * time.Second)
	assert.Equal(t, []Event{TimerEvent{Purpose: TimerAdaptiveHold, Light: "light.island"}}, *delivered)
}

func TestTimerScheduler_CancelAll(t *testing.T) {
	sched, clk, delivered := newTestScheduler()

	sched.Schedule(TimerAutoOff, "", 10*time.Second)
	sched.Schedule(TimerMotionReautomate, "", 10*time.Second)
	sched.CancelAll()

	clk.Advance(time.Minute)
	assert.Empty(t, *delivered)
}

func TestTimerPurpose_String(t *testing.T) {
	assert.Equal(t, "auto_off", TimerAutoOff.String())
	assert.Equal(t, "motion_reautomate", TimerMotionReautomate.String())
	assert.Equal(t, "manual_off_reautomate", TimerManualOffReautomate.String())
	assert.Equal(t, "adaptive_hold", TimerAdaptiveHold.String())
}
