package zone

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"lightzone/internal/clock"
	"lightzone/internal/darkness"
	"lightzone/internal/ha"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode is the controller's automation state. Exactly one value is active
// per zone at any time.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeManualOn  Mode = "manual_on"
	ModeManualOff Mode = "manual_off"
)

// Controller automates one lighting zone. All inbound occurrences
// (sensor changes, light state reports, timer expiries, re-automate
// requests) are funneled through a single event loop, so handlers run
// one at a time and controller state needs no locking.
type Controller struct {
	cfg    Config
	client ha.HAClient
	clock  clock.Clock
	logger *zap.Logger

	echo     *EchoGuard
	blocks   *BlockWindowEvaluator
	adaptive *AdaptiveLightingReconciler
	media    *MediaDimOverlay
	timers   *TimerScheduler
	darkness *darkness.Evaluator
	sinks    []StatusSink

	mode         Mode
	presence     bool
	mediaPlaying bool
	startedAt    time.Time

	events        chan Event
	done          chan struct{}
	loopDone      chan struct{}
	running       atomic.Bool
	stopped       atomic.Bool
	subscriptions []ha.Subscription
}

// NewController builds a controller for one zone. The config must
// already be validated; window compilation happens here so malformed
// windows are reported against this zone's logger.
func NewController(cfg Config, client ha.HAClient, darknessEval *darkness.Evaluator, clk clock.Clock, logger *zap.Logger, sinks ...StatusSink) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.Named("zone").With(zap.String("zone", cfg.Name))

	defaultAction, err := ParseBlockAction(cfg.BlockActions)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", cfg.Name, err)
	}
	windows, err := compileBlockWindows(cfg.BlockWindows, defaultAction, logger)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", cfg.Name, err)
	}
	legacy := compileLegacyWindow(cfg.QuietStart, cfg.QuietEnd, defaultAction, logger)

	c := &Controller{
		cfg:      cfg,
		client:   client,
		clock:    clk,
		logger:   logger,
		darkness: darknessEval,
		sinks:    sinks,
		mode:     ModeAuto,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	c.echo = NewEchoGuard(clk, cfg.EchoWindow(), cfg.EchoMaxWindow(), logger)
	c.blocks = NewBlockWindowEvaluator(windows, legacy, clk.Now)
	c.adaptive = NewAdaptiveLightingReconciler(client, cfg.AdaptiveLighting, logger)
	c.media = NewMediaDimOverlay(client, cfg.MediaDimBrightnessPct, cfg.AutoBrightnessPct, logger)
	c.timers = NewTimerScheduler(clk, c.dispatch, logger)

	return c, nil
}

// compileLegacyWindow builds the fallback quiet window from the single
// quiet_start/quiet_end pair, if configured. Malformed times disable it.
func compileLegacyWindow(start, end string, action BlockAction, logger *zap.Logger) *blockWindow {
	if start == "" || end == "" {
		return nil
	}
	s, err := parseHHMM(start)
	if err != nil {
		logger.Warn("Ignoring malformed quiet_start", zap.Error(err))
		return nil
	}
	e, err := parseHHMM(end)
	if err != nil {
		logger.Warn("Ignoring malformed quiet_end", zap.Error(err))
		return nil
	}
	return &blockWindow{
		startMin: s,
		endMin:   e,
		action:   action,
		label:    fmt.Sprintf("%s %s-%s", action, start, end),
	}
}

// Start creates the zone's virtual entities, subscribes to its sensors
// and starts the event loop. The loop is running before the first
// subscription exists, so a callback can never handle an event on its
// own goroutine.
func (c *Controller) Start() error {
	c.startedAt = c.clock.Now()

	c.createEntities()

	c.running.Store(true)
	go c.run()

	if err := c.subscribeAll(); err != nil {
		c.Stop()
		return err
	}

	c.logger.Info("Zone controller started",
		zap.Strings("lights", c.cfg.Lights),
		zap.Strings("motion", c.cfg.MotionSensors),
		zap.String("lux_sensor", c.cfg.LuxSensor),
		zap.Strings("media_players", c.cfg.MediaPlayers),
		zap.String("adaptive_switch", c.cfg.AdaptiveLighting.Switch))
	return nil
}

// subscribeAll registers every sensor subscription for the zone
func (c *Controller) subscribeAll() error {
	for _, sensor := range c.cfg.MotionSensors {
		sub, err := c.client.SubscribeStateChanges(sensor, c.onMotionChange)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sensor, err)
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	for _, light := range c.cfg.Lights {
		sub, err := c.client.SubscribeStateChanges(light, c.onLightChange)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", light, err)
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	if c.cfg.LuxSensor != "" {
		sub, err := c.client.SubscribeStateChanges(c.cfg.LuxSensor, c.onLuxChange)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.LuxSensor, err)
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	for _, player := range c.cfg.MediaPlayers {
		sub, err := c.client.SubscribeStateChanges(player, c.onMediaChange)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", player, err)
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	sub, err := c.client.SubscribeEvents("call_service", c.onServiceCallEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to call_service events: %w", err)
	}
	c.subscriptions = append(c.subscriptions, sub)

	return nil
}

// Stop tears down subscriptions, timers and the event loop. Timers are
// cancelled only after the loop has exited, so no handler can race the
// teardown.
func (c *Controller) Stop() {
	c.stopped.Store(true)

	for _, sub := range c.subscriptions {
		sub.Unsubscribe()
	}
	c.subscriptions = nil

	if c.running.Swap(false) {
		close(c.done)
		<-c.loopDone
	}
	c.timers.CancelAll()

	c.logger.Info("Zone controller stopped")
}

// run is the single dispatch loop. Exactly one event is processed to
// completion before the next is taken.
func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.done:
			return
		}
	}
}

// dispatch delivers an event into the loop. Before Start (in tests and
// during construction) events are handled inline; after Stop they are
// dropped so nothing runs concurrently with teardown.
func (c *Controller) dispatch(ev Event) {
	if c.running.Load() {
		select {
		case c.events <- ev:
		case <-c.done:
		}
		return
	}
	if c.stopped.Load() {
		return
	}
	c.handle(ev)
}

// handle routes one event to its handler. Handlers never panic the
// loop; external failures are logged and state progression continues.
func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case PresenceEvent:
		c.handlePresence(e)
	case LightPowerEvent:
		c.handleLightPower(e)
	case LightAttributeEvent:
		c.handleLightAttribute(e)
	case IlluminanceEvent:
		c.handleIlluminance(e)
	case MediaEvent:
		c.handleMedia(e)
	case ReautomateEvent:
		c.handleReautomate(e)
	case TimerEvent:
		c.handleTimer(e)
	default:
		c.logger.Warn("Unhandled event type", zap.Any("event", ev))
	}
}

// ---- subscription callbacks (outside the loop, translate and dispatch) ----

func (c *Controller) onMotionChange(entityID string, oldState, newState *ha.State) {
	c.dispatch(PresenceEvent{
		Entity: entityID,
		Old:    stateValue(oldState),
		New:    stateValue(newState),
	})
}

// trackedAttributes are the light attributes whose changes count as
// potential manual tweaks
var trackedAttributes = []string{"brightness", "brightness_pct", "color_temp", "color_temp_kelvin"}

func (c *Controller) onLightChange(entityID string, oldState, newState *ha.State) {
	oldVal := stateValue(oldState)
	newVal := stateValue(newState)
	if oldVal != newVal {
		c.dispatch(LightPowerEvent{Entity: entityID, Old: oldVal, New: newVal})
	}

	var oldAttrs, newAttrs map[string]interface{}
	if oldState != nil {
		oldAttrs = oldState.Attributes
	}
	if newState != nil {
		newAttrs = newState.Attributes
	}

	for _, attr := range trackedAttributes {
		oldA := oldAttrs[attr]
		newA := newAttrs[attr]
		if newA == nil || attrEqual(oldA, newA) {
			continue
		}
		c.dispatch(LightAttributeEvent{
			Entity:    entityID,
			Attribute: attr,
			Old:       oldA,
			New:       newA,
		})
	}
}

func (c *Controller) onLuxChange(entityID string, oldState, newState *ha.State) {
	c.dispatch(IlluminanceEvent{
		Entity: entityID,
		Old:    stateValue(oldState),
		New:    stateValue(newState),
	})
}

func (c *Controller) onMediaChange(entityID string, oldState, newState *ha.State) {
	c.dispatch(MediaEvent{
		Entity: entityID,
		Old:    stateValue(oldState),
		New:    stateValue(newState),
	})
}

// onServiceCallEvent watches the event bus for presses of this zone's
// re-automate button
func (c *Controller) onServiceCallEvent(eventType string, data json.RawMessage) {
	var call ha.CallServiceEventData
	if err := json.Unmarshal(data, &call); err != nil {
		c.logger.Debug("Unparseable call_service event", zap.Error(err))
		return
	}
	if call.Domain != "button" || call.Service != "press" {
		return
	}

	if !entityIDMatches(call.ServiceData["entity_id"], c.cfg.ReautomateButton()) {
		return
	}

	c.dispatch(ReautomateEvent{
		RequestID: uuid.NewString(),
		Source:    "button",
	})
}

// entityIDMatches handles the string-or-list entity_id field of service data
func entityIDMatches(raw interface{}, want string) bool {
	switch v := raw.(type) {
	case string:
		return v == want
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

// ---- event handlers ----

func (c *Controller) handlePresence(ev PresenceEvent) {
	active := presenceActive(ev.New)
	c.presence = c.computePresence(ev.Entity, active)

	if c.mode == ModeManualOn && active {
		c.timers.Schedule(TimerMotionReautomate, "", c.cfg.MotionReautomateDelay())
		c.logger.Info("Motion during manual_on, scheduling quick re-automate")
	}

	if c.mode != ModeAuto {
		c.publish()
		return
	}

	if active {
		c.timers.Cancel(TimerAutoOff, "")
		if !c.blocks.IsAllowed(CommandOn) {
			c.logger.Info("Motion but automation is blocked now, ignoring ON",
				zap.String("block", c.blocks.ActiveBlockLabel()))
			c.publish()
			return
		}
		if c.darkness.DarkEnough() {
			if !c.anyLightOn() {
				c.turnOn("motion")
			} else if c.mediaPlaying && c.media.Enabled() {
				c.media.Apply(c.cfg.Lights)
			}
		} else {
			c.logger.Info("Motion but not dark, leaving lights as-is")
		}
	} else if !c.presence {
		if c.blocks.IsAllowed(CommandOff) {
			c.timers.Schedule(TimerAutoOff, "", c.cfg.DelayOff())
			c.logger.Info("Presence cleared, scheduled auto-off",
				zap.Duration("delay", c.cfg.DelayOff()))
		} else {
			c.logger.Info("Presence cleared but OFF is blocked now, leaving lights as-is",
				zap.String("block", c.blocks.ActiveBlockLabel()))
		}
	}

	c.publish()
}

// computePresence ORs the state of every presence sensor, using the
// just-received value for the sensor that changed
func (c *Controller) computePresence(changedEntity string, changedActive bool) bool {
	if changedActive {
		return true
	}
	for _, sensor := range c.cfg.MotionSensors {
		if sensor == changedEntity {
			continue
		}
		state, err := c.client.GetState(sensor)
		if err != nil {
			continue
		}
		if presenceActive(state.State) {
			return true
		}
	}
	return false
}

func (c *Controller) handleLightPower(ev LightPowerEvent) {
	if c.clock.Since(c.startedAt) < c.cfg.BootGrace() {
		return
	}
	if c.echo.ShouldIgnore(ev.Entity, ev.Old, ev.New) {
		return
	}

	oldOn := ev.Old == "on"
	newOn := ev.New == "on"

	switch {
	case newOn && !oldOn:
		if c.mode != ModeManualOn {
			c.mode = ModeManualOn
			c.timers.Cancel(TimerAutoOff, "")
			c.logger.Info("Manual ON, pausing automation",
				zap.String("source", ev.Entity))
			c.adaptive.TakeManualControl([]string{ev.Entity})
			c.scheduleAdaptiveHold(ev.Entity)
		}
	case !newOn && oldOn:
		if c.mode != ModeManualOff {
			c.mode = ModeManualOff
			c.timers.Cancel(TimerAutoOff, "")
			c.timers.Schedule(TimerManualOffReautomate, "", c.cfg.ManualOffReautomateDelay())
			c.logger.Info("Manual OFF, will re-automate later",
				zap.String("source", ev.Entity),
				zap.Duration("delay", c.cfg.ManualOffReautomateDelay()))
		}
	default:
		return
	}

	c.publish()
}

func (c *Controller) handleLightAttribute(ev LightAttributeEvent) {
	if c.clock.Since(c.startedAt) < c.cfg.BootGrace() {
		return
	}
	// Attribute flips that land right after our own command are jitter
	if c.echo.RecentCommand(ev.Entity, 0) {
		return
	}
	if c.adaptive.LooksLikeOwnAdaptation(ev.Attribute, ev.New) {
		return
	}
	if !c.changedMeaningfully(ev.Attribute, ev.Old, ev.New) {
		return
	}
	// Only react while the light is on
	state, err := c.client.GetState(ev.Entity)
	if err != nil || state.State != "on" {
		return
	}

	if c.mode != ModeManualOn {
		c.mode = ModeManualOn
		c.timers.Cancel(TimerAutoOff, "")
		c.logger.Info("Manual tweak, entering manual_on and pausing automation",
			zap.String("light", ev.Entity),
			zap.String("attribute", ev.Attribute))
	}
	c.adaptive.TakeManualControl([]string{ev.Entity})
	c.scheduleAdaptiveHold(ev.Entity)
	c.publish()
}

// changedMeaningfully filters out tiny attribute jitters below the
// configured thresholds. Unparseable values count as meaningful.
func (c *Controller) changedMeaningfully(attribute string, oldValue, newValue interface{}) bool {
	oldF, okOld := attrFloat(oldValue)
	newF, okNew := attrFloat(newValue)
	if !okNew {
		return true
	}
	if !okOld {
		oldF = 0
	}
	delta := math.Abs(newF - oldF)

	switch attribute {
	case "brightness", "brightness_pct":
		return delta >= floatOrDefault(c.cfg.BrightnessChangePct, 5)
	case "color_temp_kelvin":
		return delta >= floatOrDefault(c.cfg.ColorTempChangeK, 100)
	case "color_temp":
		return delta >= floatOrDefault(c.cfg.ColorTempChangeMired, 5)
	default:
		return true
	}
}

func (c *Controller) handleIlluminance(ev IlluminanceEvent) {
	c.logger.Debug("Illuminance changed",
		zap.String("old", ev.Old), zap.String("new", ev.New))

	if c.mode == ModeAuto && c.presence && c.darkness.DarkEnough() {
		if !c.anyLightOn() {
			if c.blocks.IsAllowed(CommandOn) {
				c.turnOn("lux_dark_now")
			} else {
				c.logger.Info("Dark now but ON is blocked, ignoring",
					zap.String("block", c.blocks.ActiveBlockLabel()))
			}
		} else if c.mediaPlaying && c.media.Enabled() {
			c.media.Apply(c.cfg.Lights)
		}
	}

	c.publish()
}

func (c *Controller) handleMedia(ev MediaEvent) {
	playing := ev.New == "playing"
	c.mediaPlaying = playing
	c.logger.Info("Media state changed",
		zap.String("player", ev.Entity), zap.String("state", ev.New))

	if c.mode != ModeAuto {
		c.publish()
		return
	}

	if playing {
		if c.darkness.DarkEnough() && c.anyLightOn() {
			c.media.Apply(c.cfg.Lights)
		}
	} else if c.anyLightOn() {
		c.media.Restore(c.cfg.Lights)
	}

	c.publish()
}

func (c *Controller) handleReautomate(ev ReautomateEvent) {
	c.logger.Info("Re-automate request accepted",
		zap.String("source", ev.Source),
		zap.String("request_id", ev.RequestID))
	c.mode = ModeAuto
	c.ensureSteadyState(ev.Source)
	c.publish()
}

func (c *Controller) handleTimer(ev TimerEvent) {
	c.timers.Clear(ev.Purpose, ev.Light)

	switch ev.Purpose {
	case TimerAutoOff:
		if c.mode != ModeAuto || c.presence {
			return
		}
		if c.blocks.IsAllowed(CommandOff) {
			c.logger.Info("Auto-off timer elapsed, turning lights off")
			c.turnOff("auto_off")
		} else {
			c.logger.Info("Auto-off elapsed but OFF is blocked, keeping lights as-is",
				zap.String("block", c.blocks.ActiveBlockLabel()))
		}
		c.publish()

	case TimerMotionReautomate:
		if c.mode != ModeManualOn {
			return
		}
		c.mode = ModeAuto
		c.ensureSteadyState("motion_reautomate")
		c.publish()

	case TimerManualOffReautomate:
		if c.mode != ModeManualOff {
			return
		}
		c.mode = ModeAuto
		c.ensureSteadyState("manual_off_timeout")
		c.publish()

	case TimerAdaptiveHold:
		c.logger.Info("Manual hold elapsed, releasing adaptive lighting control",
			zap.String("light", ev.Light))
		c.adaptive.Release([]string{ev.Light})
	}
}

// ensureSteadyState drives the zone to the state automation would have
// chosen: on when presence and darkness hold and ON is not blocked, off
// otherwise unless OFF is blocked. Returning to auto also hands the
// lights back to the adaptation service, superseding any pending
// per-light holds.
func (c *Controller) ensureSteadyState(reason string) {
	if c.adaptive.Enabled() {
		for _, light := range c.cfg.Lights {
			c.timers.Cancel(TimerAdaptiveHold, light)
		}
		c.adaptive.Release(c.cfg.Lights)
	}

	if c.presence && c.darkness.DarkEnough() {
		if c.blocks.IsAllowed(CommandOn) {
			c.logger.Info("Re-automated, presence and darkness hold, ensuring ON",
				zap.String("reason", reason))
			c.turnOn(reason)
			return
		}
		c.logger.Info("Re-automated but ON is blocked now, doing nothing",
			zap.String("reason", reason),
			zap.String("block", c.blocks.ActiveBlockLabel()))
		return
	}

	if c.blocks.IsAllowed(CommandOff) {
		c.logger.Info("Re-automated, no presence or not dark, turning OFF",
			zap.String("reason", reason))
		c.turnOff(reason)
		return
	}
	c.logger.Info("Re-automated but OFF is blocked now, leaving lights as-is",
		zap.String("reason", reason),
		zap.String("block", c.blocks.ActiveBlockLabel()))
}

// scheduleAdaptiveHold arms the per-light manual hold releasing adaptive
// control. A zero reset delay means the hold never expires on its own.
func (c *Controller) scheduleAdaptiveHold(light string) {
	if !c.adaptive.Enabled() {
		return
	}
	delay := c.adaptive.ManualResetDelay()
	if delay <= 0 {
		c.timers.Cancel(TimerAdaptiveHold, light)
		return
	}
	c.timers.Schedule(TimerAdaptiveHold, light, delay)
}

// ---- actuation ----

// turnOn commands every light in the group on, layering brightness from
// media dim, the configured auto brightness, then the adaptive target.
func (c *Controller) turnOn(reason string) {
	c.echo.MarkExpected(c.cfg.Lights, "on")

	var target AdaptiveTarget
	if c.adaptive.UseTargets() {
		target = c.adaptive.CurrentTarget()
	}

	var brightnessPct *int
	if c.mediaPlaying && c.cfg.MediaDimBrightnessPct != nil {
		brightnessPct = c.cfg.MediaDimBrightnessPct
	} else if c.cfg.AutoBrightnessPct != nil {
		brightnessPct = c.cfg.AutoBrightnessPct
	}
	if brightnessPct == nil && target.BrightnessPct != nil && target.AdaptBrightness {
		brightnessPct = target.BrightnessPct
	}

	for _, light := range c.cfg.Lights {
		if strings.HasPrefix(light, "switch.") {
			if err := c.client.CallService("switch", "turn_on", map[string]interface{}{
				"entity_id": light,
			}); err != nil {
				c.logger.Warn("Failed to turn on switch",
					zap.String("entity", light), zap.Error(err))
			}
			continue
		}

		data := map[string]interface{}{"entity_id": light}
		if brightnessPct != nil {
			data["brightness_pct"] = *brightnessPct
		}
		if target.ColorTempKelvin != nil && target.AdaptColor {
			data["color_temp_kelvin"] = *target.ColorTempKelvin
		}
		if err := c.client.CallService("light", "turn_on", data); err != nil {
			c.logger.Warn("Failed to turn on light",
				zap.String("entity", light), zap.Error(err))
		}
	}

	c.logger.Info("Turn ON", zap.String("reason", reason))
}

// turnOff commands every light in the group off
func (c *Controller) turnOff(reason string) {
	c.echo.MarkExpected(c.cfg.Lights, "off")

	for _, light := range c.cfg.Lights {
		domain := "light"
		if strings.HasPrefix(light, "switch.") {
			domain = "switch"
		}
		if err := c.client.CallService(domain, "turn_off", map[string]interface{}{
			"entity_id": light,
		}); err != nil {
			c.logger.Warn("Failed to turn off light",
				zap.String("entity", light), zap.Error(err))
		}
	}

	c.logger.Info("Turn OFF", zap.String("reason", reason))
}

// anyLightOn reports whether any light in the group is currently on
func (c *Controller) anyLightOn() bool {
	for _, light := range c.cfg.Lights {
		state, err := c.client.GetState(light)
		if err != nil {
			continue
		}
		if state.State == "on" {
			return true
		}
	}
	return false
}

// ---- observability ----

// createEntities publishes the zone's virtual entities at startup
func (c *Controller) createEntities() {
	if err := c.client.SetEntityState(c.cfg.DebugEntity(), "unknown", map[string]interface{}{
		"zone": c.cfg.Name,
	}); err != nil {
		c.logger.Warn("Failed to create debug entity", zap.Error(err))
	}

	if err := c.client.SetEntityState(c.cfg.ReautomateButton(), "idle", map[string]interface{}{
		"friendly_name": "Re-automate " + c.cfg.Name,
	}); err != nil {
		c.logger.Warn("Failed to create re-automate button", zap.Error(err))
	}

	c.publish()
}

// publish republishes the status and debug entities and feeds the
// in-process sinks. Called after every externally visible transition.
func (c *Controller) publish() {
	if err := c.client.SetEntityState(c.cfg.StatusEntity(), string(c.mode), map[string]interface{}{
		"manual_state":             string(c.mode),
		"presence":                 c.presence,
		"only_when_dark":           c.cfg.DarkOnly(),
		"lux_sensor":               c.cfg.LuxSensor,
		"media_players":            c.cfg.MediaPlayers,
		"media_playing":            c.mediaPlaying,
		"reautomate_button":        c.cfg.ReautomateButton(),
		"adaptive_lighting_switch": c.cfg.AdaptiveLighting.Switch,
	}); err != nil {
		c.logger.Warn("Failed to publish status entity", zap.Error(err))
	}

	if err := c.client.SetEntityState(c.cfg.DebugEntity(), string(c.mode), map[string]interface{}{
		"mode":          string(c.mode),
		"presence":      c.presence,
		"media_playing": c.mediaPlaying,
		"expected_echo": c.echo.Pending(),
		"now":           c.clock.Now(),
	}); err != nil {
		c.logger.Warn("Failed to publish debug entity", zap.Error(err))
	}

	snapshot := StatusSnapshot{
		Zone:             c.cfg.Name,
		Mode:             string(c.mode),
		Presence:         c.presence,
		MediaPlaying:     c.mediaPlaying,
		OnlyWhenDark:     c.cfg.DarkOnly(),
		LuxSensor:        c.cfg.LuxSensor,
		ReautomateButton: c.cfg.ReautomateButton(),
		AdaptiveSwitch:   c.cfg.AdaptiveLighting.Switch,
		UpdatedAt:        c.clock.Now(),
	}
	for _, sink := range c.sinks {
		sink.PublishStatus(snapshot)
	}
}

// Mode returns the current automation mode
func (c *Controller) Mode() Mode {
	return c.mode
}

// Name returns the zone name
func (c *Controller) Name() string {
	return c.cfg.Name
}

// ---- small helpers ----

// stateValue extracts the state string of a possibly-nil entity state
func stateValue(s *ha.State) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(s.State)
}

// presenceActive interprets the values presence-ish sensors report
func presenceActive(value string) bool {
	switch strings.ToLower(value) {
	case "on", "home", "occupied", "true", "1":
		return true
	default:
		return false
	}
}

// attrEqual compares attribute values numerically when possible
func attrEqual(a, b interface{}) bool {
	fa, okA := attrFloat(a)
	fb, okB := attrFloat(b)
	if okA && okB {
		return fa == fb
	}
	return a == b
}
