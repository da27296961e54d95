package zone

// Event is an inbound occurrence routed through the controller's single
// dispatch loop. Exactly one event is processed at a time, so handlers
// never race on controller state.
type Event interface {
	event()
}

// PresenceEvent is a presence/motion sensor state change
type PresenceEvent struct {
	Entity string
	Old    string
	New    string
}

// LightPowerEvent is an on/off transition of a light in the group
type LightPowerEvent struct {
	Entity string
	Old    string
	New    string
}

// LightAttributeEvent is a brightness or color-temperature change on a
// light in the group
type LightAttributeEvent struct {
	Entity    string
	Attribute string
	Old       interface{}
	New       interface{}
}

// IlluminanceEvent is a lux sensor reading change
type IlluminanceEvent struct {
	Entity string
	Old    string
	New    string
}

// MediaEvent is a media player state change
type MediaEvent struct {
	Entity string
	Old    string
	New    string
}

// ReautomateEvent is an explicit request to return to auto mode,
// typically from the zone's re-automate button
type ReautomateEvent struct {
	RequestID string
	Source    string
}

// TimerEvent is a scheduled timer expiry delivered back into the loop
type TimerEvent struct {
	Purpose TimerPurpose
	Light   string
}

func (PresenceEvent) event()       {}
func (LightPowerEvent) event()     {}
func (LightAttributeEvent) event() {}
func (IlluminanceEvent) event()    {}
func (MediaEvent) event()          {}
func (ReautomateEvent) event()     {}
func (TimerEvent) event()          {}
