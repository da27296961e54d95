package zone

import (
	"sync"
	"time"
)

// StatusSnapshot is the externally visible state of one zone, published
// to the status entity after every visible transition and mirrored to
// the in-process registry for the HTTP API and MQTT republisher.
type StatusSnapshot struct {
	Zone             string    `json:"zone"`
	Mode             string    `json:"mode"`
	Presence         bool      `json:"presence"`
	MediaPlaying     bool      `json:"media_playing"`
	OnlyWhenDark     bool      `json:"only_when_dark"`
	LuxSensor        string    `json:"lux_sensor,omitempty"`
	ReautomateButton string    `json:"reautomate_button"`
	AdaptiveSwitch   string    `json:"adaptive_switch,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatusSink receives zone status snapshots as they are published
type StatusSink interface {
	PublishStatus(snapshot StatusSnapshot)
}

// Registry keeps the latest snapshot per zone for read-side consumers
type Registry struct {
	mu        sync.RWMutex
	snapshots map[string]StatusSnapshot
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		snapshots: make(map[string]StatusSnapshot),
	}
}

// PublishStatus stores the latest snapshot for a zone
func (r *Registry) PublishStatus(snapshot StatusSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshot.Zone] = snapshot
}

// Get returns the latest snapshot for a zone
func (r *Registry) Get(zone string) (StatusSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[zone]
	return s, ok
}

// All returns the latest snapshot of every zone
func (r *Registry) All() []StatusSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatusSnapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s)
	}
	return out
}
