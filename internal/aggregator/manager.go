// Package aggregator surfaces a single "any zone needs attention"
// indicator by polling the per-zone status entities. It only reads
// published snapshots and never touches controller state.
package aggregator

import (
	"sync"
	"time"

	"lightzone/internal/clock"
	"lightzone/internal/ha"

	"go.uber.org/zap"
)

const (
	// ManagerEntity is the published aggregate indicator
	ManagerEntity = "binary_sensor.light_automation_manager"

	defaultInterval = 30 * time.Second
	startupDelay    = 5 * time.Second
)

// Config lists the zones the aggregator watches
type Config struct {
	Zones []string `yaml:"zones"`
}

// Manager polls zone status entities and republishes the aggregate
type Manager struct {
	client   ha.HAClient
	clock    clock.Clock
	logger   *zap.Logger
	zones    []string
	interval time.Duration

	// timerMu guards timer and the re-arm decision against a tick
	// racing Stop
	timerMu sync.Mutex
	timer   clock.Timer
	done    chan struct{}
}

// NewManager creates an aggregator over the given zone names
func NewManager(client ha.HAClient, clk clock.Clock, zones []string, logger *zap.Logger) *Manager {
	return &Manager{
		client:   client,
		clock:    clk,
		logger:   logger.Named("aggregator"),
		zones:    zones,
		interval: defaultInterval,
		done:     make(chan struct{}),
	}
}

// Start publishes the initial indicator, refreshes once shortly after
// startup and then on every interval tick.
func (m *Manager) Start() error {
	if err := m.client.SetEntityState(ManagerEntity, "off", map[string]interface{}{
		"reautomate_buttons": []string{},
	}); err != nil {
		m.logger.Warn("Failed to create manager entity", zap.Error(err))
	}

	m.Refresh()

	m.timerMu.Lock()
	m.timer = m.clock.AfterFunc(startupDelay, m.tick)
	m.timerMu.Unlock()

	m.logger.Info("Aggregator started", zap.Strings("zones", m.zones))
	return nil
}

// Stop halts the refresh schedule
func (m *Manager) Stop() {
	close(m.done)

	m.timerMu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerMu.Unlock()

	m.logger.Info("Aggregator stopped")
}

// tick runs one refresh and re-arms the interval timer
func (m *Manager) tick() {
	select {
	case <-m.done:
		return
	default:
	}

	m.Refresh()

	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	// Stop may have landed during the refresh; do not re-arm past it
	select {
	case <-m.done:
		return
	default:
	}
	m.timer = m.clock.AfterFunc(m.interval, m.tick)
}

// Refresh reads every zone's status entity and republishes the
// aggregate indicator: "on" with the re-automate buttons of zones
// currently in a manual state.
func (m *Manager) Refresh() {
	buttons := make([]string, 0, len(m.zones))

	for _, zone := range m.zones {
		statusEntity := "sensor.light_status_" + zone
		state, err := m.client.GetState(statusEntity)
		if err != nil {
			m.logger.Debug("Zone status entity unavailable",
				zap.String("entity", statusEntity), zap.Error(err))
			continue
		}

		manualState := state.State
		if s, ok := state.Attributes["manual_state"].(string); ok && s != "" {
			manualState = s
		}
		if manualState != "manual_on" && manualState != "manual_off" {
			continue
		}

		button, _ := state.Attributes["reautomate_button"].(string)
		if button != "" {
			buttons = append(buttons, button)
		}
	}

	indicator := "off"
	if len(buttons) > 0 {
		indicator = "on"
	}

	if err := m.client.SetEntityState(ManagerEntity, indicator, map[string]interface{}{
		"reautomate_buttons": buttons,
	}); err != nil {
		m.logger.Warn("Failed to publish manager entity", zap.Error(err))
	}
}
