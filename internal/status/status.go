// Package status provides a thread-safe status tracker for the keypad-sync
// daemon. It is fed by supervisor events and read by HTTP handlers and the
// MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/supervisor"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	PulseMs      int64
	ThresholdMV  uint16
	RecheckPolls int
	Watchdog     bool
	Broker       string
	HTTPAddr     string
}

// PulseCounts counts emitted pulses per key, plus failed attempts.
type PulseCounts struct {
	Key1   int
	Key2   int
	Key3   int
	Errors int
}

// Pulse describes the most recent pulse.
type Pulse struct {
	Key     logic.Key
	Reason  string
	Trigger supervisor.Trigger
	At      time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	Sample        logic.Sample
	Voltage       logic.VoltageLevel
	Millivolts    uint16
	Ready         bool // startup finished and at least one iteration ran
	Iteration     uint64
	Feeds         uint64
	Pulses        PulseCounts
	LastPulse     *Pulse
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// supervisor.Observer.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

var _ supervisor.Observer = (*Tracker)(nil)

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			Voltage:   logic.VoltageUnknown,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// VoltageEvaluated records the voltage level and the last available reading.
func (t *Tracker) VoltageEvaluated(ev supervisor.VoltageEvent) {
	t.mu.Lock()
	t.snap.Voltage = ev.Level
	if ev.Millivolts != 0 {
		t.snap.Millivolts = ev.Millivolts
	}
	t.mu.Unlock()
}

// RuleEvaluated counts pulses and failed attempts.
func (t *Tracker) RuleEvaluated(ev supervisor.RuleEvent) {
	if !ev.Pulsed && ev.Err == nil {
		return
	}
	at := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ev.Pulsed {
		t.snap.Pulses.Errors++
		return
	}
	switch ev.Decision.Key {
	case logic.Key1:
		t.snap.Pulses.Key1++
	case logic.Key2:
		t.snap.Pulses.Key2++
	case logic.Key3:
		t.snap.Pulses.Key3++
	}
	t.snap.LastPulse = &Pulse{
		Key:     ev.Decision.Key,
		Reason:  ev.Decision.Reason(),
		Trigger: ev.Trigger,
		At:      at,
	}
}

// StepCompleted copies the supervisor's view after each iteration.
func (t *Tracker) StepCompleted(st supervisor.State) {
	t.mu.Lock()
	t.snap.Ready = true
	t.snap.Iteration = st.Iteration
	t.snap.Sample = st.Sample
	t.snap.Voltage = st.Voltage
	t.snap.Millivolts = st.Millivolts
	t.snap.Feeds = st.Feeds
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastPulse != nil {
		p := *s.LastPulse
		s.LastPulse = &p
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
