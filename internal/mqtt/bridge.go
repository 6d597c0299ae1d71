package mqtt

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/supervisor"
)

// Bridge turns supervisor events into telemetry: one event per pulse or
// failed pulse, and a VOLTAGE system event whenever the classification
// changes.
type Bridge struct {
	pub    Publisher
	bootID string
	now    func() time.Time
	log    zerolog.Logger
	level  logic.VoltageLevel
}

var _ supervisor.Observer = (*Bridge)(nil)

// NewBridge creates a Bridge publishing through pub.
func NewBridge(pub Publisher, bootID string, log zerolog.Logger) *Bridge {
	return &Bridge{
		pub:    pub,
		bootID: bootID,
		now:    time.Now,
		log:    log,
		level:  logic.VoltageUnknown,
	}
}

// VoltageEvaluated publishes classification changes.
func (b *Bridge) VoltageEvaluated(ev supervisor.VoltageEvent) {
	if ev.Level == b.level {
		return
	}
	b.level = ev.Level
	err := b.pub.PublishSystem(SystemEvent{
		Timestamp:  b.now(),
		BootID:     b.bootID,
		Event:      EventVoltage,
		Reason:     string(ev.Level),
		Millivolts: ev.Millivolts,
		Retained:   true,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("publish voltage event")
	}
}

// RuleEvaluated publishes pulses and pulse failures. Evaluations that did
// not call for a pulse are not published.
func (b *Bridge) RuleEvaluated(ev supervisor.RuleEvent) {
	if !ev.Pulsed && (ev.Err == nil || !ev.Decision.Fires()) {
		return
	}
	pe := PulseEvent{
		Timestamp: b.now(),
		BootID:    b.bootID,
		Key:       ev.Decision.Key,
		Trigger:   string(ev.Trigger),
		Reason:    ev.Decision.Reason(),
		Desired:   ev.Decision.Desired,
		Actual:    ev.Decision.Actual,
	}
	if ev.Err != nil {
		pe.Err = ev.Err.Error()
	}
	if err := b.pub.Publish(pe); err != nil {
		b.log.Warn().Err(err).Stringer("key", pe.Key).Msg("publish pulse event")
	}
}

// StepCompleted is a no-op; per-iteration state is served over HTTP.
func (b *Bridge) StepCompleted(supervisor.State) {}
