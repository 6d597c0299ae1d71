package supervisor

import "github.com/sweeney/keypad-sync/internal/logic"

// Trigger says why an evaluation happened.
type Trigger string

const (
	TriggerStartup    Trigger = "startup"
	TriggerChange     Trigger = "change"
	TriggerRecheck    Trigger = "recheck"
	TriggerLowVoltage Trigger = "lvd"
)

// VoltageEvent reports one voltage evaluation.
type VoltageEvent struct {
	Trigger    Trigger
	Millivolts uint16 // 0 = unavailable (or not measured, for lvd)
	Level      logic.VoltageLevel
	Applied    bool // false when an unavailable reading left the status unchanged
	Err        error
}

// RuleEvent reports one rule evaluation.
type RuleEvent struct {
	Trigger  Trigger
	Decision logic.Decision
	Pulsed   bool
	Err      error // input read or pulse failure
}

// State is the supervisor's view after a Running iteration.
type State struct {
	Iteration  uint64
	Sample     logic.Sample // last successful sample
	Voltage    logic.VoltageLevel
	Millivolts uint16 // last available reading
	Feeds      uint64
}

// Observer receives supervisor events on the supervisor goroutine.
// Implementations must not block.
type Observer interface {
	VoltageEvaluated(ev VoltageEvent)
	RuleEvaluated(ev RuleEvent)
	StepCompleted(st State)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) VoltageEvaluated(VoltageEvent) {}
func (NopObserver) RuleEvaluated(RuleEvent)       {}
func (NopObserver) StepCompleted(State)           {}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) VoltageEvaluated(ev VoltageEvent) {
	for _, x := range o {
		x.VoltageEvaluated(ev)
	}
}

func (o Observers) RuleEvaluated(ev RuleEvent) {
	for _, x := range o {
		x.RuleEvaluated(ev)
	}
}

func (o Observers) StepCompleted(st State) {
	for _, x := range o {
		x.StepCompleted(st)
	}
}
