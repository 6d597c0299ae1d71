package logic

import "fmt"

// Key identifies one keypad-emulator key and the rule that drives it.
type Key int

const (
	Key1 Key = iota + 1
	Key2
	Key3
)

// Keys lists every rule in evaluation order.
var Keys = []Key{Key1, Key2, Key3}

func (k Key) String() string {
	switch k {
	case Key1, Key2, Key3:
		return fmt.Sprintf("Key%d", int(k))
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// Mismatch is the outcome of comparing a desired and an actual signal.
type Mismatch int

const (
	Synchronized      Mismatch = iota
	WantOnObservedOff          // desired asserted, device reports off
	WantOffObservedOn          // desired clear, device reports on
)

func (m Mismatch) String() string {
	switch m {
	case Synchronized:
		return "synchronized"
	case WantOnObservedOff:
		return "want_on_observed_off"
	case WantOffObservedOn:
		return "want_off_observed_on"
	}
	return fmt.Sprintf("Mismatch(%d)", int(m))
}

// Fires reports whether a corrective pulse is needed.
func (m Mismatch) Fires() bool {
	return m != Synchronized
}

// Evaluate compares one desired signal with its feedback.
func Evaluate(desired, actual bool) Mismatch {
	switch {
	case desired && !actual:
		return WantOnObservedOff
	case !desired && actual:
		return WantOffObservedOn
	}
	return Synchronized
}

// Rule names the signals compared for one key.
type Rule struct {
	Key     Key
	Desired string
	Actual  string
}

// Rules is indexed by Key.
var Rules = map[Key]Rule{
	Key1: {Key: Key1, Desired: "Human", Actual: "LED1"},
	Key2: {Key: Key2, Desired: "Phone", Actual: "LED2"},
	Key3: {Key: Key3, Desired: "VoltageLow", Actual: "Relay3"},
}

// Decision is the result of evaluating one rule.
type Decision struct {
	Key      Key
	Desired  bool
	Actual   bool
	Known    bool // false when the desired signal is not yet established
	Mismatch Mismatch
}

// Fires reports whether the key must be pulsed.
func (d Decision) Fires() bool {
	return d.Known && d.Mismatch.Fires()
}

// Reason describes the decision for diagnostics.
func (d Decision) Reason() string {
	r := Rules[d.Key]
	if !d.Known {
		return fmt.Sprintf("%s unknown", r.Desired)
	}
	switch d.Mismatch {
	case WantOnObservedOff:
		return fmt.Sprintf("%s but %s off", r.Desired, r.Actual)
	case WantOffObservedOn:
		return fmt.Sprintf("no %s but %s on", r.Desired, r.Actual)
	}
	return fmt.Sprintf("conditions not met (%s=%s, %s=%s)",
		r.Desired, onOff(d.Desired), r.Actual, onOff(d.Actual))
}

// EvaluateKey evaluates the rule for k against the given sample and voltage
// status. Key3 never fires while the voltage status is unknown.
func EvaluateKey(k Key, s Sample, v VoltageStatus) Decision {
	d := Decision{Key: k, Known: true}
	switch k {
	case Key1:
		d.Desired, d.Actual = s.Human, s.LED1
	case Key2:
		d.Desired, d.Actual = s.Phone, s.LED2
	case Key3:
		d.Desired, d.Actual = v.Low(), s.Relay3
		d.Known = v.Level() != VoltageUnknown
	default:
		d.Known = false
	}
	if d.Known {
		d.Mismatch = Evaluate(d.Desired, d.Actual)
	}
	return d
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
