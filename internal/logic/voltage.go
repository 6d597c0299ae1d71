package logic

// DefaultThresholdMillivolts separates LOW from HIGH supply (inclusive-high).
const DefaultThresholdMillivolts = 3000

// VoltageLevel is the three-valued supply classification.
type VoltageLevel string

const (
	VoltageUnknown VoltageLevel = "UNKNOWN"
	VoltageLow     VoltageLevel = "LOW"
	VoltageHigh    VoltageLevel = "HIGH"
)

// VoltageStatus holds the supply classification as two mutually exclusive
// flags. Both are false only before the first successful evaluation.
type VoltageStatus struct {
	low  bool
	high bool
}

// Low reports whether the supply is classified low.
func (v VoltageStatus) Low() bool { return v.low }

// High reports whether the supply is classified high.
func (v VoltageStatus) High() bool { return v.high }

// Level returns the three-valued classification.
func (v VoltageStatus) Level() VoltageLevel {
	switch {
	case v.low:
		return VoltageLow
	case v.high:
		return VoltageHigh
	}
	return VoltageUnknown
}

// SetLow marks the supply low. Both the periodic poll and the hardware
// low-voltage detector go through here.
func (v *VoltageStatus) SetLow() {
	v.low = true
	v.high = false
}

// SetHigh marks the supply high.
func (v *VoltageStatus) SetHigh() {
	v.low = false
	v.high = true
}

// VoltagePolicy classifies raw millivolt readings.
type VoltagePolicy struct {
	ThresholdMillivolts uint16

	// ZeroIsLow classifies an unavailable (0 mV) reading as LOW instead of
	// keeping the previous status.
	ZeroIsLow bool
}

// DefaultVoltagePolicy returns the 3000 mV policy that retains the previous
// status on an unavailable reading.
func DefaultVoltagePolicy() VoltagePolicy {
	return VoltagePolicy{ThresholdMillivolts: DefaultThresholdMillivolts}
}

// Classify maps a reading to LOW or HIGH. No hysteresis: readings below the
// threshold are LOW, everything else is HIGH.
func (p VoltagePolicy) Classify(mv uint16) VoltageLevel {
	if mv < p.ThresholdMillivolts {
		return VoltageLow
	}
	return VoltageHigh
}

// Apply returns the status after a reading. A zero reading is unavailable:
// unless ZeroIsLow is set, prev is returned unchanged and applied is false.
func (p VoltagePolicy) Apply(prev VoltageStatus, mv uint16) (next VoltageStatus, applied bool) {
	if mv == 0 && !p.ZeroIsLow {
		return prev, false
	}
	next = prev
	if p.Classify(mv) == VoltageLow {
		next.SetLow()
	} else {
		next.SetHigh()
	}
	return next, true
}
