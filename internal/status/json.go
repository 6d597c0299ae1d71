package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	BootID        string         `json:"boot_id"`
	Ready         bool           `json:"ready"`
	Inputs        InputsJSON     `json:"inputs"`
	Voltage       VoltageJSON    `json:"voltage"`
	Iteration     uint64         `json:"iteration"`
	WatchdogFeeds uint64         `json:"watchdog_feeds"`
	Pulses        PulsesJSON     `json:"pulses"`
	LastPulse     *LastPulseJSON `json:"last_pulse,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Config        ConfigJSON     `json:"config"`
}

// InputsJSON reports the last sampled input levels.
type InputsJSON struct {
	Human  bool `json:"human"`
	Phone  bool `json:"phone"`
	LED1   bool `json:"led1"`
	LED2   bool `json:"led2"`
	LED3   bool `json:"led3"`
	Relay3 bool `json:"relay3"`
}

// VoltageJSON reports the supply classification.
type VoltageJSON struct {
	Level      string `json:"level"`
	Millivolts uint16 `json:"vcc_mv"`
}

// PulsesJSON is the JSON representation of pulse counts.
type PulsesJSON struct {
	Key1   int `json:"key1"`
	Key2   int `json:"key2"`
	Key3   int `json:"key3"`
	Errors int `json:"errors"`
}

// LastPulseJSON describes the most recent pulse.
type LastPulseJSON struct {
	Key       string `json:"key"`
	Reason    string `json:"reason"`
	Trigger   string `json:"trigger"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	PulseMs      int64  `json:"pulse_ms"`
	ThresholdMV  uint16 `json:"threshold_mv"`
	RecheckPolls int    `json:"recheck_polls"`
	Watchdog     bool   `json:"watchdog"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	level := string(snap.Voltage)
	if level == "" {
		level = "UNKNOWN"
	}

	inner := StatusInner{
		BootID: snap.BootID,
		Ready:  snap.Ready,
		Inputs: InputsJSON{
			Human:  snap.Sample.Human,
			Phone:  snap.Sample.Phone,
			LED1:   snap.Sample.LED1,
			LED2:   snap.Sample.LED2,
			LED3:   snap.Sample.LED3,
			Relay3: snap.Sample.Relay3,
		},
		Voltage:       VoltageJSON{Level: level, Millivolts: snap.Millivolts},
		Iteration:     snap.Iteration,
		WatchdogFeeds: snap.Feeds,
		Pulses: PulsesJSON{
			Key1:   snap.Pulses.Key1,
			Key2:   snap.Pulses.Key2,
			Key3:   snap.Pulses.Key3,
			Errors: snap.Pulses.Errors,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			PulseMs:      snap.Config.PulseMs,
			ThresholdMV:  snap.Config.ThresholdMV,
			RecheckPolls: snap.Config.RecheckPolls,
			Watchdog:     snap.Config.Watchdog,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}

	if p := snap.LastPulse; p != nil {
		inner.LastPulse = &LastPulseJSON{
			Key:       p.Key.String(),
			Reason:    p.Reason,
			Trigger:   string(p.Trigger),
			Timestamp: p.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
