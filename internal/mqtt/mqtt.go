// Package mqtt publishes pulse and lifecycle telemetry, with an abstraction
// for testing. Telemetry is diagnostic only; nothing downstream acts on it.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/keypad-sync/internal/logic"
)

// Topic is the MQTT topic for pulse events.
const Topic = "home/keypad-sync/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/keypad-sync/system"

// System event names.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventVoltage  = "VOLTAGE"
	EventOffline  = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pulse event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PulseEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PulseEvent records one corrective pulse, or a failed attempt.
type PulseEvent struct {
	Timestamp time.Time
	BootID    string
	Key       logic.Key
	Trigger   string // startup, change, recheck, lvd
	Reason    string // e.g. "Human but LED1 off"
	Desired   bool
	Actual    bool
	Err       string // non-empty when the pulse could not be sent
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, voltage).
type SystemEvent struct {
	Timestamp  time.Time
	BootID     string
	Event      string // e.g., "STARTUP", "SHUTDOWN", "VOLTAGE"
	Reason     string // e.g., "SIGTERM" (shutdown), "LOW" (voltage)
	Millivolts uint16 // voltage events only; 0 = not measured
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Keypad KeypadPayload `json:"keypad"`
}

// KeypadPayload contains the pulse event details.
type KeypadPayload struct {
	Timestamp string `json:"timestamp"`
	BootID    string `json:"boot_id,omitempty"`
	Event     string `json:"event"`
	Key       string `json:"key"`
	Trigger   string `json:"trigger"`
	Reason    string `json:"reason"`
	Desired   string `json:"desired"`
	Actual    string `json:"actual"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a pulse event.
func FormatPayload(event PulseEvent) ([]byte, error) {
	name := "PULSE"
	if event.Err != "" {
		name = "PULSE_FAILED"
	}
	payload := Payload{
		Keypad: KeypadPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			BootID:    event.BootID,
			Event:     name,
			Key:       event.Key.String(),
			Trigger:   event.Trigger,
			Reason:    event.Reason,
			Desired:   onOff(event.Desired),
			Actual:    onOff(event.Actual),
			Error:     event.Err,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	VCC       uint16 `json:"vcc_mv,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		BootID: event.BootID,
		Event:  event.Event,
		Reason: event.Reason,
		VCC:    event.Millivolts,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the retained last-will message the broker publishes if the
// daemon disappears without a SHUTDOWN.
func WillPayload(bootID string) []byte {
	data, _ := FormatSystemPayload(SystemEvent{
		BootID: bootID,
		Event:  EventOffline,
		Reason: "MQTT_DISCONNECT",
	})
	return data
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
